package ai

import (
	"testing"
)

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type entity struct {
		Name string `json:"name"`
		Type string `json:"type,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  entity
	}{
		{
			name:  "valid json object",
			input: `{"name":"ACME Corp"}`,
			want:  entity{Name: "ACME Corp"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{name: 'ACME Corp'}`,
			want:  entity{Name: "ACME Corp"},
		},
		{
			name:  "trailing comma",
			input: `{"name":"ACME Corp",}`,
			want:  entity{Name: "ACME Corp"},
		},
		{
			name:  "missing endbracket",
			input: `{"name":"ACME Corp`,
			want:  entity{Name: "ACME Corp"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{name: 'ACME Corp'}"`,
			want:  entity{Name: "ACME Corp"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"name\": \"ACME Corp\"\n}\n",
			want:  entity{Name: "ACME Corp"},
		},
		{
			name:  "markdown code fence",
			input: "```json\n{\"name\": \"ACME Corp\", \"type\": \"Organization\"}\n```",
			want:  entity{Name: "ACME Corp", Type: "Organization"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got entity
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Name != tc.want.Name || got.Type != tc.want.Type {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	type entity struct {
		Name string `json:"name"`
	}

	input := `[{name:'A'},{name:'B',}]`
	var got []entity
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "B" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two entities A,B", got)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	type entity struct {
		Name string `json:"name"`
	}

	var got entity
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestUnmarshalFlexible_StringifiedExtraction(t *testing.T) {
	type extraction struct {
		Entities []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"entities"`
	}

	input := `"{ \"entities\": [ { \"name\": \"Jane Doe\", \"type\": \"Person\" }, { \"name\": \"Contract Act\", \"type\": \"Law\" } ] }"`
	var got extraction
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(got.Entities))
	}
	if got.Entities[0].Name != "Jane Doe" || got.Entities[1].Type != "Law" {
		t.Fatalf("unexpected entities: %+v", got.Entities)
	}
}

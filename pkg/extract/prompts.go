package extract

// DefaultEntityTypes are the entity categories extracted from legal text.
var DefaultEntityTypes = []string{"Person", "Organization", "Law", "Case"}

// DefaultEntityType is assigned when the model omits or invents a type.
const DefaultEntityType = "Other"

// ExtractPrompt is the system prompt for entity/relationship extraction.
// Placeholders: entity types (x3).
const ExtractPrompt = `You are an expert at analyzing legal and regulatory documents.

Given a text document, identify all entities of the following types: %s.

Step 1. Identify all entities. For each, extract:
- name: the canonical name of the entity as used in the document
- type: one of the provided entity types (%s)
- description: a concise description of the entity's role, attributes, and activities as stated in the text
- properties: additional scalar attributes stated in the text (dates, docket numbers, jurisdictions, statute sections)

Step 2. Identify all relationships between the entities found in step 1. For each, extract:
- source: name of the source entity
- target: name of the target entity
- type: a short uppercase label describing the relationship (for example PARTY_TO, REPRESENTS, CITES, AMENDS, RULED_BY, EMPLOYED_BY)
- description: why the source and target are related, grounded in the text

Rules:
- Only extract entities and relationships that are explicitly supported by the text.
- Use the provided entity types (%s); do not invent new types.
- Do not extract pronouns or generic role words as entities.
- Relationships may only connect entities identified in step 1.`

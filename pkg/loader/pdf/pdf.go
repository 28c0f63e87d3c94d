package pdf

import (
	"context"
	"fmt"

	"github.com/lexgraph/lexgraph/pkg/logger"
)

// PDFLoader extracts PDF text in page-range batches using the poppler
// command line tools. A batch whose extraction fails becomes an empty
// string, so one bad page range never loses the rest of the document.
type PDFLoader struct {
	pagesPerBatch int
}

func NewPDFLoader(pagesPerBatch int) *PDFLoader {
	if pagesPerBatch <= 0 {
		pagesPerBatch = 25
	}
	return &PDFLoader{pagesPerBatch: pagesPerBatch}
}

// LoadBatches returns the document text split into page-range batches of
// PagesPerBatch pages each.
func (l *PDFLoader) LoadBatches(ctx context.Context, path string) ([]string, error) {
	pages, err := pageCount(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF page count: %w", err)
	}
	if pages == 0 {
		return nil, nil
	}

	var batches []string
	for first := 1; first <= pages; first += l.pagesPerBatch {
		last := first + l.pagesPerBatch - 1
		if last > pages {
			last = pages
		}
		text, err := extractPages(ctx, path, first, last)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("PDF text extraction failed for page range",
				"path", path, "first", first, "last", last, "err", err)
			text = ""
		}
		batches = append(batches, text)
	}
	return batches, nil
}

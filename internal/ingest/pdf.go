package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// parsePDF extracts page text with MuPDF and runs the text parser over it.
// Confidence is MEDIUM when vendor and total were found, LOW otherwise.
func (i *Ingestor) parsePDF(ctx context.Context, path string, data []byte) (*draft, error) {
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return nil, fmt.Errorf("%w: content is %s, not a PDF", ErrMalformedDocument, mt.String())
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %v", ErrMalformedDocument, err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > i.maxPDFPages {
		i.logger.Debug("Truncating PDF pages",
			zap.String("path", path),
			zap.Int("total_pages", pages),
			zap.Int("max_pages", i.maxPDFPages))
		pages = i.maxPDFPages
	}

	var sb strings.Builder
	for n := 0; n < pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(n)
		if err != nil {
			i.logger.Warn("Failed to extract page text", zap.Int("page", n), zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	d := newDraft(path, "pdf", entity.ConfidenceMedium)
	if strings.TrimSpace(sb.String()) == "" {
		d.meta.Warn("no extractable text in PDF")
	}
	if doc.NumPage() > pages {
		d.meta.Warn("only the first %d of %d pages were read", pages, doc.NumPage())
	}
	parseText(d, sb.String(), "pdf")
	return d, nil
}

// Package ingest turns invoice documents into normalized invoices.
//
// Every supported format goes through the same draft builder so missing
// vendor and total handling, provenance and confidence tagging stay uniform.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

var (
	// ErrUnsupportedFormat is returned for file extensions no parser handles
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrMalformedDocument is returned when a parser cannot decode the file
	ErrMalformedDocument = errors.New("malformed document")
	// ErrDocumentTooLarge is returned when the file exceeds the size limit
	ErrDocumentTooLarge = errors.New("document too large")
)

const (
	DefaultMaxBytes    = 10 << 20
	DefaultMaxPDFPages = 5
)

type parseFunc func(ctx context.Context, path string, data []byte) (*draft, error)

// Ingestor dispatches to a format parser by file extension
type Ingestor struct {
	parsers     map[string]parseFunc
	maxBytes    int64
	maxPDFPages int
	logger      *zap.Logger
}

var _ port.Ingestor = (*Ingestor)(nil)

// Option configures an Ingestor
type Option func(*Ingestor)

// WithMaxBytes limits the size of documents read from disk
func WithMaxBytes(n int64) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxBytes = n
		}
	}
}

// WithMaxPDFPages limits how many PDF pages are extracted
func WithMaxPDFPages(n int) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxPDFPages = n
		}
	}
}

// New creates an Ingestor supporting json, csv, txt, pdf and html documents
func New(logger *zap.Logger, opts ...Option) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Ingestor{
		maxBytes:    DefaultMaxBytes,
		maxPDFPages: DefaultMaxPDFPages,
		logger:      logger,
	}
	i.parsers = map[string]parseFunc{
		".json": parseJSON,
		".csv":  parseCSV,
		".txt":  parseTXT,
		".pdf":  i.parsePDF,
		".html": parseHTML,
		".htm":  parseHTML,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SupportedExtensions lists the handled extensions, sorted
func (i *Ingestor) SupportedExtensions() []string {
	exts := make([]string, 0, len(i.parsers))
	for ext := range i.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has a handled extension
func (i *Ingestor) Supports(path string) bool {
	_, ok := i.parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Ingest parses the document at path. On failure the returned invoice is
// still usable: its vendor is PARSE_ERROR and vendor and amount are marked missing.
func (i *Ingestor) Ingest(ctx context.Context, path string) (*entity.Invoice, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format := strings.TrimPrefix(ext, ".")

	parse, ok := i.parsers[ext]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
		i.logger.Warn("Unsupported invoice format", zap.String("path", path), zap.String("ext", ext))
		return parseErrorInvoice(path, format, err), err
	}

	data, err := i.read(path)
	if err != nil {
		i.logger.Error("Failed to read invoice", zap.String("path", path), zap.Error(err))
		return parseErrorInvoice(path, format, err), err
	}

	d, err := parse(ctx, path, data)
	if err != nil {
		i.logger.Error("Failed to parse invoice",
			zap.String("path", path),
			zap.String("format", format),
			zap.Error(err))
		return parseErrorInvoice(path, format, err), err
	}

	inv := d.finish()
	i.logger.Info("Invoice ingested",
		zap.String("path", path),
		zap.String("format", format),
		zap.String("vendor", inv.Vendor),
		zap.Float64("amount", inv.Amount),
		zap.Int("line_items", len(inv.LineItems)),
		zap.String("confidence", string(inv.Provenance.Confidence)),
		zap.Int("warnings", len(inv.Provenance.ParseWarnings)))
	return inv, nil
}

func (i *Ingestor) read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat invoice file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrMalformedDocument, path)
	}
	if info.Size() > i.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrDocumentTooLarge, info.Size(), i.maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice file: %w", err)
	}
	return data, nil
}

func parseErrorInvoice(path, format string, cause error) *entity.Invoice {
	meta := entity.NewParseMetadata(path, format, entity.ConfidenceLow)
	meta.Warn("%v", cause)
	meta.MarkMissing(entity.FieldVendor, "")
	meta.MarkMissing(entity.FieldAmount, "")
	return &entity.Invoice{
		Vendor:     entity.VendorParseError,
		LineItems:  []entity.LineItem{},
		Currency:   entity.DefaultCurrency,
		Provenance: meta,
	}
}

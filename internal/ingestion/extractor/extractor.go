// Package extractor turns a staged file into text and metadata.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

// TextExtractor reads one file format from a local path.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (document.Extracted, error)
}

type ExtractorFunc func(ctx context.Context, path string) (document.Extracted, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (document.Extracted, error) {
	return f(ctx, path)
}

var ErrExtractorPanic = errors.New("extractor panicked")

// Result is the outcome of extracting one staged file.
// Unsupported is set for file types with no extractor (DOC and unknown extensions).
type Result struct {
	Document    document.Extracted
	Unsupported bool
}

// Registry maps each FileType to its extractor.
type Registry struct {
	log    *logger.Logger
	byType map[document.FileType]TextExtractor
	remove func(string) error
}

// NewRegistry returns a registry with the PDF, DOCX and TXT extractors installed.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Registry{
		log:    log.With("component", "TextExtractor"),
		byType: map[document.FileType]TextExtractor{},
		remove: os.Remove,
	}
	r.Register(document.FileTypePDF, ExtractorFunc(ExtractPDF))
	r.Register(document.FileTypeDOCX, ExtractorFunc(ExtractDOCX))
	r.Register(document.FileTypeTXT, ExtractorFunc(ExtractTXT))
	return r
}

func (r *Registry) Register(ft document.FileType, te TextExtractor) {
	r.byType[ft] = te
}

// Extract runs the extractor for file.Type and removes file.Path afterwards,
// whatever the outcome. Removal failures are logged only. A panicking reader
// is reported as ErrExtractorPanic.
func (r *Registry) Extract(ctx context.Context, file document.StagedFile) (res Result, err error) {
	log := r.log.With("path", file.Path, "file_type", file.Type)
	defer func() {
		if rmErr := r.remove(file.Path); rmErr != nil {
			log.Warn("Failed to delete staged file", "error", rmErr)
		} else {
			log.Debug("Deleted staged file")
		}
	}()

	te, ok := r.byType[file.Type]
	if !ok {
		log.Warn("No text extractor for file type; skipping", "filename", file.Filename)
		return Result{Unsupported: true, Document: emptyDocument()}, nil
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("Text extractor panic", "panic", p)
			res = Result{Document: emptyDocument()}
			err = fmt.Errorf("%w: %v", ErrExtractorPanic, p)
		}
	}()

	doc, err := te.Extract(ctx, file.Path)
	if err != nil {
		return Result{Document: emptyDocument()}, fmt.Errorf("extract %s: %w", file.Type, err)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	return Result{Document: doc}, nil
}

func emptyDocument() document.Extracted {
	return document.Extracted{Metadata: map[string]string{}}
}

// ExtractTXT returns valid UTF-8 contents verbatim with empty metadata.
// Invalid byte sequences become U+FFFD.
func ExtractTXT(_ context.Context, path string) (document.Extracted, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return document.Extracted{}, err
	}
	return document.Extracted{Text: sanitizeUTF8(string(raw)), Metadata: map[string]string{}}, nil
}

// sanitizeUTF8 leaves valid text untouched and replaces invalid byte sequences.
func sanitizeUTF8(s string) string {
	if s == "" || utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

func putMeta(md map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		md[key] = v
	}
}

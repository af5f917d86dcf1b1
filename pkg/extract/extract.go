// Package extract implements the TextExtractor capability: a polymorphic
// `bytes + extension -> plain text` conversion. The core ships only the
// trivial plaintext-family extractors; richer formats (pdf, docx) are
// out of scope and are wired in by a host via RegisterExtractor.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/whytchat/core/pkg/coreerr"
)

// Extractor converts raw file bytes of a known extension into plain text
// suitable for chunking.
type Extractor interface {
	Extract(ctx context.Context, data []byte, ext string) (string, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, data []byte, ext string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte, ext string) (string, error) {
	return f(ctx, data, ext)
}

// Registry dispatches to a registered Extractor by normalized extension.
// It ships with txt/md/json/csv handled directly; pdf/docx resolve to
// a coreerr.UnsupportedFormat error until a host calls RegisterExtractor
// for them.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry builds a Registry pre-populated with the plaintext family.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	plain := ExtractorFunc(extractPlaintext)
	for _, ext := range []string{"txt", "md", "json", "csv"} {
		r.extractors[ext] = plain
	}
	return r
}

// RegisterExtractor installs (or overrides) the Extractor used for ext,
// letting a host supply pdf/docx support without changing the core.
func (r *Registry) RegisterExtractor(ext string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[normalizeExt(ext)] = e
}

// Extract dispatches to the Extractor registered for ext.
func (r *Registry) Extract(ctx context.Context, data []byte, ext string) (string, error) {
	ext = normalizeExt(ext)

	r.mu.RLock()
	e, ok := r.extractors[ext]
	r.mu.RUnlock()
	if !ok {
		return "", coreerr.New(coreerr.UnsupportedFormat, fmt.Sprintf("no extractor registered for %q", ext))
	}

	text, err := e.Extract(ctx, data, ext)
	if err != nil {
		var ce *coreerr.Error
		if errors.As(err, &ce) {
			return "", err
		}
		return "", coreerr.Wrap(coreerr.ExtractionFailed, fmt.Sprintf("extract %q", ext), err)
	}
	return text, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func extractPlaintext(_ context.Context, data []byte, ext string) (string, error) {
	switch ext {
	case "txt", "md":
		return string(data), nil
	case "json":
		return flattenJSON(data)
	case "csv":
		return flattenCSV(data)
	default:
		return "", coreerr.New(coreerr.UnsupportedFormat, fmt.Sprintf("plaintext extractor cannot handle %q", ext))
	}
}

// flattenJSON re-flows arbitrary JSON into newline-joined text so it
// chunks the same way any other document does.
func flattenJSON(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", coreerr.Wrap(coreerr.ExtractionFailed, "parse json", err)
	}
	var sb strings.Builder
	flattenValue(&sb, "", v)
	return sb.String(), nil
}

func flattenValue(sb *strings.Builder, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenValue(sb, key, child)
		}
	case []any:
		for i, child := range val {
			flattenValue(sb, fmt.Sprintf("%s[%d]", prefix, i), child)
		}
	default:
		fmt.Fprintf(sb, "%s: %v\n", prefix, val)
	}
}

// flattenCSV re-flows rows into newline-joined, comma-separated text.
func flattenCSV(data []byte) (string, error) {
	r := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
	r.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", coreerr.Wrap(coreerr.ExtractionFailed, "parse csv", err)
		}
		sb.WriteString(strings.Join(record, ", "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

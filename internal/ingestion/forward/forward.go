// Package forward ingests structured records pushed by external connectors.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/points"
	"github.com/agentcloud/vector-db-proxy/internal/platform/embedding"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

var (
	ErrInvalidPayload = errors.New("forward payload is not a JSON object or array of objects")
	ErrNoEmbedder     = errors.New("embedding provider not configured")
)

// Result summarizes one forwarded message.
type Result struct {
	Records int
	Points  int
	Skipped int
}

// Processor embeds each record of a forwarded body and writes the batch to the
// data source's collection.
type Processor struct {
	log      *logger.Logger
	embedder embedding.Provider
	writer   vectorstore.Writer
}

func NewProcessor(log *logger.Logger, embedder embedding.Provider, writer vectorstore.Writer) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{log: log.With("component", "ForwardProcessor"), embedder: embedder, writer: writer}
}

func (p *Processor) Process(ctx context.Context, dataSourceID, body string) (Result, error) {
	records, err := ParseRecords([]byte(body))
	if err != nil {
		return Result{}, err
	}
	res := Result{Records: len(records)}
	if len(records) == 0 {
		return res, nil
	}
	if p.embedder == nil {
		return res, ErrNoEmbedder
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = Render(r)
	}
	vecs, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return res, fmt.Errorf("embed %d records: %w", len(records), err)
	}

	pts := make([]vectorstore.Point, 0, len(records))
	for i, r := range records {
		if i >= len(vecs) || len(vecs[i]) == 0 {
			res.Skipped++
			continue
		}
		ch := document.Chunk{Index: i, Text: texts[i], Metadata: ScalarMetadata(r), Embedding: vecs[i]}
		pts = append(pts, vectorstore.Point{
			ID:      points.RecordID(dataSourceID, texts[i]),
			Vector:  ch.Embedding,
			Payload: points.Payload(ch),
		})
	}
	if res.Skipped > 0 {
		p.log.Warn("Records without embedding skipped", "datasource_id", dataSourceID, "skipped", res.Skipped)
	}
	if err := p.writer.BulkUpsert(ctx, dataSourceID, pts); err != nil {
		return res, err
	}
	res.Points = len(pts)
	return res, nil
}

// ParseRecords accepts an object, an array of objects, or a connector envelope
// ({"record":{"data":{...}}} or {"data":{...}}).
func ParseRecords(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{unwrap(v)}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, ErrInvalidPayload
			}
			out = append(out, unwrap(obj))
		}
		return out, nil
	default:
		return nil, ErrInvalidPayload
	}
}

func unwrap(obj map[string]any) map[string]any {
	if rec, ok := obj["record"].(map[string]any); ok {
		if data, ok := rec["data"].(map[string]any); ok {
			return data
		}
	}
	if data, ok := obj["data"].(map[string]any); ok && len(obj) == 1 {
		return data
	}
	return obj
}

// Render prints a record as "key: value" lines sorted by key.
func Render(rec map[string]any) string {
	keys := sortedKeys(rec)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(valueString(rec[k]))
	}
	return b.String()
}

// ScalarMetadata keeps string, number and boolean fields as payload metadata.
func ScalarMetadata(rec map[string]any) map[string]string {
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		switch v.(type) {
		case string, json.Number, bool, float64:
			out[k] = valueString(v)
		}
	}
	return out
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

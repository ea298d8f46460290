package forward

import (
	"context"
	"errors"
	"testing"

	"github.com/agentcloud/vector-db-proxy/internal/ingestion/points"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

type fakeEmbedder struct {
	texts []string
	nilAt map[int]bool
	err   error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		if f.nilAt[i] {
			continue
		}
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeWriter struct {
	collection string
	points     []vectorstore.Point
	calls      int
	err        error
}

func (f *fakeWriter) BulkUpsert(_ context.Context, collection string, pts []vectorstore.Point) error {
	f.calls++
	f.collection = collection
	f.points = pts
	return f.err
}

func TestParseRecordsShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
		key  string
	}{
		{name: "object", body: `{"name":"a"}`, want: 1, key: "name"},
		{name: "array", body: `[{"name":"a"},{"name":"b"}]`, want: 2, key: "name"},
		{name: "record envelope", body: `{"type":"RECORD","record":{"stream":"users","data":{"name":"a"}}}`, want: 1, key: "name"},
		{name: "data envelope", body: `{"data":{"name":"a"}}`, want: 1, key: "name"},
		{name: "data field in record", body: `{"data":{"x":1},"name":"a"}`, want: 1, key: "name"},
		{name: "empty array", body: `[]`, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRecords([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseRecords: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("records: want=%d got=%d", tc.want, len(got))
			}
			if tc.key != "" {
				if _, ok := got[0][tc.key]; !ok {
					t.Fatalf("record missing %q: %v", tc.key, got[0])
				}
			}
		})
	}
}

func TestParseRecordsRejects(t *testing.T) {
	for _, body := range []string{`not json`, `"text"`, `42`, `[1,2]`, ``} {
		if _, err := ParseRecords([]byte(body)); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("ParseRecords(%q): want ErrInvalidPayload got=%v", body, err)
		}
	}
}

func TestRenderAndMetadata(t *testing.T) {
	recs, err := ParseRecords([]byte(`{"name":"Ada","age":36,"active":true,"tags":["x","y"],"big":12345678901234567890}`))
	if err != nil {
		t.Fatalf("ParseRecords: %v", err)
	}
	want := "active: true\nage: 36\nbig: 12345678901234567890\nname: Ada\ntags: [\"x\",\"y\"]"
	if got := Render(recs[0]); got != want {
		t.Fatalf("Render: want=%q got=%q", want, got)
	}
	md := ScalarMetadata(recs[0])
	if md["age"] != "36" || md["active"] != "true" || md["name"] != "Ada" {
		t.Fatalf("metadata: got=%v", md)
	}
	if _, ok := md["tags"]; ok {
		t.Fatalf("non-scalar fields must not become metadata")
	}
}

func TestProcessWritesOneBatch(t *testing.T) {
	emb := &fakeEmbedder{nilAt: map[int]bool{1: true}}
	w := &fakeWriter{}
	p := NewProcessor(logger.NewNop(), emb, w)

	res, err := p.Process(context.Background(), "ds1", `[{"name":"a"},{"name":"b"},{"name":"c"}]`)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Records != 3 || res.Points != 2 || res.Skipped != 1 {
		t.Fatalf("result: got=%+v", res)
	}
	if w.calls != 1 || w.collection != "ds1" {
		t.Fatalf("writer: calls=%d collection=%q", w.calls, w.collection)
	}
	if len(emb.texts) != 3 {
		t.Fatalf("embed batch: want=3 got=%d", len(emb.texts))
	}
	first := w.points[0]
	if first.Payload["text"] != "name: a" || first.Payload["name"] != "a" {
		t.Fatalf("payload: got=%v", first.Payload)
	}
	if first.ID != points.RecordID("ds1", "name: a") {
		t.Fatalf("id: got=%q", first.ID)
	}
}

func TestProcessInvalidBodyWritesNothing(t *testing.T) {
	emb := &fakeEmbedder{}
	w := &fakeWriter{}
	_, err := NewProcessor(logger.NewNop(), emb, w).Process(context.Background(), "ds1", "plain text")
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err: want ErrInvalidPayload got=%v", err)
	}
	if w.calls != 0 || len(emb.texts) != 0 {
		t.Fatalf("nothing should be embedded or written")
	}
}

func TestProcessSurfacesWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("qdrant down")}
	_, err := NewProcessor(logger.NewNop(), &fakeEmbedder{}, w).Process(context.Background(), "ds1", `{"a":1}`)
	if err == nil || err.Error() != "qdrant down" {
		t.Fatalf("err: want write error got=%v", err)
	}
}

package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

func stage(t *testing.T, name string, content []byte) document.StagedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write staged file: %v", err)
	}
	return document.StagedFile{Filename: name, Path: path, Type: document.FileTypeFromName(name)}
}

func assertDeleted(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staged file still present: %s (stat err=%v)", path, err)
	}
}

func TestExtractTXTReplacesInvalidUTF8(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	f := stage(t, "latin1.txt", []byte("caf\xe9 ok"))

	res, err := r.Extract(context.Background(), f)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if want := "caf\uFFFD ok"; res.Document.Text != want {
		t.Fatalf("text: want=%q got=%q", want, res.Document.Text)
	}
	assertDeleted(t, f.Path)
}

func TestExtractTXTVerbatim(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	f := stage(t, "notes.txt", []byte("Hello world.\n\nSecond line"))

	res, err := r.Extract(context.Background(), f)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Document.Text != "Hello world.\n\nSecond line" {
		t.Fatalf("text: got=%q", res.Document.Text)
	}
	if len(res.Document.Metadata) != 0 {
		t.Fatalf("metadata: want empty got=%v", res.Document.Metadata)
	}
	if res.Unsupported {
		t.Fatalf("Unsupported: want=false")
	}
	assertDeleted(t, f.Path)
}

func TestExtractUnsupportedTypesAreNoops(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	for _, name := range []string{"legacy.doc", "image.png", "README"} {
		f := stage(t, name, []byte("irrelevant"))
		res, err := r.Extract(context.Background(), f)
		if err != nil {
			t.Fatalf("Extract(%s): %v", name, err)
		}
		if !res.Unsupported {
			t.Fatalf("Extract(%s): want Unsupported", name)
		}
		if !res.Document.Empty() || len(res.Document.Metadata) != 0 {
			t.Fatalf("Extract(%s): want empty document got=%+v", name, res.Document)
		}
		assertDeleted(t, f.Path)
	}
}

func TestExtractCorruptPDFFailsAndDeletes(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	f := stage(t, "broken.pdf", []byte("this is not a pdf"))

	res, err := r.Extract(context.Background(), f)
	if err == nil {
		t.Fatalf("Extract: want error for corrupt pdf")
	}
	if !res.Document.Empty() {
		t.Fatalf("document: want empty got=%q", res.Document.Text)
	}
	assertDeleted(t, f.Path)
}

func TestExtractRecoversFromPanic(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(document.FileTypePDF, ExtractorFunc(func(context.Context, string) (document.Extracted, error) {
		panic("index out of range")
	}))
	f := stage(t, "evil.pdf", []byte("%PDF-1.7"))

	res, err := r.Extract(context.Background(), f)
	if !errors.Is(err, ErrExtractorPanic) {
		t.Fatalf("err: want ErrExtractorPanic got=%v", err)
	}
	if !res.Document.Empty() {
		t.Fatalf("document: want empty")
	}
	assertDeleted(t, f.Path)
}

func TestExtractDeletionFailureIsNotAnError(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.remove = func(string) error { return errors.New("read-only filesystem") }
	f := stage(t, "a.txt", []byte("x"))

	res, err := r.Extract(context.Background(), f)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Document.Text != "x" {
		t.Fatalf("text: got=%q", res.Document.Text)
	}
}

func TestExtractDOCX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.docx")
	writeDocx(t, path, map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> report</w:t></w:r></w:p>
    <w:p><w:r><w:t>Revenue</w:t><w:tab/><w:t>up</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`,
		"docProps/core.xml": `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>Q3</dc:title>
  <dc:creator>Finance</dc:creator>
</cp:coreProperties>`,
	})

	r := NewRegistry(logger.NewNop())
	res, err := r.Extract(context.Background(), document.StagedFile{Filename: "report.docx", Path: path, Type: document.FileTypeDOCX})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Document.Text != "Quarterly report\nRevenue\tup" {
		t.Fatalf("text: got=%q", res.Document.Text)
	}
	if res.Document.Metadata["title"] != "Q3" || res.Document.Metadata["author"] != "Finance" {
		t.Fatalf("metadata: got=%v", res.Document.Metadata)
	}
	assertDeleted(t, path)
}

func TestExtractDOCXMissingBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	writeDocx(t, path, map[string]string{"docProps/core.xml": "<x/>"})
	if _, err := ExtractDOCX(context.Background(), path); err == nil {
		t.Fatalf("ExtractDOCX: want error when word/document.xml is missing")
	}
}

func writeDocx(t *testing.T, path string, files map[string]string) {
	t.Helper()
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	zw := zip.NewWriter(out)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
}

package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/ledongthuc/pdf"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
)

var pdfInfoKeys = map[string]string{
	"Title":        "title",
	"Author":       "author",
	"Subject":      "subject",
	"Keywords":     "keywords",
	"Creator":      "creator",
	"Producer":     "producer",
	"CreationDate": "creation_date",
	"ModDate":      "modification_date",
}

func ExtractPDF(_ context.Context, path string) (document.Extracted, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return document.Extracted{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return document.Extracted{}, fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return document.Extracted{}, fmt.Errorf("read pdf text: %w", err)
	}

	md := map[string]string{"page_count": strconv.Itoa(r.NumPage())}
	if info := r.Trailer().Key("Info"); !info.IsNull() {
		for pdfKey, metaKey := range pdfInfoKeys {
			if v := info.Key(pdfKey); !v.IsNull() {
				putMeta(md, metaKey, v.Text())
			}
		}
	}
	return document.Extracted{Text: sanitizeUTF8(buf.String()), Metadata: md}, nil
}

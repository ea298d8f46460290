package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
)

// docxCoreProps is docProps/core.xml. Tags match on local name, so the
// dc/cp/dcterms namespaces need no spelling out.
type docxCoreProps struct {
	Title          string `xml:"title"`
	Subject        string `xml:"subject"`
	Creator        string `xml:"creator"`
	Keywords       string `xml:"keywords"`
	Description    string `xml:"description"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
}

func ExtractDOCX(_ context.Context, path string) (document.Extracted, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return document.Extracted{}, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	body, err := readZipFile(zr.File, "word/document.xml")
	if err != nil {
		return document.Extracted{}, err
	}
	paras, err := docxParagraphs(body)
	if err != nil {
		return document.Extracted{}, fmt.Errorf("parse word/document.xml: %w", err)
	}

	md := map[string]string{"paragraph_count": fmt.Sprint(len(paras))}
	if core, err := readZipFile(zr.File, "docProps/core.xml"); err == nil {
		var props docxCoreProps
		if xml.Unmarshal(core, &props) == nil {
			putMeta(md, "title", props.Title)
			putMeta(md, "subject", props.Subject)
			putMeta(md, "author", props.Creator)
			putMeta(md, "keywords", props.Keywords)
			putMeta(md, "description", props.Description)
			putMeta(md, "last_modified_by", props.LastModifiedBy)
			putMeta(md, "creation_date", props.Created)
			putMeta(md, "modification_date", props.Modified)
		}
	}
	return document.Extracted{Text: strings.Join(paras, "\n"), Metadata: md}, nil
}

func readZipFile(files []*zip.File, target string) ([]byte, error) {
	for _, f := range files {
		if f == nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(f.Name), target) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file not found: %s", target)
}

// docxParagraphs returns the non-empty paragraphs of word/document.xml in order.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		inParagraph bool
		inText      bool
		text        strings.Builder
		out         []string
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				text.Reset()
			case "t":
				inText = inParagraph
			case "tab":
				if inParagraph {
					text.WriteByte('\t')
				}
			case "br", "cr":
				if inParagraph {
					text.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := strings.TrimSpace(text.String()); p != "" {
					out = append(out, p)
				}
				inParagraph = false
				inText = false
			}
		}
	}
}

package document

import (
	"path/filepath"
	"strings"
)

// FileType is the closed set of document formats the ingestion path recognizes.
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeDOCX    FileType = "docx"
	FileTypeTXT     FileType = "txt"
	FileTypeDOC     FileType = "doc"
	FileTypeUnknown FileType = "unknown"
)

// FileTypeFromName maps the final extension of name to a FileType.
// Names without an extension, or with an unrecognized one, are FileTypeUnknown.
func FileTypeFromName(name string) FileType {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))
	switch ext {
	case "pdf":
		return FileTypePDF
	case "docx":
		return FileTypeDOCX
	case "txt":
		return FileTypeTXT
	case "doc":
		return FileTypeDOC
	default:
		return FileTypeUnknown
	}
}

// Extractable reports whether a text extractor exists for t.
func (t FileType) Extractable() bool {
	switch t {
	case FileTypePDF, FileTypeDOCX, FileTypeTXT:
		return true
	default:
		return false
	}
}

func (t FileType) String() string { return string(t) }

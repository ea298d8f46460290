// Package classifier decides which ingestion path a message takes.
package classifier

import "strings"

const (
	HeaderStream = "stream"
	HeaderType   = "type"
)

type Path string

const (
	// PathUpload means the body references a file in object storage.
	PathUpload Path = "upload"
	// PathForward means the body is a structured payload for the forward processor.
	PathForward Path = "forward"
)

type Classification struct {
	DataSourceID string
	Path         Path
}

// Classify reads the stream header, whose first "_" separated segment is the
// data source id, and picks the upload path when a type header is present
// with any value. ok is false when the id cannot be derived.
func Classify(headers map[string]string) (Classification, bool) {
	stream, ok := headers[HeaderStream]
	if !ok {
		return Classification{}, false
	}
	dsID, _, _ := strings.Cut(stream, "_")
	if dsID == "" {
		return Classification{}, false
	}
	path := PathForward
	if _, isUpload := headers[HeaderType]; isUpload {
		path = PathUpload
	}
	return Classification{DataSourceID: dsID, Path: path}, true
}

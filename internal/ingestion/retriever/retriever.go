package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/platform/objectstore"
)

var (
	ErrInvalidUploadBody = errors.New("upload body is not a JSON object")
	ErrMissingBucket     = errors.New("upload body has no string bucket")
	ErrMissingFilename   = errors.New("upload body has no string filename")
)

// Request is the object reference carried by an upload message.
type Request struct {
	Bucket   string
	Filename string
}

// ParseRequest decodes {"bucket": string, "filename": string}. Extra fields are ignored;
// non-string or empty values are rejected.
func ParseRequest(body []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return Request{}, ErrInvalidUploadBody
	}
	bucket, ok := stringField(raw, "bucket")
	if !ok {
		return Request{}, ErrMissingBucket
	}
	filename, ok := stringField(raw, "filename")
	if !ok {
		return Request{}, ErrMissingFilename
	}
	return Request{Bucket: bucket, Filename: filename}, nil
}

func stringField(raw map[string]json.RawMessage, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Retriever copies objects from object storage into a local staging directory.
type Retriever struct {
	log   *logger.Logger
	store objectstore.Reader
	dir   string
}

func New(log *logger.Logger, store objectstore.Reader, stagingDir string) *Retriever {
	if log == nil {
		log = logger.NewNop()
	}
	if strings.TrimSpace(stagingDir) == "" {
		stagingDir = os.TempDir()
	}
	return &Retriever{log: log.With("component", "FileRetriever"), store: store, dir: stagingDir}
}

// Fetch downloads req and stages it. The returned file is owned by the caller,
// who must remove it once extraction is done.
func (r *Retriever) Fetch(ctx context.Context, req Request) (document.StagedFile, error) {
	if r.store == nil {
		return document.StagedFile{}, fmt.Errorf("fetch %s/%s: object store not configured", req.Bucket, req.Filename)
	}
	rc, err := r.store.Open(ctx, req.Bucket, req.Filename)
	if err != nil {
		return document.StagedFile{}, fmt.Errorf("fetch %s/%s: %w", req.Bucket, req.Filename, err)
	}
	defer rc.Close()

	staged, err := r.Stage(req.Filename, rc)
	if err != nil {
		return document.StagedFile{}, err
	}
	staged.Bucket = req.Bucket
	r.log.Debug("Staged object", "bucket", req.Bucket, "filename", req.Filename, "path", staged.Path, "bytes", staged.Size)
	return staged, nil
}

// Stage writes src verbatim to the staging path derived from filename.
// Same-name stages overwrite each other.
func (r *Retriever) Stage(filename string, src io.Reader) (document.StagedFile, error) {
	path := StagePath(r.dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return document.StagedFile{}, fmt.Errorf("create staging dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return document.StagedFile{}, fmt.Errorf("create staged file: %w", err)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return document.StagedFile{}, fmt.Errorf("write staged file %s: %w", path, err)
	}
	name := TrimQuotes(filename)
	return document.StagedFile{
		Filename: name,
		Path:     path,
		Type:     document.FileTypeFromName(name),
		Size:     n,
	}, nil
}

// TrimQuotes strips surrounding double quotes some producers leave on filenames.
func TrimQuotes(filename string) string {
	return strings.Trim(strings.TrimSpace(filename), `"`)
}

// StagePath maps filename into dir. The name is cleaned as an absolute path first
// so ".." segments can never escape dir.
func StagePath(dir, filename string) string {
	return filepath.Join(dir, filepath.Clean("/"+TrimQuotes(filename)))
}

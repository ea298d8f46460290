// Package pipeline runs one queue message through the ingestion steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/extractor"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/forward"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/points"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/retriever"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/status"
	"github.com/agentcloud/vector-db-proxy/internal/observability"
	"github.com/agentcloud/vector-db-proxy/internal/platform/ctxutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

type Retriever interface {
	Fetch(ctx context.Context, req retriever.Request) (document.StagedFile, error)
	Stage(filename string, src io.Reader) (document.StagedFile, error)
}

type Extractor interface {
	Extract(ctx context.Context, file document.StagedFile) (extractor.Result, error)
}

type Chunker interface {
	Chunk(ctx context.Context, ft document.FileType, text string, meta map[string]string, strategy string) ([]document.Chunk, error)
}

// Forwarder receives structured payloads that do not reference a file.
type Forwarder interface {
	Process(ctx context.Context, dataSourceID, body string) (forward.Result, error)
}

// Outcome describes what happened to one message. Err carries an absorbed
// failure for logging; it is not returned unless the upsert failed.
type Outcome struct {
	DataSourceID string
	Bucket       string
	Filename     string
	FileType     document.FileType
	Status       string
	Unsupported  bool
	Chunks       int
	Points       int
	Skipped      int
	Metadata     map[string]string
	Err          error
}

// Forward path statuses. Upload statuses live in the status package.
const (
	StatusForwarded     = "forwarded"
	StatusForwardFailed = "forward_failed"
	StatusDropped       = "dropped"
)

type Deps struct {
	Log       *logger.Logger
	Retriever Retriever
	Extractor Extractor
	Chunker   Chunker
	Writer    vectorstore.Writer
	Forwarder Forwarder
	Recorder  status.Recorder
	Metrics   *observability.Metrics
	// Strategy names the chunking strategy; empty uses the chunker default.
	Strategy string
	// SourceMetadata adds filename, bucket and file_type to the document
	// metadata when the extractor did not set them.
	SourceMetadata bool
}

type Pipeline struct {
	log       *logger.Logger
	retriever Retriever
	extractor Extractor
	chunker   Chunker
	writer    vectorstore.Writer
	forwarder Forwarder
	recorder  status.Recorder
	metrics   *observability.Metrics
	strategy  string
	sourceMD  bool
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Retriever == nil || deps.Extractor == nil || deps.Chunker == nil || deps.Writer == nil {
		return nil, errors.New("pipeline: retriever, extractor, chunker and writer are required")
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	rec := deps.Recorder
	if rec == nil {
		rec = status.Nop{}
	}
	return &Pipeline{
		log:       log.With("component", "IngestPipeline"),
		retriever: deps.Retriever,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		writer:    deps.Writer,
		forwarder: deps.Forwarder,
		recorder:  rec,
		metrics:   deps.Metrics,
		strategy:  deps.Strategy,
		sourceMD:  deps.SourceMetadata,
	}, nil
}

// HandleUpload processes a file-upload message. Only a failed bulk upsert is
// returned as an error; every other failure ends the branch and is logged.
func (p *Pipeline) HandleUpload(ctx context.Context, dataSourceID string, body []byte) (Outcome, error) {
	started := time.Now()
	out := Outcome{DataSourceID: dataSourceID}
	defer p.record(ctx, &out, started)

	req, err := retriever.ParseRequest(body)
	if err != nil {
		out.Status, out.Err = status.StatusInvalidBody, err
		p.logFor(ctx).Warn("Dropping upload with invalid body", "datasource_id", dataSourceID, "error", err)
		return out, nil
	}
	out.Bucket, out.Filename = req.Bucket, retriever.TrimQuotes(req.Filename)

	staged, err := p.fetch(ctx, req)
	if err != nil {
		out.Status, out.Err = status.StatusFetchFailed, err
		p.logFor(ctx).Error("Object fetch failed", "datasource_id", dataSourceID, "bucket", req.Bucket, "filename", req.Filename, "error", err)
		return out, nil
	}
	return p.ingestStaged(ctx, &out, staged)
}

// IngestFile copies a local file into staging and runs it through the upload
// steps. The original file is never removed.
func (p *Pipeline) IngestFile(ctx context.Context, dataSourceID, path string) (Outcome, error) {
	started := time.Now()
	out := Outcome{DataSourceID: dataSourceID, Filename: filepath.Base(path)}
	defer p.record(ctx, &out, started)

	f, err := os.Open(path)
	if err != nil {
		out.Status, out.Err = status.StatusFetchFailed, err
		return out, fmt.Errorf("open %s: %w", path, err)
	}
	staged, err := p.retriever.Stage(out.Filename, f)
	_ = f.Close()
	if err != nil {
		out.Status, out.Err = status.StatusFetchFailed, err
		return out, err
	}
	return p.ingestStaged(ctx, &out, staged)
}

func (p *Pipeline) fetch(ctx context.Context, req retriever.Request) (staged document.StagedFile, err error) {
	ctx, span := observability.StartSpan(ctx, "ingest.retrieve",
		attribute.String("bucket", req.Bucket),
		attribute.String("filename", req.Filename),
	)
	defer func(t time.Time) {
		p.metrics.ObserveStep("retrieve", err, time.Since(t))
		observability.EndSpan(span, err)
	}(time.Now())
	return p.retriever.Fetch(ctx, req)
}

func (p *Pipeline) ingestStaged(ctx context.Context, out *Outcome, staged document.StagedFile) (Outcome, error) {
	out.FileType = staged.Type
	log := p.logFor(ctx).With("datasource_id", out.DataSourceID, "filename", out.Filename, "file_type", staged.Type)

	res, err := p.extract(ctx, staged)
	if err != nil {
		out.Err = err
		log.Error("Extraction failed, treating document as empty", "error", err)
	}
	if res.Unsupported {
		out.Status, out.Unsupported = status.StatusUnsupported, true
		log.Info("File type has no extractor, skipping")
		return *out, nil
	}
	doc := res.Document
	out.Status = status.StatusExtracted
	if doc.Empty() {
		log.Info("Document produced no text")
		return *out, nil
	}
	meta := document.CloneMetadata(doc.Metadata)
	if p.sourceMD {
		setDefault(meta, document.MetaFilenameKey, out.Filename)
		setDefault(meta, document.MetaBucketKey, out.Bucket)
		setDefault(meta, document.MetaFileTypeKey, staged.Type.String())
	}
	out.Metadata = meta

	chunks, err := p.chunk(ctx, staged.Type, doc.Text, meta)
	if err != nil {
		out.Err = err
		log.Error("Chunking failed, no chunks produced", "error", err)
		chunks = nil
	}
	out.Status, out.Chunks = status.StatusChunked, len(chunks)

	built := points.Build(out.DataSourceID, out.Filename, chunks)
	out.Skipped = built.Skipped
	p.metrics.AddSkipped(built.Skipped)
	if built.Skipped > 0 {
		log.Warn("Chunks without embedding skipped", "skipped", built.Skipped, "chunks", len(chunks))
	}
	if len(built.Points) == 0 {
		log.Info("No points to write")
		return *out, nil
	}

	if err := p.upsert(ctx, out.DataSourceID, built.Points); err != nil {
		out.Status, out.Err = status.StatusUpsertFailed, err
		log.Error("Bulk upsert failed", "points", len(built.Points), "error", err)
		return *out, err
	}
	out.Status, out.Points = status.StatusUpserted, len(built.Points)
	p.metrics.AddPoints(out.Points)
	log.Info("File ingested", "chunks", out.Chunks, "points", out.Points)
	return *out, nil
}

func (p *Pipeline) extract(ctx context.Context, staged document.StagedFile) (res extractor.Result, err error) {
	ctx, span := observability.StartSpan(ctx, "ingest.extract",
		attribute.String("file_type", staged.Type.String()),
		attribute.Int64("bytes", staged.Size),
	)
	defer func(t time.Time) {
		p.metrics.ObserveStep("extract", err, time.Since(t))
		observability.EndSpan(span, err)
	}(time.Now())
	return p.extractor.Extract(ctx, staged)
}

func (p *Pipeline) chunk(ctx context.Context, ft document.FileType, text string, meta map[string]string) (chunks []document.Chunk, err error) {
	ctx, span := observability.StartSpan(ctx, "ingest.chunk", attribute.Int("text_len", len(text)))
	defer func(t time.Time) {
		p.metrics.ObserveStep("chunk", err, time.Since(t))
		span.SetAttributes(attribute.Int("chunks", len(chunks)))
		observability.EndSpan(span, err)
	}(time.Now())
	return p.chunker.Chunk(ctx, ft, text, meta, p.strategy)
}

func (p *Pipeline) upsert(ctx context.Context, collection string, pts []vectorstore.Point) (err error) {
	ctx, span := observability.StartSpan(ctx, "ingest.upsert",
		attribute.String("collection", collection),
		attribute.Int("points", len(pts)),
	)
	defer func(t time.Time) {
		p.metrics.ObserveStep("upsert", err, time.Since(t))
		observability.EndSpan(span, err)
	}(time.Now())
	return p.writer.BulkUpsert(ctx, collection, pts)
}

// HandleForward passes a structured payload to the forwarder. Failures are
// reported on the Outcome only; the message was acknowledged before this runs.
func (p *Pipeline) HandleForward(ctx context.Context, dataSourceID, body string) Outcome {
	out := Outcome{DataSourceID: dataSourceID, Status: StatusForwarded}
	if p.forwarder == nil {
		out.Status = StatusDropped
		p.logFor(ctx).Warn("No forward processor configured, dropping payload", "datasource_id", dataSourceID, "bytes", len(body))
		return out
	}
	ctx, span := observability.StartSpan(ctx, "ingest.forward",
		attribute.String("collection", dataSourceID),
		attribute.Int("bytes", len(body)),
	)
	started := time.Now()
	res, err := p.forwarder.Process(ctx, dataSourceID, body)
	p.metrics.ObserveStep("forward", err, time.Since(started))
	observability.EndSpan(span, err)

	out.Chunks, out.Points, out.Skipped = res.Records, res.Points, res.Skipped
	p.metrics.AddSkipped(res.Skipped)
	if err != nil {
		out.Status, out.Err = StatusForwardFailed, err
		p.logFor(ctx).Error("Forward processing failed", "datasource_id", dataSourceID, "error", err)
		return out
	}
	p.metrics.AddPoints(res.Points)
	p.logFor(ctx).Debug("Forward payload processed", "datasource_id", dataSourceID, "records", res.Records, "points", res.Points)
	return out
}

func (p *Pipeline) record(ctx context.Context, out *Outcome, started time.Time) {
	row := &status.FileIngestion{
		DataSourceID: out.DataSourceID,
		Bucket:       out.Bucket,
		Filename:     out.Filename,
		FileType:     out.FileType.String(),
		Status:       out.Status,
		Chunks:       out.Chunks,
		Points:       out.Points,
		Skipped:      out.Skipped,
		Metadata:     status.MetadataJSON(out.Metadata),
		StartedAt:    started.UTC(),
		FinishedAt:   time.Now().UTC(),
	}
	if out.Err != nil {
		row.Error = out.Err.Error()
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), row); err != nil {
		p.log.Warn("Failed to record ingestion status", "datasource_id", out.DataSourceID, "filename", out.Filename, "error", err)
	}
}

func (p *Pipeline) logFor(ctx context.Context) *logger.Logger {
	if dd := ctxutil.GetDeliveryData(ctx); dd != nil && dd.DeliveryID != "" {
		return p.log.With("delivery_id", dd.DeliveryID)
	}
	return p.log
}

func setDefault(md map[string]string, key, val string) {
	if val == "" {
		return
	}
	if _, ok := md[key]; !ok {
		md[key] = val
	}
}

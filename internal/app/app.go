package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	httpapi "github.com/agentcloud/vector-db-proxy/internal/http"
	httpH "github.com/agentcloud/vector-db-proxy/internal/http/handlers"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/chunker"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/extractor"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/forward"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/pipeline"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/retriever"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/status"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/subscriber"
	"github.com/agentcloud/vector-db-proxy/internal/observability"
	"github.com/agentcloud/vector-db-proxy/internal/platform/embedding"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/queue"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

var newEmbedder = func(log *logger.Logger, cfg embedding.Config) (embedding.Provider, error) {
	return embedding.NewOpenAI(log, cfg)
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Metrics  *observability.Metrics
	Pipeline *pipeline.Pipeline

	store    vectorstore.Store
	recorder status.Recorder
	broker   queue.Broker
}

// New wires everything except the queue broker, which Run connects so that
// one-shot file ingestion works without a queue.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	metrics := observability.Init(log)

	reader, err := resolveObjectReader(ctx, log, cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, err := resolveVectorStore(ctx, log, cfg.Qdrant)
	if err != nil {
		return nil, err
	}
	handle := vectorstore.NewHandle(
		log,
		store,
		vectorstore.WithCreateMissing(cfg.Qdrant.CreateCollections),
		vectorstore.WithDistance(cfg.Qdrant.Distance),
	)

	emb, err := newEmbedder(log, cfg.Embedding)
	if err != nil {
		closeIfCloser(log, "vector_store", store)
		return nil, &BootstrapError{Code: BootstrapErrorInitFailed, Component: "embedding", Provider: cfg.Embedding.Model, Cause: err}
	}

	recorder, err := status.Open(log, cfg.Status)
	if err != nil {
		closeIfCloser(log, "vector_store", store)
		return nil, &BootstrapError{Code: BootstrapErrorInitFailed, Component: "status_store", Provider: string(cfg.Status.Driver), Cause: err}
	}

	chunk := chunker.New(log, emb, cfg.Chunking)
	p, err := pipeline.New(pipeline.Deps{
		Log:            log,
		Retriever:      retriever.New(log, reader, cfg.StagingDir),
		Extractor:      extractor.NewRegistry(log),
		Chunker:        chunk,
		Writer:         handle,
		Forwarder:      forward.NewProcessor(log, emb, handle),
		Recorder:       recorder,
		Metrics:        metrics,
		Strategy:       cfg.Chunking.Strategy,
		SourceMetadata: cfg.SourceMetadata,
	})
	if err != nil {
		closeIfCloser(log, "vector_store", store)
		closeIfCloser(log, "status_store", recorder)
		return nil, err
	}

	log.Info(
		"Ingestion pipeline ready",
		"staging_dir", cfg.StagingDir,
		"chunking_strategy", chunk.DefaultStrategy(),
		"status_driver", cfg.Status.Driver,
		"source_metadata", cfg.SourceMetadata,
	)
	return &App{
		Log:      log,
		Cfg:      cfg,
		Metrics:  metrics,
		Pipeline: p,
		store:    store,
		recorder: recorder,
	}, nil
}

// Run consumes the queue and serves HTTP until ctx ends or the subscriber
// stops. The subscriber's error, if any, is returned.
func (a *App) Run(ctx context.Context) error {
	broker, err := resolveBroker(a.Log, a.Cfg)
	if err != nil {
		return err
	}
	a.broker = broker

	sub := subscriber.New(a.Log, broker, a.Pipeline, a.Cfg.Subscriber, a.Metrics)
	routerCfg := httpapi.RouterConfig{
		Log:           a.Log,
		ServiceName:   a.Cfg.ServiceName,
		HealthHandler: httpH.NewHealthHandler(sub.Ready),
		Metrics:       a.Metrics,
	}
	if lister, ok := a.recorder.(httpH.IngestionLister); ok {
		routerCfg.IngestionHandler = httpH.NewIngestionHandler(lister)
	}
	server := httpapi.NewServer(routerCfg)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		if err := sub.Run(gctx); err != nil {
			return fmt.Errorf("subscriber: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := server.Run(gctx, a.Cfg.HTTPAddr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// IngestFile runs the upload path for a local file.
func (a *App) IngestFile(ctx context.Context, dataSourceID, path string) (pipeline.Outcome, error) {
	return a.Pipeline.IngestFile(ctx, dataSourceID, path)
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for name, c := range map[string]any{
		"queue":        a.broker,
		"vector_store": a.store,
		"status_store": a.recorder,
	} {
		if cl, ok := c.(interface{ Close() error }); ok && cl != nil {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}

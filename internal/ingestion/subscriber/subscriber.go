// Package subscriber drives the ingestion pipeline from a queue subscription.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"github.com/agentcloud/vector-db-proxy/internal/ingestion/classifier"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/pipeline"
	"github.com/agentcloud/vector-db-proxy/internal/observability"
	"github.com/agentcloud/vector-db-proxy/internal/platform/ctxutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/envutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/queue"
)

// Handler is the per-message work behind the loop.
type Handler interface {
	HandleUpload(ctx context.Context, dataSourceID string, body []byte) (pipeline.Outcome, error)
	HandleForward(ctx context.Context, dataSourceID, body string) pipeline.Outcome
}

// AckMode controls when upload deliveries are acknowledged. Forward deliveries
// are always acknowledged before processing.
type AckMode string

const (
	// AckNone never acknowledges upload deliveries.
	AckNone AckMode = "none"
	// AckAfterProcess acknowledges once the upload branch has finished, whatever its outcome.
	AckAfterProcess AckMode = "after_process"
)

func ParseAckMode(raw string) (AckMode, error) {
	switch AckMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AckNone:
		return AckNone, nil
	case AckAfterProcess:
		return AckAfterProcess, nil
	default:
		return "", fmt.Errorf("unknown upload ack mode %q", raw)
	}
}

type Config struct {
	Binding queue.Binding
	// Driver labels metrics and logs only.
	Driver string
	// Workers > 1 processes deliveries on a bounded pool without ordering.
	Workers           int
	UploadAck         AckMode
	HaltOnUpsertError bool
	CancelTimeout     time.Duration
}

func ResolveConfigFromEnv() (Config, error) {
	ack, err := ParseAckMode(envutil.String("UPLOAD_ACK_MODE", string(AckNone)))
	if err != nil {
		return Config{}, err
	}
	return Config{
		Binding: queue.Binding{
			Exchange:     envutil.String("QUEUE_EXCHANGE", "agentcloud"),
			ExchangeType: envutil.String("QUEUE_EXCHANGE_TYPE", "direct"),
			Queue:        envutil.String("QUEUE_NAME", "streaming"),
			RoutingKey:   envutil.String("QUEUE_ROUTING_KEY", "key"),
			ConsumerTag:  envutil.String("QUEUE_CONSUMER_TAG", ""),
			Group:        envutil.String("QUEUE_GROUP", "vector-db-proxy"),
		},
		Workers:           envutil.Int("INGEST_WORKERS", 1),
		UploadAck:         ack,
		HaltOnUpsertError: envutil.Bool("HALT_ON_UPSERT_ERROR", false),
		CancelTimeout:     envutil.Duration("QUEUE_CANCEL_TIMEOUT", 10*time.Second),
	}, nil
}

type Subscriber struct {
	log     *logger.Logger
	broker  queue.Broker
	handler Handler
	cfg     Config
	metrics *observability.Metrics
	ready   atomic.Bool
}

func New(log *logger.Logger, broker queue.Broker, handler Handler, cfg Config, metrics *observability.Metrics) *Subscriber {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.UploadAck == "" {
		cfg.UploadAck = AckNone
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = 10 * time.Second
	}
	return &Subscriber{
		log:     log.With("component", "QueueSubscriber", "driver", cfg.Driver),
		broker:  broker,
		handler: handler,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Ready reports whether the subscription is currently consuming.
func (s *Subscriber) Ready() bool { return s.ready.Load() }

// Run consumes until ctx ends, the subscription closes, or an upsert fails with
// HaltOnUpsertError set. The subscription is cancelled on every exit path.
func (s *Subscriber) Run(ctx context.Context) (err error) {
	sub, err := s.broker.Subscribe(ctx, s.cfg.Binding)
	if err != nil {
		return fmt.Errorf("subscribe to %q: %w", s.cfg.Binding.Queue, err)
	}
	s.setReady(true)
	s.log.Info("Consuming",
		"exchange", s.cfg.Binding.Exchange,
		"queue", s.cfg.Binding.Queue,
		"routing_key", s.cfg.Binding.RoutingKey,
		"workers", s.cfg.Workers,
		"upload_ack", s.cfg.UploadAck,
		"halt_on_upsert_error", s.cfg.HaltOnUpsertError,
	)
	defer func() {
		s.setReady(false)
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CancelTimeout)
		defer cancel()
		if cerr := sub.Cancel(cancelCtx); cerr != nil {
			s.log.Warn("Subscription cancel failed", "error", cerr)
		}
		s.log.Info("Consumer stopped", "error", err)
	}()

	if s.cfg.Workers == 1 {
		return s.runSequential(ctx, sub)
	}
	return s.runPooled(ctx, sub)
}

func (s *Subscriber) runSequential(ctx context.Context, sub queue.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-sub.Deliveries():
			if !ok {
				return closedErr(sub)
			}
			if err := s.handle(ctx, d); err != nil {
				return err
			}
		}
	}
}

func (s *Subscriber) runPooled(ctx context.Context, sub queue.Subscription) error {
	pool, err := ants.NewPool(s.cfg.Workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		haltOnce sync.Once
		halt     = make(chan error, 1)
	)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-halt:
			return err
		case d, ok := <-sub.Deliveries():
			if !ok {
				return closedErr(sub)
			}
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				if err := s.handle(ctx, d); err != nil {
					haltOnce.Do(func() { halt <- err })
				}
			})
			if submitErr != nil {
				wg.Done()
				s.log.Error("Worker pool rejected delivery", "delivery_id", d.ID(), "error", submitErr)
			}
		}
	}
}

// handle runs one delivery. It returns an error only when the loop must stop.
func (s *Subscriber) handle(ctx context.Context, d queue.Delivery) (haltErr error) {
	s.metrics.InflightInc()
	defer s.metrics.InflightDec()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Message handler panic", "delivery_id", d.ID(), "panic", r)
			s.metrics.IncMessage("unknown", "panic")
			haltErr = nil
		}
	}()

	cls, ok := classifier.Classify(d.Headers())
	if !ok {
		s.log.Warn("Dropping message without usable stream header", "delivery_id", d.ID(), "headers", d.Headers())
		s.metrics.IncMessage("unknown", "invalid_stream")
		return nil
	}
	body := d.Body()
	if !utf8.Valid(body) {
		s.log.Warn("Dropping message with non UTF-8 body", "delivery_id", d.ID(), "datasource_id", cls.DataSourceID, "bytes", len(body))
		s.metrics.IncMessage(string(cls.Path), "invalid_body")
		return nil
	}

	ctx = ctxutil.WithDeliveryData(ctx, &ctxutil.DeliveryData{DeliveryID: d.ID(), DataSourceID: cls.DataSourceID})
	log := s.log.With("delivery_id", d.ID(), "datasource_id", cls.DataSourceID, "path", cls.Path)

	if cls.Path == classifier.PathForward {
		if err := d.Ack(ctx); err != nil {
			log.Warn("Ack failed", "error", err)
		}
		out := s.handler.HandleForward(ctx, cls.DataSourceID, string(body))
		s.metrics.IncMessage(string(cls.Path), out.Status)
		return nil
	}

	out, err := s.handler.HandleUpload(ctx, cls.DataSourceID, body)
	s.metrics.IncMessage(string(cls.Path), out.Status)
	if s.cfg.UploadAck == AckAfterProcess {
		if ackErr := d.Ack(ctx); ackErr != nil {
			log.Warn("Ack failed", "error", ackErr)
		}
	}
	if err != nil {
		if s.cfg.HaltOnUpsertError {
			log.Error("Upsert failed, stopping consumer", "error", err)
			return fmt.Errorf("upload %s: %w", cls.DataSourceID, err)
		}
		log.Error("Upsert failed, continuing", "error", err)
	}
	return nil
}

func (s *Subscriber) setReady(v bool) {
	s.ready.Store(v)
	s.metrics.SetSubscriptionActive(s.cfg.Driver, v)
}

func closedErr(sub queue.Subscription) error {
	if err := sub.Err(); err != nil && !errors.Is(err, queue.ErrSubscriptionClosed) {
		return err
	}
	return nil
}

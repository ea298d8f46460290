// Package kafka subscribes to a Kafka topic through a consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/queue"
)

type Config struct {
	Brokers  []string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

type Broker struct {
	log *logger.Logger
	cfg Config
}

func New(log *logger.Logger, cfg Config) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}
	return &Broker{log: log.With("component", "KafkaBroker"), cfg: cfg}, nil
}

func (b *Broker) Close() error { return nil }

// Subscribe reads bind.Queue as the topic with bind.Group as the consumer group.
func (b *Broker) Subscribe(ctx context.Context, bind queue.Binding) (queue.Subscription, error) {
	if bind.Queue == "" {
		return nil, errors.New("topic is required")
	}
	group := bind.Group
	if group == "" {
		group = "vector-db-proxy"
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.cfg.Brokers,
		GroupID:  group,
		Topic:    bind.Queue,
		MinBytes: b.cfg.MinBytes,
		MaxBytes: b.cfg.MaxBytes,
		MaxWait:  b.cfg.MaxWait,
	})
	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		Stream: queue.NewStream(),
		log:    b.log.With("topic", bind.Queue, "group", group),
		reader: reader,
		cancel: cancel,
	}
	go sub.pump(pumpCtx)
	sub.log.Info("Subscribed")
	return sub, nil
}

type subscription struct {
	*queue.Stream
	log    *logger.Logger
	reader *kafka.Reader
	cancel context.CancelFunc
}

func (s *subscription) pump(ctx context.Context) {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if s.Stopped() || errors.Is(err, context.Canceled) {
				s.Finish(nil)
				return
			}
			s.Finish(fmt.Errorf("fetch message: %w", err))
			return
		}
		if !s.Send(newDelivery(s.reader, m)) {
			s.Finish(nil)
			return
		}
	}
}

func (s *subscription) Cancel(_ context.Context) error {
	s.Stop()
	s.cancel()
	err := s.reader.Close()
	s.log.Info("Subscription cancelled")
	return err
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type delivery struct {
	commit  committer
	msg     kafka.Message
	headers map[string]string
}

func newDelivery(c committer, m kafka.Message) *delivery {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &delivery{commit: c, msg: m, headers: headers}
}

func (d *delivery) ID() string {
	return d.msg.Topic + "/" + strconv.Itoa(d.msg.Partition) + "/" + strconv.FormatInt(d.msg.Offset, 10)
}
func (d *delivery) Headers() map[string]string { return d.headers }
func (d *delivery) Body() []byte               { return d.msg.Value }

func (d *delivery) Ack(ctx context.Context) error {
	return d.commit.CommitMessages(ctx, d.msg)
}

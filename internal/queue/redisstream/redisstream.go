// Package redisstream subscribes to a Redis stream through a consumer group.
// The "body" field carries the message body; every other field is a header.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/queue"
)

const bodyField = "body"

type Config struct {
	Addr     string
	Password string
	DB       int
	Block    time.Duration
	Count    int64
}

type Broker struct {
	log *logger.Logger
	rdb *goredis.Client
	cfg Config
}

func New(log *logger.Logger, cfg Config) (*Broker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 16
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Broker{log: log.With("component", "RedisStreamBroker"), rdb: rdb, cfg: cfg}, nil
}

func (b *Broker) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// Subscribe reads bind.Queue as the stream key with bind.Group as the consumer group.
func (b *Broker) Subscribe(ctx context.Context, bind queue.Binding) (queue.Subscription, error) {
	if bind.Queue == "" {
		return nil, errors.New("stream key is required")
	}
	group := bind.Group
	if group == "" {
		group = "vector-db-proxy"
	}
	consumer := bind.ConsumerTag
	if consumer == "" {
		consumer = "vector-db-proxy"
	}
	if err := b.rdb.XGroupCreateMkStream(ctx, bind.Queue, group, "$").Err(); err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("create consumer group %q on %q: %w", group, bind.Queue, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		Stream:   queue.NewStream(),
		log:      b.log.With("stream", bind.Queue, "group", group, "consumer", consumer),
		rdb:      b.rdb,
		stream:   bind.Queue,
		group:    group,
		consumer: consumer,
		block:    b.cfg.Block,
		count:    b.cfg.Count,
		cancel:   cancel,
	}
	go sub.pump(pumpCtx)
	sub.log.Info("Subscribed")
	return sub, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

type subscription struct {
	*queue.Stream
	log      *logger.Logger
	rdb      *goredis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	count    int64
	cancel   context.CancelFunc
}

func (s *subscription) pump(ctx context.Context) {
	for {
		res, err := s.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    s.count,
			Block:    s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if s.Stopped() || errors.Is(err, context.Canceled) {
				s.Finish(nil)
				return
			}
			s.Finish(fmt.Errorf("xreadgroup: %w", err))
			return
		}
		for _, st := range res {
			for _, m := range st.Messages {
				if !s.Send(newDelivery(s, m)) {
					s.Finish(nil)
					return
				}
			}
		}
	}
}

func (s *subscription) Cancel(_ context.Context) error {
	s.Stop()
	s.cancel()
	s.log.Info("Subscription cancelled")
	return nil
}

func (s *subscription) ack(ctx context.Context, id string) error {
	return s.rdb.XAck(ctx, s.stream, s.group, id).Err()
}

type acker interface {
	ack(ctx context.Context, id string) error
}

type delivery struct {
	acker   acker
	id      string
	headers map[string]string
	body    []byte
}

func newDelivery(a acker, m goredis.XMessage) *delivery {
	d := &delivery{acker: a, id: m.ID, headers: make(map[string]string, len(m.Values))}
	for k, v := range m.Values {
		if k == bodyField {
			d.body = []byte(queue.HeaderString(v))
			continue
		}
		d.headers[k] = queue.HeaderString(v)
	}
	return d
}

func (d *delivery) ID() string                 { return d.id }
func (d *delivery) Headers() map[string]string { return d.headers }
func (d *delivery) Body() []byte               { return d.body }

func (d *delivery) Ack(ctx context.Context) error {
	return d.acker.ack(ctx, d.id)
}

// Package amqp subscribes to a RabbitMQ queue bound to an exchange.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/queue"
)

type Config struct {
	URL string
	// Prefetch of 0 leaves the channel unlimited. Deliveries that are never
	// acknowledged count against a non-zero prefetch forever.
	Prefetch int
}

type Broker struct {
	log  *logger.Logger
	conn *amqp.Connection
	cfg  Config
}

func Dial(log *logger.Logger, cfg Config) (*Broker, error) {
	if cfg.URL == "" {
		return nil, errors.New("AMQP_URL (or RABBITMQ_HOST with RABBITMQ_USERNAME/RABBITMQ_PASSWORD) is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	b := &Broker{log: log.With("component", "AMQPBroker"), conn: conn, cfg: cfg}
	b.log.Info("Connected to RabbitMQ", "host", redactURL(cfg.URL), "prefetch", cfg.Prefetch)
	return b, nil
}

func (b *Broker) Close() error {
	if b == nil || b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}

func (b *Broker) Subscribe(ctx context.Context, bind queue.Binding) (queue.Subscription, error) {
	if bind.Queue == "" {
		return nil, errors.New("queue name is required")
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if b.cfg.Prefetch > 0 {
		if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	if bind.Exchange != "" {
		kind := bind.ExchangeType
		if kind == "" {
			kind = amqp.ExchangeDirect
		}
		if err := ch.ExchangeDeclare(bind.Exchange, kind, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("declare exchange %q: %w", bind.Exchange, err)
		}
	}
	q, err := ch.QueueDeclare(bind.Queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %q: %w", bind.Queue, err)
	}
	if bind.Exchange != "" {
		if err := ch.QueueBind(q.Name, bind.RoutingKey, bind.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("bind queue %q to %q: %w", q.Name, bind.Exchange, err)
		}
	}

	tag := bind.ConsumerTag
	if tag == "" {
		tag = "vector-db-proxy-" + uuid.NewString()
	}
	src, err := ch.ConsumeWithContext(ctx, q.Name, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %q: %w", q.Name, err)
	}

	sub := &subscription{
		Stream: queue.NewStream(),
		log:    b.log.With("queue", q.Name, "consumer_tag", tag),
		ch:     ch,
		tag:    tag,
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go sub.pump(src, closed)

	sub.log.Info(
		"Subscribed",
		"exchange", bind.Exchange,
		"routing_key", bind.RoutingKey,
	)
	return sub, nil
}

type subscription struct {
	*queue.Stream
	log *logger.Logger
	ch  *amqp.Channel
	tag string
}

func (s *subscription) pump(src <-chan amqp.Delivery, closed <-chan *amqp.Error) {
	for {
		select {
		case <-s.Done():
			s.Finish(nil)
			return
		case d, ok := <-src:
			if !ok {
				var err error = queue.ErrSubscriptionClosed
				select {
				case amqpErr := <-closed:
					if amqpErr != nil {
						err = amqpErr
					}
				default:
				}
				s.Finish(err)
				return
			}
			if !s.Send(newDelivery(d)) {
				s.Finish(nil)
				return
			}
		}
	}
}

func (s *subscription) Cancel(_ context.Context) error {
	s.Stop()
	var errs []error
	if err := s.ch.Cancel(s.tag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("cancel consumer: %w", err))
	}
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	s.log.Info("Subscription cancelled")
	return errors.Join(errs...)
}

type delivery struct {
	raw     amqp.Delivery
	headers map[string]string
}

func newDelivery(d amqp.Delivery) *delivery {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = queue.HeaderString(v)
	}
	return &delivery{raw: d, headers: headers}
}

func (d *delivery) ID() string                 { return strconv.FormatUint(d.raw.DeliveryTag, 10) }
func (d *delivery) Headers() map[string]string { return d.headers }
func (d *delivery) Body() []byte               { return d.raw.Body }

func (d *delivery) Ack(_ context.Context) error {
	return d.raw.Ack(false)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}

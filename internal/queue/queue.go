// Package queue defines the broker-neutral subscription contract the ingestion
// loop consumes. Drivers live in subpackages.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Delivery is one message received from a broker.
type Delivery interface {
	// ID is a broker-specific identifier used only for logging.
	ID() string
	Headers() map[string]string
	Body() []byte
	Ack(ctx context.Context) error
}

// Subscription is a pull-style stream of deliveries in receive order.
// Deliveries is closed when the broker side ends the stream or Cancel is called.
type Subscription interface {
	Deliveries() <-chan Delivery
	// Err reports why Deliveries closed, or nil after a clean Cancel.
	Err() error
	Cancel(ctx context.Context) error
}

// Binding names where a subscription reads from. Drivers interpret fields
// they understand and ignore the rest.
type Binding struct {
	Exchange     string
	ExchangeType string
	Queue        string
	RoutingKey   string
	ConsumerTag  string
	Group        string
}

type Broker interface {
	Subscribe(ctx context.Context, b Binding) (Subscription, error)
	Close() error
}

var ErrSubscriptionClosed = errors.New("subscription closed")

// HeaderString renders a broker header value as text. Byte slices are
// decoded as UTF-8; other scalars use their default formatting.
func HeaderString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

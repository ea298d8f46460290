package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeCommitter struct {
	committed []kafka.Message
}

func (f *fakeCommitter) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func TestNewDeliveryMapsHeadersAndCommits(t *testing.T) {
	fc := &fakeCommitter{}
	d := newDelivery(fc, kafka.Message{
		Topic:     "streaming",
		Partition: 2,
		Offset:    17,
		Headers: []kafka.Header{
			{Key: "stream", Value: []byte("ds1_conn")},
		},
		Value: []byte(`{"id":1}`),
	})

	if d.ID() != "streaming/2/17" {
		t.Fatalf("ID: want=%q got=%q", "streaming/2/17", d.ID())
	}
	if d.Headers()["stream"] != "ds1_conn" {
		t.Fatalf("stream header: got=%q", d.Headers()["stream"])
	}
	if _, ok := d.Headers()["type"]; ok {
		t.Fatalf("type header must be absent")
	}
	if err := d.Ack(context.Background()); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if len(fc.committed) != 1 || fc.committed[0].Offset != 17 {
		t.Fatalf("committed: got=%v", fc.committed)
	}
}

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatalf("New: want error for empty brokers")
	}
}

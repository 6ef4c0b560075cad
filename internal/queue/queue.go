// Package queue defines the durable hand-off between the collector and the
// ingest stage. Delivery is at-least-once: a message that is not acked is
// redelivered, so every consumer must be safe to run more than once for the
// same message.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pwieczorek/newsrelay/internal/news"
)

// Message is the envelope carried across the broker.
type Message struct {
	// IdempotencyKey is the hash of the draft's canonical source URL. It
	// travels with the message so that redelivery is safe to process.
	IdempotencyKey string            `json:"idempotency_key"`
	Draft          news.ArticleDraft `json:"draft"`
	// Attempt counts broker deliveries of this message, starting at 1.
	Attempt int `json:"attempt"`
}

// Encode serializes the envelope for the wire.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal queue message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses a wire envelope.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("unmarshal queue message: %w", err)
	}
	return m, nil
}

// Publisher sends messages to the broker. Publish returns only after the
// broker has accepted the message durably.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Delivery is one received message plus its settlement handles. Exactly one
// of Ack or Nack must be called; Nack (or neither, after the visibility
// timeout) causes redelivery.
type Delivery interface {
	Message() Message
	Ack()
	Nack()
}

// Consumer pulls messages and invokes the handler for each. Receive blocks
// until the context ends.
type Consumer interface {
	Receive(ctx context.Context, handle func(context.Context, Delivery)) error
	Close() error
}

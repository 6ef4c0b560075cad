// Package pubsub binds the queue contracts to Google Cloud Pub/Sub. The
// topic and subscription are durable; the subscription must use manual
// acknowledgment, and an expired ack deadline or a nack causes redelivery.
package pubsub

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/pwieczorek/newsrelay/internal/queue"
)

// Publisher publishes queue messages to a Pub/Sub topic.
type Publisher struct {
	topic *gcppubsub.Topic
}

// NewPublisher verifies the topic exists and returns a Publisher. A missing
// topic is a startup error, not something to degrade around.
func NewPublisher(ctx context.Context, client *gcppubsub.Client, topicID string) (*Publisher, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{topic: topic}, nil
}

// Publish sends the message and waits for the broker to accept it, so that
// a crash after Publish returns cannot lose the article.
func (p *Publisher) Publish(ctx context.Context, msg queue.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &gcppubsub.Message{
		Data:       data,
		Attributes: map[string]string{"idempotency_key": msg.IdempotencyKey},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	return nil
}

// Close flushes pending publishes.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return nil
}

// Consumer receives queue messages from a Pub/Sub subscription.
type Consumer struct {
	sub    *gcppubsub.Subscription
	logger *zap.Logger
}

// NewConsumer verifies the subscription exists and returns a Consumer.
func NewConsumer(
	ctx context.Context,
	client *gcppubsub.Client,
	subscriptionID string,
	maxOutstanding int,
	logger *zap.Logger,
) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscription(subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %s: %w", subscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub subscription %q does not exist", subscriptionID)
	}
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	return &Consumer{sub: sub, logger: logger}, nil
}

// Receive pulls messages until the context ends. Messages that cannot be
// decoded are acked and dropped: redelivering a malformed envelope can never
// succeed.
func (c *Consumer) Receive(ctx context.Context, handle func(context.Context, queue.Delivery)) error {
	err := c.sub.Receive(ctx, func(msgCtx context.Context, m *gcppubsub.Message) {
		msg, decErr := queue.DecodeMessage(m.Data)
		if decErr != nil {
			c.logger.Error("dropping undecodable queue message",
				zap.String("message_id", m.ID), zap.Error(decErr))
			m.Ack()
			return
		}
		if m.DeliveryAttempt != nil {
			msg.Attempt = *m.DeliveryAttempt
		} else if msg.Attempt == 0 {
			msg.Attempt = 1
		}
		handle(msgCtx, &delivery{msg: msg, raw: m})
	})
	if err != nil {
		return fmt.Errorf("receive from %s: %w", c.sub.ID(), err)
	}
	return nil
}

// Close is a no-op; the subscription handle holds no resources beyond the
// shared client.
func (c *Consumer) Close() error { return nil }

type delivery struct {
	msg queue.Message
	raw *gcppubsub.Message
}

func (d *delivery) Message() queue.Message { return d.msg }
func (d *delivery) Ack()                   { d.raw.Ack() }
func (d *delivery) Nack()                  { d.raw.Nack() }

// Package memory implements an in-process broker with at-least-once
// semantics: unacked deliveries are requeued after a visibility timeout,
// nacked deliveries immediately. Used by tests and the single-process run
// mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pwieczorek/newsrelay/internal/queue"
)

type entry struct {
	id      string
	msg     queue.Message
	attempt int
}

// Broker is a bounded in-memory queue with redelivery.
type Broker struct {
	ch         chan *entry
	visibility time.Duration

	mu     sync.Mutex
	closed bool
}

// NewBroker constructs a broker with the given capacity and visibility
// timeout for unsettled deliveries.
func NewBroker(capacity int, visibility time.Duration) *Broker {
	if capacity <= 0 {
		capacity = 1024
	}
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Broker{
		ch:         make(chan *entry, capacity),
		visibility: visibility,
	}
}

// Publish enqueues a message or returns when the context ends.
func (b *Broker) Publish(ctx context.Context, msg queue.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("broker closed")
	}
	b.mu.Unlock()

	e := &entry{id: uuid.NewString(), msg: msg, attempt: 0}
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish: %w", ctx.Err())
	case b.ch <- e:
		return nil
	}
}

// Receive pulls deliveries and invokes handle for each until the context
// ends. Handlers run synchronously in the receive loop.
func (b *Broker) Receive(ctx context.Context, handle func(context.Context, queue.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-b.ch:
			if !ok {
				return errors.New("broker closed")
			}
			e.attempt++
			handle(ctx, b.newDelivery(e))
		}
	}
}

func (b *Broker) newDelivery(e *entry) *delivery {
	d := &delivery{broker: b, entry: e}
	d.timer = time.AfterFunc(b.visibility, d.Nack)
	return d
}

// Close stops accepting publishes. Pending messages are dropped.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}

func (b *Broker) requeue(e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- e:
	default:
		// Queue full: the message is lost, which a durable broker would not
		// allow. Acceptable for an in-process test double.
	}
}

type delivery struct {
	broker *Broker
	entry  *entry
	timer  *time.Timer
	once   sync.Once
}

func (d *delivery) Message() queue.Message {
	msg := d.entry.msg
	msg.Attempt = d.entry.attempt
	return msg
}

func (d *delivery) Ack() {
	d.once.Do(func() {
		d.timer.Stop()
	})
}

func (d *delivery) Nack() {
	d.once.Do(func() {
		d.timer.Stop()
		d.broker.requeue(d.entry)
	})
}

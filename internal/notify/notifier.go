// Package notify defines the outbound channel contract for article
// announcements.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Message is one channel announcement.
type Message struct {
	Text     string
	PhotoURL string
}

// Notifier sends messages to the configured channel. Deliver returns nil only
// when the channel has confirmed the message.
type Notifier interface {
	Deliver(ctx context.Context, msg Message) error
}

// DeliveryError describes a failed channel send and whether retrying makes
// sense.
type DeliveryError struct {
	StatusCode int
	Retryable  bool
	// RetryAfter is the channel's requested pause, zero when it gave none.
	RetryAfter time.Duration
	Detail     string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("channel delivery failed: status %d: %s", e.StatusCode, e.Detail)
}

// RetryAfterDelay reports the channel's requested pause before the next
// attempt. The retry loop treats it as a minimum wait.
func (e *DeliveryError) RetryAfterDelay() time.Duration {
	return e.RetryAfter
}

// IsRetryable reports whether a delivery error is worth another attempt.
// Rate limits, server errors, and transport failures are transient; every
// other channel rejection is permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return true
}

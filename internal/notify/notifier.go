// README: Outbound notification fan-out; failures are logged, never fatal.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers one message to one recipient. Implementations decide
// what a recipient means (email address, webhook channel, phone number).
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, recipient, subject, body string) error

func (f Func) Notify(ctx context.Context, recipient, subject, body string) error {
	return f(ctx, recipient, subject, body)
}

// Noop discards every message. Used when a channel is not configured.
type Noop struct{}

func (Noop) Notify(context.Context, string, string, string) error { return nil }

// Multi delivers the same message through every channel. The first
// failure is returned but remaining channels are still attempted.
func Multi(ns ...Notifier) Notifier {
	return Func(func(ctx context.Context, recipient, subject, body string) error {
		var firstErr error
		for _, n := range ns {
			if err := n.Notify(ctx, recipient, subject, body); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}

// Absorb wraps a notifier so delivery failures are logged and swallowed.
// Notification problems must never fail the business operation that
// triggered them.
func Absorb(n Notifier, log *zap.Logger, channel string) Notifier {
	return Func(func(ctx context.Context, recipient, subject, body string) error {
		if err := n.Notify(ctx, recipient, subject, body); err != nil {
			log.Warn("notification delivery failed",
				zap.String("channel", channel),
				zap.String("recipient", recipient),
				zap.Error(err))
		}
		return nil
	})
}

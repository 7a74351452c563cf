// README: SMS notifier stub; logs the message until a gateway is wired in.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// SMSNotifier records outbound texts in the log. No SMS gateway is
// integrated yet; the notifier exists so the call sites stay in place.
type SMSNotifier struct {
	log *zap.Logger
}

func NewSMSNotifier(log *zap.Logger) *SMSNotifier {
	return &SMSNotifier{log: log}
}

func (s *SMSNotifier) Notify(_ context.Context, recipient, subject, body string) error {
	s.log.Info("sms notification (gateway not configured)",
		zap.String("to", recipient),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}

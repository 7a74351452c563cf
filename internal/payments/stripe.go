// README: Stripe checkout, webhook verification, and refunds.
package payments

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"checkride/internal/config"
	"checkride/internal/types"
)

// EventCheckoutCompleted is the only webhook event type the booking flow
// reacts to.
const EventCheckoutCompleted = "checkout.session.completed"

type StripeClient struct {
	cfg config.StripeConfig
	log *zap.Logger
}

func NewStripeClient(cfg config.StripeConfig, log *zap.Logger) *StripeClient {
	stripe.Key = cfg.SecretKey
	return &StripeClient{cfg: cfg, log: log}
}

// CheckoutSession is the subset of the created session the handlers need.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckout opens a Stripe checkout session for a pending booking. The
// pending id travels in session metadata so the webhook can recover the
// intent even if the pending store entry is gone.
func (c *StripeClient) CreateCheckout(pendingID string, pb PendingBooking, amount types.Money) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(c.cfg.SuccessURL),
		CancelURL:          stripe.String(c.cfg.CancelURL),
		CustomerEmail:      stripe.String(pb.StudentEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(amount.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Aviation Checkride Booking"),
						Description: stripe.String(fmt.Sprintf("%s checkride for %s %s",
							pb.ExamType, pb.StudentFirstName, pb.StudentLastName)),
					},
					UnitAmount: stripe.Int64(amount.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	// Stripe caps metadata values at 500 characters.
	params.AddMetadata("pendingId", pendingID)
	params.AddMetadata("studentFirstName", truncate(pb.StudentFirstName, 100))
	params.AddMetadata("studentLastName", truncate(pb.StudentLastName, 100))
	params.AddMetadata("studentEmail", truncate(pb.StudentEmail, 200))
	params.AddMetadata("examType", truncate(pb.ExamType, 50))
	params.AddMetadata("studentAddress", truncate(pb.StudentAddress, 100))

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	c.log.Info("stripe checkout session created",
		zap.String("session_id", s.ID),
		zap.String("pending_id", pendingID),
		zap.Int64("amount_cents", amount.Amount))
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// NewPendingID mints the key a checkout intent is parked under.
func NewPendingID() string {
	return "TEMP_" + uuid.NewString()
}

// VerifyWebhook authenticates and decodes a webhook delivery. Without a
// configured webhook secret the signature check is skipped; that mode is for
// local development against the Stripe CLI only.
func (c *StripeClient) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c.cfg.WebhookSecret == "" {
		c.log.Warn("webhook signature validation skipped, no secret configured")
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, fmt.Errorf("parse webhook event: %w", err)
		}
		return event, nil
	}
	event, err := webhook.ConstructEvent(payload, signatureHeader, c.cfg.WebhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("verify webhook signature: %w", err)
	}
	return event, nil
}

// GetSession fetches the full checkout session; webhook payloads carry a
// trimmed object and the metadata may be incomplete.
func (c *StripeClient) GetSession(id string) (*stripe.CheckoutSession, error) {
	s, err := session.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch checkout session %s: %w", id, err)
	}
	return s, nil
}

// Refund returns the full charge for a payment intent.
func (c *StripeClient) Refund(paymentIntentID string) error {
	_, err := refund.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	})
	if err != nil {
		return fmt.Errorf("refund payment intent %s: %w", paymentIntentID, err)
	}
	c.log.Info("refund issued", zap.String("payment_intent", paymentIntentID))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

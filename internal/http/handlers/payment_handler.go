// README: Stripe checkout and webhook handlers; booking creation happens on payment.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"checkride/internal/modules/booking"
	"checkride/internal/modules/pricing"
	"checkride/internal/payments"
	"checkride/internal/types"
)

// webhookBodyLimit guards against oversized payloads on the public endpoint.
const webhookBodyLimit = 1 << 16

type PaymentHandler struct {
	stripe   *payments.StripeClient
	pending  payments.PendingStore
	bookings *booking.Service
	pricing  *pricing.Service
	flow     *Flow
	log      *zap.Logger
}

func NewPaymentHandler(stripeClient *payments.StripeClient, pending payments.PendingStore, bookings *booking.Service, pricingSvc *pricing.Service, flow *Flow, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		stripe:   stripeClient,
		pending:  pending,
		bookings: bookings,
		pricing:  pricingSvc,
		flow:     flow,
		log:      log,
	}
}

// CreateCheckoutSession parks the booking intent and opens a Stripe checkout.
// No booking exists until the payment webhook confirms.
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := req.toBooking()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid preferred date, want YYYY-MM-DD")
		return
	}
	if b.StudentEmail == "" || b.ExamType == "" {
		writeError(c, http.StatusBadRequest, "studentEmail and checkRideType are required")
		return
	}

	ctx := c.Request.Context()
	amount, err := h.pricing.Quote(ctx, b.ExamType)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "pricing unavailable")
		return
	}

	pb := payments.PendingBooking{
		StudentFirstName:    b.StudentFirstName,
		StudentLastName:     b.StudentLastName,
		StudentEmail:        b.StudentEmail,
		StudentPhone:        b.StudentPhone,
		StudentAddress:      b.StudentAddress,
		ExamType:            b.ExamType,
		PreferredDate:       b.PreferredDate,
		PreferredTime:       b.PreferredTime,
		SpecialRequirements: b.SpecialRequirements,
		SearchRadiusKm:      b.SearchRadiusKm,
		AmountCents:         amount.Amount,
		Currency:            amount.Currency,
	}
	pendingID := payments.NewPendingID()
	if err := h.pending.Put(ctx, pendingID, pb); err != nil {
		h.log.Error("parking pending booking failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	session, err := h.stripe.CreateCheckout(pendingID, pb, amount)
	if err != nil {
		h.log.Error("checkout session creation failed", zap.Error(err))
		writeError(c, http.StatusBadGateway, "payment provider unavailable")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sessionId": session.ID, "url": session.URL})
}

// Webhook handles Stripe event deliveries. Stripe retries until it sees 2xx,
// so processing errors after the event is authenticated still return 200;
// the session claim makes redelivery safe.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable payload")
		return
	}

	event, err := h.stripe.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook rejected", zap.Error(err))
		writeError(c, http.StatusBadRequest, "invalid signature")
		return
	}

	if event.Type != payments.EventCheckoutCompleted {
		writeJSON(c, http.StatusOK, gin.H{"received": true})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.log.Error("webhook session decode failed", zap.Error(err))
		writeJSON(c, http.StatusOK, gin.H{"received": true})
		return
	}

	ctx := c.Request.Context()
	claimed, err := h.bookings.ClaimPaymentSession(ctx, session.ID)
	if err != nil {
		h.log.Error("session claim failed", zap.String("session_id", session.ID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if !claimed {
		writeJSON(c, http.StatusOK, gin.H{"received": true, "status": "already_processed"})
		return
	}

	// Webhook payloads carry a trimmed object; fetch the full session for
	// complete metadata and customer details.
	full, err := h.stripe.GetSession(session.ID)
	if err != nil {
		h.log.Warn("full session fetch failed, using webhook payload",
			zap.String("session_id", session.ID), zap.Error(err))
		full = &session
	}

	pb, ok := h.recoverIntent(c, full)
	if !ok {
		h.log.Error("no booking data recoverable for session",
			zap.String("session_id", session.ID))
		writeJSON(c, http.StatusOK, gin.H{"received": true, "status": "no_booking_data"})
		return
	}

	b := &booking.Booking{
		StudentFirstName:    pb.StudentFirstName,
		StudentLastName:     pb.StudentLastName,
		StudentEmail:        pb.StudentEmail,
		StudentPhone:        pb.StudentPhone,
		StudentAddress:      pb.StudentAddress,
		ExamType:            pb.ExamType,
		PreferredDate:       pb.PreferredDate,
		PreferredTime:       pb.PreferredTime,
		SpecialRequirements: pb.SpecialRequirements,
		SearchRadiusKm:      pb.SearchRadiusKm,
		Amount:              types.Money{Amount: pb.AmountCents, Currency: pb.Currency},
	}
	created, err := h.bookings.Create(ctx, b)
	if err != nil {
		h.log.Error("booking creation from webhook failed",
			zap.String("session_id", session.ID), zap.Error(err))
		writeJSON(c, http.StatusOK, gin.H{"received": true, "status": "booking_failed"})
		return
	}

	paymentIntentID := ""
	if full.PaymentIntent != nil {
		paymentIntentID = full.PaymentIntent.ID
	}
	if err := h.bookings.ApplyPayment(ctx, created.ID, session.ID, paymentIntentID); err != nil {
		h.log.Error("payment apply failed",
			zap.String("booking_id", string(created.ID)), zap.Error(err))
	}

	h.flow.Activate(ctx, created)
	writeJSON(c, http.StatusOK, gin.H{"received": true, "bookingId": created.ID})
}

// recoverIntent finds the booking intent for a paid session: the pending
// store first, then session metadata, then a minimal booking from the
// customer email so a paid student is never silently dropped.
func (h *PaymentHandler) recoverIntent(c *gin.Context, session *stripe.CheckoutSession) (payments.PendingBooking, bool) {
	ctx := c.Request.Context()

	if pendingID, ok := session.Metadata["pendingId"]; ok {
		pb, found, err := h.pending.Take(ctx, pendingID)
		if err != nil {
			h.log.Warn("pending store read failed", zap.String("pending_id", pendingID), zap.Error(err))
		}
		if found {
			return pb, true
		}
	}

	if len(session.Metadata) > 0 {
		h.log.Warn("pending entry missing, rebuilding intent from session metadata",
			zap.String("session_id", session.ID))
		email := session.CustomerEmail
		if email == "" {
			email = session.Metadata["studentEmail"]
		}
		examType := session.Metadata["examType"]
		if examType == "" {
			examType = "Private"
		}
		return payments.PendingBooking{
			StudentFirstName: session.Metadata["studentFirstName"],
			StudentLastName:  session.Metadata["studentLastName"],
			StudentEmail:     email,
			StudentAddress:   session.Metadata["studentAddress"],
			ExamType:         examType,
			PreferredDate:    time.Now().UTC().AddDate(0, 0, 7),
			SearchRadiusKm:   50,
			AmountCents:      session.AmountTotal,
			Currency:         string(session.Currency),
		}, true
	}

	if session.CustomerEmail != "" {
		h.log.Warn("no metadata at all, creating minimal booking from customer email",
			zap.String("session_id", session.ID))
		return payments.PendingBooking{
			StudentEmail:   session.CustomerEmail,
			ExamType:       "Private",
			PreferredDate:  time.Now().UTC().AddDate(0, 0, 7),
			SearchRadiusKm: 50,
			AmountCents:    session.AmountTotal,
			Currency:       string(session.Currency),
		}, true
	}
	return payments.PendingBooking{}, false
}

// README: Admin handlers for booking oversight, audit, diagnostics, and reset.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"checkride/internal/modules/booking"
	"checkride/internal/types"
)

// Refunder issues a payment-provider refund for a captured payment intent.
type Refunder interface {
	Refund(paymentIntentID string) error
}

type AdminHandler struct {
	bookings *booking.Service
	refunds  Refunder
	log      *zap.Logger
}

func NewAdminHandler(bookings *booking.Service, refunds Refunder, log *zap.Logger) *AdminHandler {
	return &AdminHandler{bookings: bookings, refunds: refunds, log: log}
}

func (h *AdminHandler) ListBookings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	bookings, err := h.bookings.ActiveBookings(c.Request.Context(), limit)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]gin.H, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, bookingView(b))
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": out, "count": len(out)})
}

func (h *AdminHandler) AuditTrail(c *gin.Context) {
	id := types.ID(c.Param("id"))
	entries, err := h.bookings.AuditTrail(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		row := gin.H{
			"action":      e.Action,
			"description": e.Description,
			"createdAt":   e.CreatedAt,
		}
		if e.ExaminerID != nil {
			row["examinerId"] = *e.ExaminerID
		}
		out = append(out, row)
	}
	writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "entries": out})
}

func (h *AdminHandler) Diagnostic(c *gin.Context) {
	diag, ok := h.bookings.Diagnostics()
	if !ok {
		writeError(c, http.StatusNotImplemented, "diagnostics not supported by this store")
		return
	}
	info, err := diag.Diagnostic(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"bookingId":         info.BookingID,
		"status":            info.Status,
		"assignedExaminer":  info.AssignedExaminer,
		"isPaid":            info.IsPaid,
		"responseCount":     info.ResponseCount,
		"acceptedResponses": info.AcceptedResponses,
		"declinedResponses": info.DeclinedResponses,
		"createdAt":         info.CreatedAt,
		"updatedAt":         info.UpdatedAt,
	})
}

// Reset replays a booking's assignment race. Support tooling only.
func (h *AdminHandler) Reset(c *gin.Context) {
	diag, ok := h.bookings.Diagnostics()
	if !ok {
		writeError(c, http.StatusNotImplemented, "reset not supported by this store")
		return
	}
	id := types.ID(c.Param("id"))
	if err := diag.ResetForTesting(c.Request.Context(), id); err != nil {
		writeBookingError(c, err)
		return
	}
	h.log.Warn("booking reset by admin", zap.String("booking_id", string(id)))
	writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "status": booking.StatusExaminersContacted})
}

// ProcessRefund refunds an assigned or scheduled booking end to end: the
// status moves to RefundRequested, the payment provider refund is issued,
// and the booking is finalized as Refunded. A provider failure leaves the
// booking in RefundRequested so the operation can be retried.
func (h *AdminHandler) ProcessRefund(c *gin.Context) {
	ctx := c.Request.Context()
	id := types.ID(c.Param("id"))

	b, err := h.bookings.Get(ctx, id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if b.Status != booking.StatusRefundRequested {
		if err := h.bookings.RequestRefund(ctx, id); err != nil {
			writeBookingError(c, err)
			return
		}
	}

	if b.IsPaid && b.PaymentIntentID != nil {
		if err := h.refunds.Refund(*b.PaymentIntentID); err != nil {
			h.log.Error("provider refund failed",
				zap.String("booking_id", string(id)),
				zap.String("payment_intent", *b.PaymentIntentID),
				zap.Error(err))
			writeError(c, http.StatusBadGateway, "payment provider refund failed")
			return
		}
	}

	if err := h.bookings.MarkRefunded(ctx, id); err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "status": booking.StatusRefunded})
}

// README: Booking orchestration; notifications happen outside store critical sections.
package booking

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"checkride/internal/modules/matching"
	"checkride/internal/notify"
	"checkride/internal/types"
)

type Service struct {
	store    Store
	students notify.Notifier
	dpes     notify.Notifier
	ops      notify.Notifier
	log      *zap.Logger
}

func NewService(store Store, students, dpes, ops notify.Notifier, log *zap.Logger) *Service {
	return &Service{store: store, students: students, dpes: dpes, ops: ops, log: log}
}

func (s *Service) Create(ctx context.Context, b *Booking) (*Booking, error) {
	if strings.TrimSpace(b.StudentEmail) == "" {
		return nil, fmt.Errorf("%w: student email is required", ErrBadRequest)
	}
	if strings.TrimSpace(b.ExamType) == "" {
		return nil, fmt.Errorf("%w: exam type is required", ErrBadRequest)
	}
	if b.PreferredDate.IsZero() {
		return nil, fmt.Errorf("%w: preferred date is required", ErrBadRequest)
	}

	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	if err := s.store.AppendAudit(ctx, &AuditEntry{
		BookingID:   b.ID,
		Action:      ActionBookingCreated,
		Description: fmt.Sprintf("Booking created for %s (%s)", b.StudentName(), b.ExamType),
	}); err != nil {
		s.log.Warn("audit append failed", zap.String("booking_id", string(b.ID)), zap.Error(err))
	}
	s.log.Info("booking created",
		zap.String("booking_id", string(b.ID)),
		zap.String("exam_type", b.ExamType),
		zap.String("student", b.StudentEmail))
	return b, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *Service) ActiveBookings(ctx context.Context, limit int) ([]*Booking, error) {
	return s.store.ListActive(ctx, limit)
}

func (s *Service) SetCoordinates(ctx context.Context, id types.ID, pt types.Point) error {
	return s.store.SetCoordinates(ctx, id, pt)
}

// IsAvailable reports whether a booking can still be won. Pure read; the
// answer may be stale by the time a caller acts on it, which is why Accept
// re-checks inside the store's critical section.
func (s *Service) IsAvailable(ctx context.Context, id types.ID) (bool, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return false, err
	}
	return b.AssignedExaminerID == nil && CanAcceptAssignment(b.Status), nil
}

// Accept races this examiner against all others for the booking. Exactly one
// caller ever observes Won=true; everyone else gets a clean loss.
func (s *Service) Accept(ctx context.Context, id types.ID, examinerEmail, examinerName string) (AssignResult, error) {
	res, err := s.store.TryAssign(ctx, id, examinerEmail, examinerName)
	if err != nil {
		return res, err
	}
	if !res.Won {
		s.log.Info("assignment lost or booking unavailable",
			zap.String("booking_id", string(id)),
			zap.String("examiner", examinerEmail))
		return res, nil
	}

	s.log.Info("examiner assigned",
		zap.String("booking_id", string(id)),
		zap.String("examiner", examinerEmail))

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		s.log.Warn("post-assignment read failed", zap.String("booking_id", string(id)), zap.Error(err))
		return res, nil
	}
	s.students.Notify(ctx, b.StudentEmail,
		"Your checkride examiner is confirmed",
		fmt.Sprintf("Good news %s! Examiner %s accepted your %s checkride for %s.",
			b.StudentName(), examinerName, b.ExamType, b.PreferredDate.Format("January 2, 2006")))
	s.ops.Notify(ctx, "",
		"Examiner assigned",
		fmt.Sprintf("Booking %s: %s accepted (%s)", b.ID, examinerName, b.ExamType))
	return res, nil
}

// Decline records a negative response. It never changes booking status and
// never disturbs a committed winner.
func (s *Service) Decline(ctx context.Context, id types.ID, examinerEmail, examinerName, message string) error {
	if err := s.store.RecordDecline(ctx, id, examinerEmail, examinerName, message); err != nil {
		return err
	}
	s.log.Info("examiner declined",
		zap.String("booking_id", string(id)),
		zap.String("examiner", examinerEmail))
	return nil
}

// ContactCandidates records a contact attempt per candidate, emails each
// examiner, and moves the booking to ExaminersContacted. A failed status
// step is tolerated: rotation re-runs land here with the status already set.
func (s *Service) ContactCandidates(ctx context.Context, id types.ID, candidates []matching.Candidate) error {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no candidates to contact", ErrBadRequest)
	}

	for _, c := range candidates {
		if err := s.store.RecordContact(ctx, id, c.ExaminerID); err != nil {
			s.log.Warn("record contact failed",
				zap.String("booking_id", string(id)),
				zap.String("examiner_id", string(c.ExaminerID)),
				zap.Error(err))
			continue
		}
		s.dpes.Notify(ctx, c.Email,
			fmt.Sprintf("Checkride request: %s on %s", b.ExamType, b.PreferredDate.Format("Jan 2, 2006")),
			fmt.Sprintf("Student %s requests a %s checkride near %s on %s. First to accept gets the booking: reply with booking id %s.",
				b.StudentName(), b.ExamType, b.StudentAddress, b.PreferredDate.Format("January 2, 2006"), b.ID))
	}

	if b.Status == StatusCreated || b.Status == StatusPaymentConfirmed {
		if _, err := s.store.UpdateStatus(ctx, id, b.Status, StatusExaminersContacted); err != nil {
			return err
		}
	}

	if err := s.store.AppendAudit(ctx, &AuditEntry{
		BookingID:   id,
		Action:      ActionExaminersContacted,
		Description: fmt.Sprintf("Contacted %d examiner(s)", len(candidates)),
	}); err != nil {
		s.log.Warn("audit append failed", zap.String("booking_id", string(id)), zap.Error(err))
	}
	s.log.Info("examiners contacted",
		zap.String("booking_id", string(id)),
		zap.Int("count", len(candidates)))
	return nil
}

// Cancel refuses once an examiner is assigned; the refund flow is the only
// way out of a committed assignment.
func (s *Service) Cancel(ctx context.Context, id types.ID, reason string) error {
	ok, err := s.store.CancelBooking(ctx, id, reason)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: booking cannot be cancelled in its current state", ErrConflict)
	}
	s.log.Info("booking cancelled", zap.String("booking_id", string(id)), zap.String("reason", reason))
	return nil
}

// RequestRefund moves an assigned or scheduled booking into the refund flow.
func (s *Service) RequestRefund(ctx context.Context, id types.ID) error {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(b.Status, StatusRefundRequested) {
		return fmt.Errorf("%w: refund not allowed from status %s", ErrInvalidState, b.Status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, b.Status, StatusRefundRequested)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: booking changed while requesting refund", ErrConflict)
	}
	return s.store.AppendAudit(ctx, &AuditEntry{
		BookingID:   id,
		Action:      ActionRefundProcessed,
		Description: "Refund requested",
	})
}

// MarkRefunded finalizes the refund flow after the payment provider confirms.
func (s *Service) MarkRefunded(ctx context.Context, id types.ID) error {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(b.Status, StatusRefunded) {
		return fmt.Errorf("%w: cannot mark refunded from status %s", ErrInvalidState, b.Status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, b.Status, StatusRefunded)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: booking changed while refunding", ErrConflict)
	}
	if err := s.store.AppendAudit(ctx, &AuditEntry{
		BookingID:   id,
		Action:      ActionRefundProcessed,
		Description: "Refund completed",
	}); err != nil {
		s.log.Warn("audit append failed", zap.String("booking_id", string(id)), zap.Error(err))
	}
	s.students.Notify(ctx, b.StudentEmail,
		"Your checkride payment was refunded",
		fmt.Sprintf("Booking %s has been refunded in full.", b.ID))
	return nil
}

// ClaimPaymentSession claims a payment session id exactly once. A false
// return means the session was already handled (duplicate webhook delivery)
// and the caller must not act on it again.
func (s *Service) ClaimPaymentSession(ctx context.Context, sessionID string) (bool, error) {
	first, err := s.store.MarkSessionProcessed(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !first {
		s.log.Info("duplicate payment session ignored", zap.String("session_id", sessionID))
	}
	return first, nil
}

// ApplyPayment marks the booking paid for an already-claimed session.
func (s *Service) ApplyPayment(ctx context.Context, id types.ID, sessionID, paymentIntentID string) error {
	if err := s.store.ConfirmPayment(ctx, id, sessionID, paymentIntentID); err != nil {
		return err
	}
	if err := s.store.AppendAudit(ctx, &AuditEntry{
		BookingID:   id,
		Action:      ActionPaymentConfirmed,
		Description: "Payment confirmed via checkout session " + sessionID,
	}); err != nil {
		s.log.Warn("audit append failed", zap.String("booking_id", string(id)), zap.Error(err))
	}
	s.log.Info("payment confirmed",
		zap.String("booking_id", string(id)),
		zap.String("session_id", sessionID))
	return nil
}

// ConfirmPaymentSession claims and applies a payment event for an existing
// booking in one call. Returns false when the session was a duplicate.
func (s *Service) ConfirmPaymentSession(ctx context.Context, id types.ID, sessionID, paymentIntentID string) (bool, error) {
	first, err := s.ClaimPaymentSession(ctx, sessionID)
	if err != nil || !first {
		return false, err
	}
	return true, s.ApplyPayment(ctx, id, sessionID, paymentIntentID)
}

func (s *Service) Responses(ctx context.Context, id types.ID) ([]Response, error) {
	return s.store.Responses(ctx, id)
}

func (s *Service) AuditTrail(ctx context.Context, id types.ID) ([]AuditEntry, error) {
	return s.store.AuditTrail(ctx, id)
}

// Diagnostics exposes the store's optional diagnostic capability.
func (s *Service) Diagnostics() (Diagnostics, bool) {
	d, ok := s.store.(Diagnostics)
	return d, ok
}

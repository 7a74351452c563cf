// README: Store contract shared by the Postgres and in-memory implementations.
package booking

import (
	"context"
	"errors"
	"time"

	"checkride/internal/types"
)

var (
	ErrNotFound           = errors.New("booking not found")
	ErrBadBookingID       = errors.New("invalid booking id format")
	ErrConflict           = errors.New("booking state conflict")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrBadRequest         = errors.New("bad request")
	ErrInvariantViolation = errors.New("assignment invariant violated")
)

// AssignResult reports the outcome of one tryAssign attempt. Won is false
// for every attempt after the first successful commit.
type AssignResult struct {
	Won        bool
	ExaminerID types.ID
}

// Store owns all durable booking state. Assignment and cancellation run in
// a per-booking critical section: a serializable transaction in Postgres,
// a keyed lock in memory. Only a successful commit counts as victory; the
// store never retries a lost race on its own.
type Store interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id types.ID) (*Booking, error)
	ListActive(ctx context.Context, limit int) ([]*Booking, error)
	// ListAwaitingAssignment returns bookings stuck in ExaminersContacted
	// with no winner since before the cutoff.
	ListAwaitingAssignment(ctx context.Context, cutoff time.Time) ([]*Booking, error)

	// UpdateStatus applies a legal transition; false means the booking was
	// not in the expected source state (lost a concurrent update).
	UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
	SetCoordinates(ctx context.Context, id types.ID, pt types.Point) error
	ConfirmPayment(ctx context.Context, id types.ID, sessionID, paymentIntentID string) error
	// MarkSessionProcessed claims a payment session id; true on first claim,
	// false for every duplicate delivery after it.
	MarkSessionProcessed(ctx context.Context, sessionID string) (bool, error)

	// TryAssign resolves the examiner by email (creating a minimal roster
	// entry for unknown identities) and attempts to win the booking.
	TryAssign(ctx context.Context, id types.ID, examinerEmail, examinerName string) (AssignResult, error)
	RecordDecline(ctx context.Context, id types.ID, examinerEmail, examinerName, message string) error
	RecordContact(ctx context.Context, id types.ID, examinerID types.ID) error
	ContactedExaminerIDs(ctx context.Context, id types.ID) ([]types.ID, error)
	Responses(ctx context.Context, id types.ID) ([]Response, error)

	// CancelBooking shares the assignment lock discipline; false when the
	// booking is already assigned or terminal.
	CancelBooking(ctx context.Context, id types.ID, reason string) (bool, error)

	AppendAudit(ctx context.Context, e *AuditEntry) error
	AuditTrail(ctx context.Context, id types.ID) ([]AuditEntry, error)
}

// DiagnosticInfo summarizes a booking for support tooling.
type DiagnosticInfo struct {
	BookingID         types.ID
	Status            Status
	AssignedExaminer  *types.ID
	IsPaid            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ResponseCount     int
	AcceptedResponses int
	DeclinedResponses int
}

// Diagnostics is an optional store capability. The Postgres store supports
// it; callers discover support by interface assertion, never by inspecting
// concrete types.
type Diagnostics interface {
	// ResetForTesting force-returns a booking to ExaminersContacted and
	// discards its contact attempts. Test-only escape hatch.
	ResetForTesting(ctx context.Context, id types.ID) error
	Diagnostic(ctx context.Context, id types.ID) (*DiagnosticInfo, error)
}

// README: Booking aggregate, status machine, response and audit records.
package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"checkride/internal/types"
)

type Status string

const (
	StatusCreated            Status = "created"
	StatusPaymentPending     Status = "payment_pending"
	StatusPaymentConfirmed   Status = "payment_confirmed"
	StatusExaminersContacted Status = "examiners_contacted"
	StatusExaminerAssigned   Status = "examiner_assigned"
	StatusScheduled          Status = "scheduled"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
	StatusRefundRequested    Status = "refund_requested"
	StatusRefunded           Status = "refunded"
)

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:            {StatusPaymentPending, StatusPaymentConfirmed, StatusExaminersContacted, StatusExaminerAssigned, StatusCancelled},
	StatusPaymentPending:     {StatusPaymentConfirmed, StatusCancelled},
	StatusPaymentConfirmed:   {StatusExaminersContacted, StatusExaminerAssigned, StatusCancelled},
	StatusExaminersContacted: {StatusExaminerAssigned, StatusCancelled},
	StatusExaminerAssigned:   {StatusScheduled, StatusRefundRequested, StatusRefunded},
	StatusScheduled:          {StatusCompleted, StatusRefundRequested, StatusRefunded},
	StatusRefundRequested:    {StatusRefunded},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// CanAcceptAssignment reports whether a booking in this status may still win
// an examiner. Refund states never qualify.
func CanAcceptAssignment(s Status) bool {
	switch s {
	case StatusCreated, StatusPaymentConfirmed, StatusExaminersContacted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the booking can never change again.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

type Booking struct {
	ID                   types.ID
	StudentFirstName     string
	StudentLastName      string
	StudentEmail         string
	StudentPhone         string
	StudentAddress       string // preferred airport or free-text location
	Coords               types.Point
	ExamType             string
	PreferredDate        time.Time
	PreferredTime        string
	SpecialRequirements  string
	Status               Status
	PaymentSessionID     *string
	PaymentIntentID      *string
	Amount               types.Money
	IsPaid               bool
	SearchRadiusKm       float64
	AssignedExaminerID   *types.ID
	AssignedExaminerName string
	ScheduledDate        *time.Time
	ScheduledTime        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (b *Booking) StudentName() string {
	return strings.TrimSpace(b.StudentFirstName + " " + b.StudentLastName)
}

type ResponseKind string

const (
	ResponseAccepted ResponseKind = "accepted"
	ResponseDeclined ResponseKind = "declined"
	ResponseNone     ResponseKind = "no_response"
)

// Response is one contact attempt; at most one exists per (booking,
// examiner) pair, and at most one per booking ever carries IsWinner.
type Response struct {
	BookingID   types.ID
	ExaminerID  types.ID
	Kind        ResponseKind
	ContactedAt time.Time
	RespondedAt *time.Time
	Message     string
	IsWinner    bool
}

type Action string

const (
	ActionBookingCreated     Action = "booking_created"
	ActionPaymentInitiated   Action = "payment_initiated"
	ActionPaymentConfirmed   Action = "payment_confirmed"
	ActionExaminersContacted Action = "examiners_contacted"
	ActionExaminerResponded  Action = "examiner_responded"
	ActionExaminerAssigned   Action = "examiner_assigned"
	ActionScheduleConfirmed  Action = "schedule_confirmed"
	ActionBookingCancelled   Action = "booking_cancelled"
	ActionRefundProcessed    Action = "refund_processed"
	ActionBookingReset       Action = "booking_reset"
	ActionError              Action = "error"
)

// AuditEntry is append-only; entries are never updated or deleted.
type AuditEntry struct {
	ID          int64
	BookingID   types.ID
	ExaminerID  *types.ID
	Action      Action
	Description string
	Details     string // JSON blob for extra data
	CreatedAt   time.Time
}

const bookingIDPrefix = "BK"

// FormatBookingID renders the sequence number in the public BK000001 form.
func FormatBookingID(seq int64) types.ID {
	return types.ID(fmt.Sprintf("%s%06d", bookingIDPrefix, seq))
}

// ParseBookingID validates the public id format and extracts the sequence.
func ParseBookingID(id types.ID) (int64, error) {
	s := string(id)
	if !strings.HasPrefix(s, bookingIDPrefix) || len(s) < len(bookingIDPrefix)+1 {
		return 0, fmt.Errorf("%w: %q", ErrBadBookingID, id)
	}
	seq, err := strconv.ParseInt(s[len(bookingIDPrefix):], 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadBookingID, id)
	}
	return seq, nil
}

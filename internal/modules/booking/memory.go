// README: In-memory store with a keyed per-booking lock; mirrors the Postgres store's guarantees.
package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"checkride/internal/types"
)

// keyedLock hands out one mutex per booking id. Locks are held only for the
// in-memory critical section and never across I/O.
type keyedLock struct {
	mu    sync.Mutex
	locks map[types.ID]*sync.Mutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[types.ID]*sync.Mutex)}
}

// Acquire locks the booking's mutex and returns the release func.
func (k *keyedLock) Acquire(id types.ID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type memExaminer struct {
	ID    types.ID
	Name  string
	Email string
}

// MemoryStore keeps all booking state in process. It is the development and
// test variant; the keyed lock gives the same externally observable
// exactly-one-winner guarantee as the Postgres serializable transaction.
type MemoryStore struct {
	assign *keyedLock

	mu                sync.RWMutex
	seq               int64
	examinerSeq       int64
	bookings          map[types.ID]*Booking
	responses         map[types.ID]map[types.ID]*Response
	examinersByEmail  map[string]*memExaminer
	processedSessions map[string]struct{}
	audit             []AuditEntry
	now               func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assign:            newKeyedLock(),
		bookings:          make(map[types.ID]*Booking),
		responses:         make(map[types.ID]map[types.ID]*Response),
		examinersByEmail:  make(map[string]*memExaminer),
		processedSessions: make(map[string]struct{}),
		now:               time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// RegisterExaminer seeds a roster identity, returning its id. Used by tests
// and the dev import path.
func (s *MemoryStore) RegisterExaminer(name, email string) types.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveExaminerLocked(email, name).ID
}

func (s *MemoryStore) resolveExaminerLocked(email, name string) *memExaminer {
	key := strings.ToLower(strings.TrimSpace(email))
	if ex, ok := s.examinersByEmail[key]; ok {
		return ex
	}
	s.examinerSeq++
	ex := &memExaminer{
		ID:    types.ID(fmt.Sprintf("EX%06d", s.examinerSeq)),
		Name:  name,
		Email: email,
	}
	s.examinersByEmail[key] = ex
	return ex
}

func (s *MemoryStore) CreateBooking(_ context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	b.ID = FormatBookingID(s.seq)
	if b.Status == "" {
		b.Status = StatusCreated
	}
	now := s.now()
	b.CreatedAt = now
	b.UpdatedAt = now
	stored := *b
	s.bookings[b.ID] = &stored
	return nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id types.ID) (*Booking, error) {
	if _, err := ParseBookingID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *b
	return &snapshot, nil
}

func (s *MemoryStore) ListActive(_ context.Context, limit int) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Booking
	for _, b := range s.bookings {
		if b.Status == StatusCompleted || b.Status == StatusCancelled {
			continue
		}
		snapshot := *b
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListAwaitingAssignment(_ context.Context, cutoff time.Time) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Booking
	for _, b := range s.bookings {
		if b.Status != StatusExaminersContacted || b.AssignedExaminerID != nil {
			continue
		}
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		snapshot := *b
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id types.ID, from, to Status) (bool, error) {
	if to == StatusExaminerAssigned {
		// Only TryAssign may write the assigned status.
		return false, ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, ErrNotFound
	}
	if b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) SetCoordinates(_ context.Context, id types.ID, pt types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Coords = pt
	b.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ConfirmPayment(_ context.Context, id types.ID, sessionID, paymentIntentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.IsPaid = true
	if sessionID != "" {
		b.PaymentSessionID = &sessionID
	}
	if paymentIntentID != "" {
		b.PaymentIntentID = &paymentIntentID
	}
	if b.Status == StatusCreated || b.Status == StatusPaymentPending {
		b.Status = StatusPaymentConfirmed
	}
	b.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkSessionProcessed(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.processedSessions[sessionID]; dup {
		return false, nil
	}
	s.processedSessions[sessionID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) TryAssign(_ context.Context, id types.ID, examinerEmail, examinerName string) (AssignResult, error) {
	if _, err := ParseBookingID(id); err != nil {
		return AssignResult{}, err
	}

	release := s.assign.Acquire(id)
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return AssignResult{}, ErrNotFound
	}

	// Re-read under the lock: reject anything already decided.
	if b.AssignedExaminerID != nil || !CanAcceptAssignment(b.Status) {
		return AssignResult{}, nil
	}

	// An unassigned booking must never carry a winner record.
	for _, r := range s.responses[id] {
		if r.IsWinner {
			return AssignResult{}, fmt.Errorf("%w: booking %s has winner response but no assignee", ErrInvariantViolation, id)
		}
	}

	ex := s.resolveExaminerLocked(examinerEmail, examinerName)
	now := s.now()

	b.AssignedExaminerID = &ex.ID
	b.AssignedExaminerName = examinerName
	b.Status = StatusExaminerAssigned
	sched := b.PreferredDate
	b.ScheduledDate = &sched
	if b.ScheduledTime == "" {
		b.ScheduledTime = b.PreferredTime
	}
	b.UpdatedAt = now

	s.upsertResponseLocked(id, ex.ID, func(r *Response) {
		r.Kind = ResponseAccepted
		r.RespondedAt = &now
		r.Message = "Accepted via API"
		r.IsWinner = true
	})

	s.appendAuditLocked(AuditEntry{
		BookingID:   id,
		ExaminerID:  &ex.ID,
		Action:      ActionExaminerAssigned,
		Description: fmt.Sprintf("Examiner %s assigned to booking", examinerName),
		CreatedAt:   now,
	})

	return AssignResult{Won: true, ExaminerID: ex.ID}, nil
}

func (s *MemoryStore) RecordDecline(_ context.Context, id types.ID, examinerEmail, examinerName, message string) error {
	if _, err := ParseBookingID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return ErrNotFound
	}
	ex := s.resolveExaminerLocked(examinerEmail, examinerName)
	now := s.now()
	s.upsertResponseLocked(id, ex.ID, func(r *Response) {
		if r.IsWinner {
			// Never rewrite a committed winner record.
			return
		}
		r.Kind = ResponseDeclined
		r.RespondedAt = &now
		r.Message = message
	})
	s.appendAuditLocked(AuditEntry{
		BookingID:   id,
		ExaminerID:  &ex.ID,
		Action:      ActionExaminerResponded,
		Description: fmt.Sprintf("Examiner %s declined booking", examinerName),
		CreatedAt:   now,
	})
	return nil
}

func (s *MemoryStore) RecordContact(_ context.Context, id types.ID, examinerID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return ErrNotFound
	}
	if _, exists := s.responses[id][examinerID]; exists {
		return nil
	}
	s.upsertResponseLocked(id, examinerID, func(*Response) {})
	return nil
}

func (s *MemoryStore) ContactedExaminerIDs(_ context.Context, id types.ID) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ID
	for exID := range s.responses[id] {
		out = append(out, exID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) Responses(_ context.Context, id types.ID) ([]Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Response
	for _, r := range s.responses[id] {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExaminerID < out[j].ExaminerID })
	return out, nil
}

func (s *MemoryStore) CancelBooking(_ context.Context, id types.ID, reason string) (bool, error) {
	if _, err := ParseBookingID(id); err != nil {
		return false, err
	}

	release := s.assign.Acquire(id)
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return false, ErrNotFound
	}
	// A committed assignment is never silently orphaned; refunds are the
	// administrative path out.
	if b.AssignedExaminerID != nil || IsTerminal(b.Status) {
		return false, nil
	}
	b.Status = StatusCancelled
	b.UpdatedAt = s.now()
	s.appendAuditLocked(AuditEntry{
		BookingID:   id,
		Action:      ActionBookingCancelled,
		Description: "Booking cancelled: " + reason,
		CreatedAt:   s.now(),
	})
	return true, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, e *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(*e)
	return nil
}

func (s *MemoryStore) AuditTrail(_ context.Context, id types.ID) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditEntry
	for _, e := range s.audit {
		if e.BookingID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// ResetForTesting force-returns the booking to ExaminersContacted and drops
// its contact attempts. Terminal bookings stay terminal. Deliberately not
// part of the Diagnostics surface here; the Postgres store carries the full
// capability.
func (s *MemoryStore) ResetForTesting(_ context.Context, id types.ID) error {
	release := s.assign.Acquire(id)
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(b.Status) {
		return fmt.Errorf("%w: cannot reset terminal status %s", ErrInvalidState, b.Status)
	}
	b.AssignedExaminerID = nil
	b.AssignedExaminerName = ""
	b.Status = StatusExaminersContacted
	b.ScheduledDate = nil
	b.ScheduledTime = ""
	b.UpdatedAt = s.now()
	delete(s.responses, id)
	return nil
}

func (s *MemoryStore) upsertResponseLocked(bookingID, examinerID types.ID, mutate func(*Response)) {
	byExaminer, ok := s.responses[bookingID]
	if !ok {
		byExaminer = make(map[types.ID]*Response)
		s.responses[bookingID] = byExaminer
	}
	r, ok := byExaminer[examinerID]
	if !ok {
		r = &Response{
			BookingID:   bookingID,
			ExaminerID:  examinerID,
			Kind:        ResponseNone,
			ContactedAt: s.now(),
		}
		byExaminer[examinerID] = r
	}
	mutate(r)
}

func (s *MemoryStore) appendAuditLocked(e AuditEntry) {
	e.ID = int64(len(s.audit) + 1)
	s.audit = append(s.audit, e)
}

package rotation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkride/internal/config"
	"checkride/internal/modules/booking"
	"checkride/internal/modules/matching"
	"checkride/internal/notify"
	"checkride/internal/types"
)

type stubMatcher struct {
	candidates []matching.Candidate
}

func (s *stubMatcher) FindCandidates(_ context.Context, _ types.Point, _ float64, _ string) ([]matching.Candidate, error) {
	return s.candidates, nil
}

type opsRecorder struct {
	mu     sync.Mutex
	alerts []string
}

func (o *opsRecorder) Notify(_ context.Context, _, subject, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alerts = append(o.alerts, subject)
	return nil
}

func (o *opsRecorder) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.alerts)
}

var rotationConfig = config.RotationConfig{
	Interval:        15 * time.Minute,
	ResponseTimeout: 24 * time.Hour,
	RadiusKm:        75,
}

func newStaleBooking(t *testing.T, store *booking.MemoryStore) *booking.Booking {
	t.Helper()
	b := &booking.Booking{
		StudentFirstName: "Sam",
		StudentLastName:  "Student",
		StudentEmail:     "sam@students.test",
		StudentAddress:   "Wichita, KS",
		Coords:           types.Point{Lat: 37.69, Lng: -97.34},
		ExamType:         "Private",
		PreferredDate:    time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		Status:           booking.StatusExaminersContacted,
		SearchRadiusKm:   50,
	}
	require.NoError(t, store.CreateBooking(context.Background(), b))
	return b
}

func newRotationService(store *booking.MemoryStore, matcher CandidateFinder, ops notify.Notifier) (*Service, *booking.Service) {
	log := zap.NewNop()
	bookings := booking.NewService(store, notify.Noop{}, notify.Noop{}, notify.Noop{}, log)
	svc := NewService(store, matcher, bookings, ops, rotationConfig, log)
	// Pretend the sweep runs two days after the booking was created.
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	return svc, bookings
}

func TestSweep_ContactsOnlyFreshExaminers(t *testing.T) {
	store := booking.NewMemoryStore()
	b := newStaleBooking(t, store)
	ctx := context.Background()

	stale := store.RegisterExaminer("Already Contacted", "stale@examiners.test")
	fresh := store.RegisterExaminer("Fresh DPE", "fresh@examiners.test")
	require.NoError(t, store.RecordContact(ctx, b.ID, stale))

	matcher := &stubMatcher{candidates: []matching.Candidate{
		{ExaminerID: stale, Name: "Already Contacted", Email: "stale@examiners.test", DistanceKm: 20},
		{ExaminerID: fresh, Name: "Fresh DPE", Email: "fresh@examiners.test", DistanceKm: 60},
	}}
	ops := &opsRecorder{}
	svc, _ := newRotationService(store, matcher, ops)

	processed, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Zero(t, ops.count())

	contacted, err := store.ContactedExaminerIDs(ctx, b.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []types.ID{stale, fresh}, contacted)
}

func TestSweep_RepeatedRunsNeverRecontact(t *testing.T) {
	store := booking.NewMemoryStore()
	b := newStaleBooking(t, store)
	ctx := context.Background()

	only := store.RegisterExaminer("Only DPE", "only@examiners.test")
	matcher := &stubMatcher{candidates: []matching.Candidate{
		{ExaminerID: only, Name: "Only DPE", Email: "only@examiners.test", DistanceKm: 10},
	}}
	ops := &opsRecorder{}
	svc, _ := newRotationService(store, matcher, ops)

	_, err := svc.Sweep(ctx)
	require.NoError(t, err)
	contacted, err := store.ContactedExaminerIDs(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, contacted, 1)

	// Second sweep: the whole shortlist was already contacted, so the
	// booking escalates to the operators instead of spamming the examiner.
	_, err = svc.Sweep(ctx)
	require.NoError(t, err)
	contacted, err = store.ContactedExaminerIDs(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, contacted, 1, "no duplicate contact records")
	require.Equal(t, 1, ops.count(), "operators alerted once")
}

func TestSweep_IgnoresFreshAndAssignedBookings(t *testing.T) {
	store := booking.NewMemoryStore()
	ctx := context.Background()

	// Assigned booking: has a winner, never rotated.
	assigned := newStaleBooking(t, store)
	res, err := store.TryAssign(ctx, assigned.ID, "winner@examiners.test", "Winner DPE")
	require.NoError(t, err)
	require.True(t, res.Won)

	matcher := &stubMatcher{}
	ops := &opsRecorder{}
	svc, _ := newRotationService(store, matcher, ops)

	// Fresh booking: created "now" relative to the sweep clock.
	freshSvc, _ := newRotationService(store, matcher, ops)
	freshSvc.now = time.Now
	fresh := newStaleBooking(t, store)
	_ = fresh

	processed, err := freshSvc.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, processed, "nothing is stale yet on the fresh clock")

	processed, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed, "only the unassigned stale booking is rotated")
	require.Equal(t, 1, ops.count(), "empty shortlist escalates")
}

func TestSweep_SkipsBookingWithoutCoordinates(t *testing.T) {
	store := booking.NewMemoryStore()
	ctx := context.Background()
	b := &booking.Booking{
		StudentEmail:  "nocoords@students.test",
		ExamType:      "Private",
		PreferredDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		Status:        booking.StatusExaminersContacted,
	}
	require.NoError(t, store.CreateBooking(ctx, b))

	ops := &opsRecorder{}
	svc, _ := newRotationService(store, &stubMatcher{}, ops)

	processed, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	contacted, err := store.ContactedExaminerIDs(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, contacted)
}

// README: Background rotation; re-contacts fresh examiners for stale bookings.
package rotation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"checkride/internal/config"
	"checkride/internal/modules/booking"
	"checkride/internal/modules/matching"
	"checkride/internal/notify"
	"checkride/internal/types"
)

// CandidateFinder yields a fresh shortlist for a booking location.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, origin types.Point, radiusKm float64, examType string) ([]matching.Candidate, error)
}

// Contactor records contact attempts and notifies the shortlist.
type Contactor interface {
	ContactCandidates(ctx context.Context, id types.ID, candidates []matching.Candidate) error
}

type Service struct {
	store   booking.Store
	matcher CandidateFinder
	contact Contactor
	ops     notify.Notifier
	cfg     config.RotationConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewService(store booking.Store, matcher CandidateFinder, contact Contactor, ops notify.Notifier, cfg config.RotationConfig, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		matcher: matcher,
		contact: contact,
		ops:     ops,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("rotation loop started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("response_timeout", s.cfg.ResponseTimeout))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("rotation loop stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("rotation sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep processes every booking stuck without a winner past the response
// timeout. The contacted set is recomputed from the store on every run, so
// a repeated sweep never re-contacts the same examiner.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.ResponseTimeout)
	stale, err := s.store.ListAwaitingAssignment(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale bookings: %w", err)
	}

	processed := 0
	for _, b := range stale {
		if err := s.rotate(ctx, b); err != nil {
			s.log.Error("rotation failed for booking",
				zap.String("booking_id", string(b.ID)),
				zap.Error(err))
			continue
		}
		processed++
	}
	if processed > 0 {
		s.log.Info("rotation sweep complete", zap.Int("processed", processed))
	}
	return processed, nil
}

func (s *Service) rotate(ctx context.Context, b *booking.Booking) error {
	if b.Coords.IsZero() {
		s.log.Warn("skipping rotation for booking without coordinates",
			zap.String("booking_id", string(b.ID)))
		return nil
	}

	candidates, err := s.matcher.FindCandidates(ctx, b.Coords, s.cfg.RadiusKm, b.ExamType)
	if err != nil {
		return fmt.Errorf("find rotation candidates: %w", err)
	}

	contactedIDs, err := s.store.ContactedExaminerIDs(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("load contacted set: %w", err)
	}
	contacted := make(map[types.ID]struct{}, len(contactedIDs))
	for _, id := range contactedIDs {
		contacted[id] = struct{}{}
	}

	var fresh []matching.Candidate
	for _, c := range candidates {
		if _, seen := contacted[c.ExaminerID]; seen {
			continue
		}
		fresh = append(fresh, c)
	}

	if len(fresh) == 0 {
		s.log.Warn("no uncontacted examiners left for booking",
			zap.String("booking_id", string(b.ID)),
			zap.Float64("radius_km", s.cfg.RadiusKm))
		s.ops.Notify(ctx, "",
			"Booking needs manual attention",
			fmt.Sprintf("Booking %s (%s near %s) has exhausted all examiners within %.0f km.",
				b.ID, b.ExamType, b.StudentAddress, s.cfg.RadiusKm))
		return nil
	}

	if err := s.contact.ContactCandidates(ctx, b.ID, fresh); err != nil {
		return fmt.Errorf("contact rotation shortlist: %w", err)
	}
	s.log.Info("rotated booking to fresh examiners",
		zap.String("booking_id", string(b.ID)),
		zap.Int("fresh", len(fresh)),
		zap.Int("already_contacted", len(contactedIDs)))
	return nil
}

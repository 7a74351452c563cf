// README: Post-creation booking flow; geocode, match, and contact examiners.
package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"checkride/internal/geo"
	"checkride/internal/modules/booking"
	"checkride/internal/modules/matching"
	"checkride/internal/notify"
	"checkride/internal/types"
)

// CandidateFinder yields the shortlist for a booking location.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, origin types.Point, radiusKm float64, examType string) ([]matching.Candidate, error)
}

// Flow drives a created booking through geocoding, matching, and the first
// round of examiner contacts. Failures escalate to the operators instead of
// failing the request; the rotation loop retries stuck bookings later.
type Flow struct {
	bookings *booking.Service
	geocoder geo.Geocoder
	matcher  CandidateFinder
	ops      notify.Notifier
	log      *zap.Logger
}

func NewFlow(bookings *booking.Service, geocoder geo.Geocoder, matcher CandidateFinder, ops notify.Notifier, log *zap.Logger) *Flow {
	return &Flow{bookings: bookings, geocoder: geocoder, matcher: matcher, ops: ops, log: log}
}

func (f *Flow) Activate(ctx context.Context, b *booking.Booking) {
	coords := b.Coords
	if coords.IsZero() {
		pt, ok, err := f.geocoder.Geocode(ctx, b.StudentAddress)
		if err != nil || !ok {
			f.log.Warn("geocoding failed for booking",
				zap.String("booking_id", string(b.ID)),
				zap.String("address", b.StudentAddress),
				zap.Error(err))
			f.ops.Notify(ctx, "", "Geocoding failed",
				fmt.Sprintf("Booking %s: could not geocode %q; manual follow-up needed.", b.ID, b.StudentAddress))
			return
		}
		coords = pt
		if err := f.bookings.SetCoordinates(ctx, b.ID, coords); err != nil {
			f.log.Error("persisting coordinates failed",
				zap.String("booking_id", string(b.ID)), zap.Error(err))
			return
		}
	}

	radius := b.SearchRadiusKm
	candidates, err := f.matcher.FindCandidates(ctx, coords, radius, b.ExamType)
	if err != nil {
		f.log.Error("candidate search failed",
			zap.String("booking_id", string(b.ID)), zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		f.log.Warn("no examiners found for booking",
			zap.String("booking_id", string(b.ID)),
			zap.Float64("radius_km", radius))
		f.ops.Notify(ctx, "", "No examiners found",
			fmt.Sprintf("Booking %s (%s near %s): no qualified examiners within %.0f km.",
				b.ID, b.ExamType, b.StudentAddress, radius))
		return
	}

	if err := f.bookings.ContactCandidates(ctx, b.ID, candidates); err != nil {
		f.log.Error("contacting candidates failed",
			zap.String("booking_id", string(b.ID)), zap.Error(err))
	}
}

// README: Matching engine; geocodes the roster in parallel and ranks qualified examiners by distance.
package matching

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"checkride/internal/config"
	"checkride/internal/geo"
	"checkride/internal/modules/examiner"
	"checkride/internal/types"
)

// ExaminerSource supplies the active roster. The engine never mutates it.
type ExaminerSource interface {
	ListActive(ctx context.Context) ([]examiner.Examiner, error)
}

type Service struct {
	examiners ExaminerSource
	geocoder  geo.Geocoder
	cfg       config.MatchingConfig
	log       *zap.Logger
}

func NewService(examiners ExaminerSource, geocoder geo.Geocoder, cfg config.MatchingConfig, log *zap.Logger) *Service {
	if cfg.ShortlistSize <= 0 {
		cfg.ShortlistSize = DefaultShortlistSize
	}
	return &Service{examiners: examiners, geocoder: geocoder, cfg: cfg, log: log}
}

// FindCandidates returns qualified examiners within radiusKm of origin,
// nearest first, capped at the shortlist size. Ties keep roster order.
func (s *Service) FindCandidates(ctx context.Context, origin types.Point, radiusKm float64, examType string) ([]Candidate, error) {
	roster, err := s.examiners.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		s.log.Warn("no active examiners on the roster")
		return nil, nil
	}

	// Geocode every examiner address concurrently; the roster is large and
	// each lookup is independent. Results land at the examiner's roster
	// index so downstream iteration keeps input order.
	type located struct {
		point types.Point
		ok    bool
	}
	results := make([]located, len(roster))

	var wg sync.WaitGroup
	for i := range roster {
		if !roster[i].HasValidContactInfo() {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pt, ok, gerr := s.geocoder.Geocode(ctx, roster[i].Address)
			if gerr != nil {
				s.log.Warn("examiner geocoding failed",
					zap.String("examiner", roster[i].Email),
					zap.Error(gerr))
				return
			}
			results[i] = located{point: pt, ok: ok}
		}(i)
	}
	wg.Wait()

	var candidates []Candidate
	for i := range roster {
		if !results[i].ok {
			continue
		}
		dist := haversineKm(origin.Lat, origin.Lng, results[i].point.Lat, results[i].point.Lng)
		if dist > radiusKm {
			continue
		}
		if !roster[i].HasCapability(examType) {
			continue
		}
		candidates = append(candidates, Candidate{
			ExaminerID:   roster[i].ID,
			Name:         roster[i].DisplayName(),
			Email:        roster[i].Email,
			Position:     results[i].point,
			DistanceKm:   dist,
			Capabilities: roster[i].Capabilities(),
		})
	}

	sortByDistance(candidates, func(c Candidate) float64 { return c.DistanceKm })
	if len(candidates) > s.cfg.ShortlistSize {
		candidates = candidates[:s.cfg.ShortlistSize]
	}

	s.log.Info("candidate search complete",
		zap.Float64("radius_km", radiusKm),
		zap.String("exam_type", examType),
		zap.Int("shortlist", len(candidates)))
	return candidates, nil
}

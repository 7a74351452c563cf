package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkride/internal/config"
	"checkride/internal/modules/examiner"
	"checkride/internal/types"
)

type stubRoster struct {
	examiners []examiner.Examiner
}

func (s *stubRoster) ListActive(_ context.Context) ([]examiner.Examiner, error) {
	return s.examiners, nil
}

// stubGeocoder resolves addresses from a fixed table.
type stubGeocoder struct {
	points map[string]types.Point
}

func (s *stubGeocoder) Geocode(_ context.Context, address string) (types.Point, bool, error) {
	pt, ok := s.points[address]
	return pt, ok, nil
}

func newTestService(roster []examiner.Examiner, points map[string]types.Point, shortlist int) *Service {
	return NewService(
		&stubRoster{examiners: roster},
		&stubGeocoder{points: points},
		config.MatchingConfig{SearchRadiusKm: 50, ShortlistSize: shortlist},
		zap.NewNop(),
	)
}

func rosterExaminer(id, address, qualification string) examiner.Examiner {
	return examiner.Examiner{
		ID:            types.ID(id),
		Name:          id,
		Email:         id + "@examiners.test",
		Address:       address,
		Qualification: qualification,
		Active:        true,
	}
}

// Offsetting latitude by one degree moves roughly 111km; the fractions below
// put examiners at ~10km, ~60km, and ~20km from the origin.
func TestFindCandidates_RadiusAndCapabilityScenario(t *testing.T) {
	origin := types.Point{Lat: 40.0, Lng: -75.0}
	roster := []examiner.Examiner{
		rosterExaminer("p1", "addr-p1", "DPE-PE"),
		rosterExaminer("p2", "addr-p2", "DPE-PE"),
		rosterExaminer("p3", "addr-p3", "DPE-CIRE"),
	}
	points := map[string]types.Point{
		"addr-p1": {Lat: 40.09, Lng: -75.0}, // ~10km, Private
		"addr-p2": {Lat: 40.54, Lng: -75.0}, // ~60km, Private
		"addr-p3": {Lat: 40.18, Lng: -75.0}, // ~20km, Instrument
	}
	svc := newTestService(roster, points, 3)

	got, err := svc.FindCandidates(context.Background(), origin, 50, "Private")
	require.NoError(t, err)
	require.Len(t, got, 1, "p2 excluded by radius, p3 excluded by capability")
	require.Equal(t, types.ID("p1"), got[0].ExaminerID)
}

func TestFindCandidates_RadiusBoundaryIsStrict(t *testing.T) {
	origin := types.Point{Lat: 40.0, Lng: -75.0}
	target := types.Point{Lat: 40.45, Lng: -75.0}
	dist := haversineKm(origin.Lat, origin.Lng, target.Lat, target.Lng)

	roster := []examiner.Examiner{rosterExaminer("edge", "addr-edge", "DPE-PE")}
	points := map[string]types.Point{"addr-edge": target}
	svc := newTestService(roster, points, 3)
	ctx := context.Background()

	// Just inside the radius: included.
	got, err := svc.FindCandidates(ctx, origin, dist+0.000001, "Private")
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Just beyond the radius: excluded.
	got, err = svc.FindCandidates(ctx, origin, dist-0.000001, "Private")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFindCandidates_CapabilityFilterIgnoresDistance(t *testing.T) {
	origin := types.Point{Lat: 40.0, Lng: -75.0}
	roster := []examiner.Examiner{
		rosterExaminer("close-unqualified", "addr-a", "DPE-CIRE"),
		rosterExaminer("far-qualified", "addr-b", "DPE-PE"),
	}
	points := map[string]types.Point{
		"addr-a": {Lat: 40.01, Lng: -75.0}, // ~1km
		"addr-b": {Lat: 40.3, Lng: -75.0},  // ~33km
	}
	svc := newTestService(roster, points, 3)

	got, err := svc.FindCandidates(context.Background(), origin, 50, "Private")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, types.ID("far-qualified"), got[0].ExaminerID)
}

func TestFindCandidates_EmptyExamTypeMatchesAll(t *testing.T) {
	origin := types.Point{Lat: 40.0, Lng: -75.0}
	roster := []examiner.Examiner{
		rosterExaminer("a", "addr-a", "DPE-PE"),
		rosterExaminer("b", "addr-b", "no designations here"),
	}
	points := map[string]types.Point{
		"addr-a": {Lat: 40.01, Lng: -75.0},
		"addr-b": {Lat: 40.02, Lng: -75.0},
	}
	svc := newTestService(roster, points, 3)

	got, err := svc.FindCandidates(context.Background(), origin, 50, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestFindCandidates_ShortlistCapAndOrdering(t *testing.T) {
	origin := types.Point{Lat: 40.0, Lng: -75.0}
	roster := []examiner.Examiner{
		rosterExaminer("d4", "addr-4", "DPE-PE"),
		rosterExaminer("d1", "addr-1", "DPE-PE"),
		rosterExaminer("d3", "addr-3", "DPE-PE"),
		rosterExaminer("d2", "addr-2", "DPE-PE"),
	}
	points := map[string]types.Point{
		"addr-4": {Lat: 40.36, Lng: -75.0},
		"addr-1": {Lat: 40.09, Lng: -75.0},
		"addr-3": {Lat: 40.27, Lng: -75.0},
		"addr-2": {Lat: 40.18, Lng: -75.0},
	}
	svc := newTestService(roster, points, 3)

	got, err := svc.FindCandidates(context.Background(), origin, 50, "Private")
	require.NoError(t, err)
	require.Len(t, got, 3, "shortlist capped at 3")
	require.Equal(t, types.ID("d1"), got[0].ExaminerID)
	require.Equal(t, types.ID("d2"), got[1].ExaminerID)
	require.Equal(t, types.ID("d3"), got[2].ExaminerID)
}

func TestFindCandidates_SkipsUngeocodableExaminers(t *testing.T) {
	origin := types.Point{Lat: 40.0, Lng: -75.0}
	roster := []examiner.Examiner{
		rosterExaminer("known", "addr-known", "DPE-PE"),
		rosterExaminer("unknown", "addr-unknown", "DPE-PE"),
	}
	points := map[string]types.Point{
		"addr-known": {Lat: 40.05, Lng: -75.0},
	}
	svc := newTestService(roster, points, 3)

	got, err := svc.FindCandidates(context.Background(), origin, 50, "Private")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, types.ID("known"), got[0].ExaminerID)
}

package geo

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"checkride/internal/types"
)

type fakeProvider struct {
	name  string
	point types.Point
	found bool
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Resolve(_ context.Context, _ string) (types.Point, bool, error) {
	f.calls++
	return f.point, f.found, f.err
}

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &fakeProvider{name: "first", point: types.Point{Lat: 1, Lng: 2}, found: true}
	second := &fakeProvider{name: "second", point: types.Point{Lat: 9, Lng: 9}, found: true}
	chain := NewChain(zap.NewNop(), first, second)

	pt, ok, err := chain.Geocode(context.Background(), "123 Main St, Austin, TX")
	if err != nil || !ok {
		t.Fatalf("Geocode: ok=%v err=%v", ok, err)
	}
	if pt != first.point {
		t.Errorf("got %+v, want first provider's point", pt)
	}
	if second.calls != 0 {
		t.Error("second provider should not be queried after first success")
	}
}

func TestChain_FailoverOrder(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("quota exceeded")}
	second := &fakeProvider{name: "second", found: false}
	third := &fakeProvider{name: "third", point: types.Point{Lat: 30.2, Lng: -97.7}, found: true}
	chain := NewChain(zap.NewNop(), first, second, third)

	pt, ok, err := chain.Geocode(context.Background(), "some airfield, TX")
	if err != nil || !ok {
		t.Fatalf("Geocode: ok=%v err=%v", ok, err)
	}
	if pt != third.point {
		t.Errorf("got %+v, want third provider's point", pt)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Errorf("providers queried %d/%d/%d times, want 1/1/1", first.calls, second.calls, third.calls)
	}
}

func TestChain_FallbackWhenAllFail(t *testing.T) {
	broken := &fakeProvider{name: "broken", err: errors.New("down")}
	chain := NewChain(zap.NewNop(), broken)

	pt, ok, err := chain.Geocode(context.Background(), "KAUS, Austin, TX")
	if err != nil || !ok {
		t.Fatalf("expected fallback success, ok=%v err=%v", ok, err)
	}
	if pt != FallbackCoordinates("KAUS, Austin, TX") {
		t.Error("chain fallback must match the deterministic approximation")
	}
}

func TestChain_EmptyAddress(t *testing.T) {
	chain := NewChain(zap.NewNop(), &fakeProvider{name: "p", found: true})
	if _, ok, err := chain.Geocode(context.Background(), "   "); ok || err != nil {
		t.Fatalf("blank address: ok=%v err=%v, want miss", ok, err)
	}
}

func TestFallbackCoordinates_Deterministic(t *testing.T) {
	addr := "4600 Ross Ave, Dallas, Texas"
	first := FallbackCoordinates(addr)
	for i := 0; i < 20; i++ {
		if got := FallbackCoordinates(addr); got != first {
			t.Fatalf("fallback not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestFallbackCoordinates_StateCentroid(t *testing.T) {
	pt := FallbackCoordinates("somewhere in Florida")
	// Within ±1 degree of the Florida centroid.
	if pt.Lat < 26.7 || pt.Lat > 28.8 || pt.Lng < -82.7 || pt.Lng > -80.6 {
		t.Errorf("point %+v not near Florida centroid", pt)
	}
}

func TestFallbackCoordinates_DistinctAddressesDiffer(t *testing.T) {
	a := FallbackCoordinates("101 First St, TX")
	b := FallbackCoordinates("202 Second St, TX")
	if a == b {
		t.Error("different addresses should jitter to different points")
	}
}

func TestCached_MemoizesPerNormalizedAddress(t *testing.T) {
	provider := &fakeProvider{name: "live", point: types.Point{Lat: 40, Lng: -75}, found: true}
	chain := NewChain(zap.NewNop(), provider)
	cached := NewCached(chain, NewMemoryCacheStore(0, 16), zap.NewNop())

	ctx := context.Background()
	if _, ok, err := cached.Geocode(ctx, "500 Airport Rd, PA"); !ok || err != nil {
		t.Fatalf("first lookup: ok=%v err=%v", ok, err)
	}
	// Same address, different spacing and case: must hit the cache.
	pt, ok, err := cached.Geocode(ctx, "  500 AIRPORT RD, pa ")
	if !ok || err != nil {
		t.Fatalf("second lookup: ok=%v err=%v", ok, err)
	}
	if provider.calls != 1 {
		t.Errorf("provider queried %d times, want 1", provider.calls)
	}
	if pt.Lat < 39.99 || pt.Lat > 40.01 {
		t.Errorf("cached point %+v drifted", pt)
	}
}

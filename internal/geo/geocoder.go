// README: Address geocoding with a provider priority chain and deterministic fallback.
package geo

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"checkride/internal/types"
)

// Provider resolves a free-text address against one external geocoding
// backend. ok=false means the backend answered but found nothing.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, address string) (types.Point, bool, error)
}

// Geocoder is the interface the matching engine and rotation scheduler
// consume.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, bool, error)
}

// Chain tries providers in priority order; the first success wins. When all
// providers fail or miss, it falls back to a deterministic low-precision
// approximation so repeated calls stay stable without live geocoding.
type Chain struct {
	providers []Provider
	log       *zap.Logger
}

func NewChain(log *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, log: log}
}

func (c *Chain) Geocode(ctx context.Context, address string) (types.Point, bool, error) {
	if strings.TrimSpace(address) == "" {
		return types.Point{}, false, nil
	}
	for _, p := range c.providers {
		pt, ok, err := p.Resolve(ctx, address)
		if err != nil {
			c.log.Warn("geocoding provider failed",
				zap.String("provider", p.Name()),
				zap.Error(err))
			continue
		}
		if ok {
			return pt, true, nil
		}
	}
	c.log.Warn("all geocoding providers failed, using fallback coordinates",
		zap.String("address", address))
	return FallbackCoordinates(address), true, nil
}

// NormalizeAddress produces the cache key form of an address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// README: Pending-checkout storage; holds booking intents between checkout and webhook.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"checkride/internal/cache"
)

// PendingTTL bounds how long an unpaid checkout intent survives. Stripe
// checkout sessions expire in roughly the same window.
const PendingTTL = time.Hour

// PendingBooking is the booking intent captured at checkout time, replayed
// when the payment webhook arrives.
type PendingBooking struct {
	StudentFirstName    string    `json:"studentFirstName"`
	StudentLastName     string    `json:"studentLastName"`
	StudentEmail        string    `json:"studentEmail"`
	StudentPhone        string    `json:"studentPhone"`
	StudentAddress      string    `json:"studentAddress"`
	ExamType            string    `json:"examType"`
	PreferredDate       time.Time `json:"preferredDate"`
	PreferredTime       string    `json:"preferredTime"`
	SpecialRequirements string    `json:"specialRequirements"`
	SearchRadiusKm      float64   `json:"searchRadiusKm"`
	AmountCents         int64     `json:"amountCents"`
	Currency            string    `json:"currency"`
}

// PendingStore parks a PendingBooking under its checkout id. Take is
// one-shot: the first webhook delivery consumes the entry.
type PendingStore interface {
	Put(ctx context.Context, id string, pb PendingBooking) error
	Take(ctx context.Context, id string) (PendingBooking, bool, error)
}

type RedisPendingStore struct {
	client *redis.Client
}

func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client}
}

func pendingKey(id string) string { return "pending_checkout:" + id }

func (s *RedisPendingStore) Put(ctx context.Context, id string, pb PendingBooking) error {
	buf, err := json.Marshal(pb)
	if err != nil {
		return fmt.Errorf("marshal pending booking: %w", err)
	}
	if err := s.client.Set(ctx, pendingKey(id), buf, PendingTTL).Err(); err != nil {
		return fmt.Errorf("store pending booking: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Take(ctx context.Context, id string) (PendingBooking, bool, error) {
	raw, err := s.client.GetDel(ctx, pendingKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return PendingBooking{}, false, nil
	}
	if err != nil {
		return PendingBooking{}, false, fmt.Errorf("take pending booking: %w", err)
	}
	var pb PendingBooking
	if err := json.Unmarshal([]byte(raw), &pb); err != nil {
		return PendingBooking{}, false, fmt.Errorf("decode pending booking: %w", err)
	}
	return pb, true, nil
}

// MemoryPendingStore backs development and tests.
type MemoryPendingStore struct {
	entries *cache.TTLMap
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{entries: cache.NewTTLMap(PendingTTL, 1024)}
}

func (s *MemoryPendingStore) Put(_ context.Context, id string, pb PendingBooking) error {
	buf, err := json.Marshal(pb)
	if err != nil {
		return fmt.Errorf("marshal pending booking: %w", err)
	}
	s.entries.Set(id, string(buf))
	return nil
}

func (s *MemoryPendingStore) Take(_ context.Context, id string) (PendingBooking, bool, error) {
	raw, ok := s.entries.Take(id)
	if !ok {
		return PendingBooking{}, false, nil
	}
	var pb PendingBooking
	if err := json.Unmarshal([]byte(raw), &pb); err != nil {
		return PendingBooking{}, false, fmt.Errorf("decode pending booking: %w", err)
	}
	return pb, true, nil
}

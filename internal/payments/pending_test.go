package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryPendingStore_TakeIsOneShot(t *testing.T) {
	store := NewMemoryPendingStore()
	ctx := context.Background()

	pb := PendingBooking{
		StudentFirstName: "Alex",
		StudentLastName:  "Pilot",
		StudentEmail:     "alex@students.test",
		ExamType:         "Private",
		PreferredDate:    time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
		AmountCents:      10000,
		Currency:         "usd",
	}
	id := NewPendingID()
	require.NoError(t, store.Put(ctx, id, pb))

	got, ok, err := store.Take(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pb, got)

	// Second delivery finds nothing; the webhook falls back to metadata.
	_, ok, err = store.Take(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryPendingStore_MissingKey(t *testing.T) {
	store := NewMemoryPendingStore()
	_, ok, err := store.Take(context.Background(), "TEMP_unknown")
	require.NoError(t, err)
	require.False(t, ok)
}

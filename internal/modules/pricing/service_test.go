package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"checkride/internal/types"
)

func TestQuote_UsesConfiguredFee(t *testing.T) {
	svc := NewService(NewStaticStore([]Fee{
		{ExamType: "ATP", AmountCents: 15000, Currency: "usd"},
		{ExamType: "Private", AmountCents: 10000, Currency: "usd"},
	}))

	got, err := svc.Quote(context.Background(), "ATP")
	require.NoError(t, err)
	require.Equal(t, types.Money{Amount: 15000, Currency: "usd"}, got)

	// Lookup is case-insensitive.
	got, err = svc.Quote(context.Background(), "private")
	require.NoError(t, err)
	require.Equal(t, int64(10000), got.Amount)
}

func TestQuote_FallsBackToDefault(t *testing.T) {
	svc := NewService(NewStaticStore(nil))

	got, err := svc.Quote(context.Background(), "Seaplane")
	require.NoError(t, err)
	require.Equal(t, types.Money{Amount: DefaultAmountCents, Currency: DefaultCurrency}, got)
}

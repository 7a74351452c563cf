// README: Pricing service quotes the booking fee for a checkride type.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"checkride/internal/types"
)

type Service struct {
	store FeeSource
}

func NewService(store FeeSource) *Service {
	return &Service{store: store}
}

// Quote returns the fee for the exam type, falling back to the flat default
// when no per-type override exists.
func (s *Service) Quote(ctx context.Context, examType string) (types.Money, error) {
	f, err := s.store.GetFee(ctx, examType)
	if errors.Is(err, ErrFeeNotFound) {
		return types.Money{Amount: DefaultAmountCents, Currency: DefaultCurrency}, nil
	}
	if err != nil {
		return types.Money{}, fmt.Errorf("quote %s: %w", examType, err)
	}
	return types.Money{Amount: f.AmountCents, Currency: f.Currency}, nil
}

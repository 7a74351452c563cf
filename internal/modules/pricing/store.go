// README: Fee store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrFeeNotFound = errors.New("no fee configured for exam type")

type FeeSource interface {
	GetFee(ctx context.Context, examType string) (Fee, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetFee(ctx context.Context, examType string) (Fee, error) {
	var f Fee
	err := s.db.QueryRow(ctx, `
		SELECT exam_type, amount_cents, currency
		FROM exam_fees WHERE lower(exam_type) = $1`,
		strings.ToLower(strings.TrimSpace(examType))).
		Scan(&f.ExamType, &f.AmountCents, &f.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fee{}, ErrFeeNotFound
	}
	if err != nil {
		return Fee{}, fmt.Errorf("load fee: %w", err)
	}
	return f, nil
}

// StaticStore serves fees from a fixed table. Used in tests and when no
// database override is configured.
type StaticStore struct {
	fees map[string]Fee
}

func NewStaticStore(fees []Fee) *StaticStore {
	m := make(map[string]Fee, len(fees))
	for _, f := range fees {
		m[strings.ToLower(f.ExamType)] = f
	}
	return &StaticStore{fees: m}
}

func (s *StaticStore) GetFee(_ context.Context, examType string) (Fee, error) {
	f, ok := s.fees[strings.ToLower(strings.TrimSpace(examType))]
	if !ok {
		return Fee{}, ErrFeeNotFound
	}
	return f, nil
}

// README: Examiner store backed by PostgreSQL.
package examiner

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"checkride/internal/types"
)

var ErrNotFound = errors.New("examiner not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) ListActive(ctx context.Context) ([]Examiner, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), address,
		       COALESCE(website, ''), COALESCE(about, ''),
		       COALESCE(qualification, ''), COALESCE(fsdo, ''),
		       COALESCE(aircraft, ''), COALESCE(notes, ''), active, created_at
		FROM examiners
		WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Examiner
	for rows.Next() {
		var e Examiner
		if err := rows.Scan(
			&e.ID, &e.Name, &e.Email, &e.Phone, &e.Address,
			&e.Website, &e.About, &e.Qualification, &e.FSDO,
			&e.Aircraft, &e.Notes, &e.Active, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Examiner, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), address,
		       COALESCE(website, ''), COALESCE(about, ''),
		       COALESCE(qualification, ''), COALESCE(fsdo, ''),
		       COALESCE(aircraft, ''), COALESCE(notes, ''), active, created_at
		FROM examiners
		WHERE lower(email) = lower($1)`, email)

	var e Examiner
	err := row.Scan(
		&e.ID, &e.Name, &e.Email, &e.Phone, &e.Address,
		&e.Website, &e.About, &e.Qualification, &e.FSDO,
		&e.Aircraft, &e.Notes, &e.Active, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a roster entry; the id is generated when absent.
func (s *Store) Create(ctx context.Context, e *Examiner) error {
	if e.ID == "" {
		e.ID = types.ID(uuid.NewString())
	}
	if strings.TrimSpace(e.Email) == "" {
		return errors.New("examiner email is required")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO examiners (
			id, name, email, phone, address, website, about,
			qualification, fsdo, aircraft, notes, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			qualification = EXCLUDED.qualification,
			fsdo = EXCLUDED.fsdo,
			aircraft = EXCLUDED.aircraft,
			notes = EXCLUDED.notes,
			active = EXCLUDED.active`,
		string(e.ID), e.Name, e.Email, e.Phone, e.Address, e.Website, e.About,
		e.Qualification, e.FSDO, e.Aircraft, e.Notes, e.Active,
	)
	return err
}

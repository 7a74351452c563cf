// README: Postgres store; assignment and cancellation run in serializable transactions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"checkride/internal/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var (
	_ Store       = (*PostgresStore)(nil)
	_ Diagnostics = (*PostgresStore)(nil)
)

const bookingColumns = `id, student_first_name, student_last_name, student_email, student_phone,
	student_address, latitude, longitude, exam_type, preferred_date, preferred_time,
	special_requirements, status, payment_session_id, payment_intent_id,
	amount_cents, currency, is_paid, search_radius_km,
	assigned_examiner_id, assigned_examiner_name, scheduled_date, scheduled_time,
	created_at, updated_at`

func (s *PostgresStore) CreateBooking(ctx context.Context, b *Booking) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create booking: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('booking_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("allocate booking id: %w", err)
	}
	b.ID = FormatBookingID(seq)
	if b.Status == "" {
		b.Status = StatusCreated
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (
			id, student_first_name, student_last_name, student_email, student_phone,
			student_address, latitude, longitude, exam_type, preferred_date, preferred_time,
			special_requirements, status, amount_cents, currency, is_paid, search_radius_km,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		b.ID, b.StudentFirstName, b.StudentLastName, b.StudentEmail, b.StudentPhone,
		b.StudentAddress, b.Coords.Lat, b.Coords.Lng, b.ExamType, b.PreferredDate, b.PreferredTime,
		b.SpecialRequirements, b.Status, b.Amount.Amount, b.Amount.Currency, b.IsPaid, b.SearchRadiusKm,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetBooking(ctx context.Context, id types.ID) (*Booking, error) {
	if _, err := ParseBookingID(id); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (s *PostgresStore) ListActive(ctx context.Context, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		StatusCompleted, StatusCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (s *PostgresStore) ListAwaitingAssignment(ctx context.Context, cutoff time.Time) ([]*Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = $1 AND assigned_examiner_id IS NULL AND created_at < $2
		ORDER BY created_at ASC`,
		StatusExaminersContacted, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list awaiting assignment: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	if to == StatusExaminerAssigned {
		// Only TryAssign may write the assigned status.
		return false, ErrInvalidState
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetCoordinates(ctx context.Context, id types.ID, pt types.Point) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET latitude = $1, longitude = $2, updated_at = now()
		WHERE id = $3`,
		pt.Lat, pt.Lng, id)
	if err != nil {
		return fmt.Errorf("set coordinates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ConfirmPayment(ctx context.Context, id types.ID, sessionID, paymentIntentID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET
			is_paid = TRUE,
			payment_session_id = COALESCE(NULLIF($1, ''), payment_session_id),
			payment_intent_id = COALESCE(NULLIF($2, ''), payment_intent_id),
			status = CASE WHEN status IN ($3, $4) THEN $5 ELSE status END,
			updated_at = now()
		WHERE id = $6`,
		sessionID, paymentIntentID, StatusCreated, StatusPaymentPending, StatusPaymentConfirmed, id)
	if err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkSessionProcessed(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO processed_payment_sessions (session_id, processed_at)
		VALUES ($1, now())
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID)
	if err != nil {
		return false, fmt.Errorf("mark session processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TryAssign races to commit this examiner as the winner. Serializable
// isolation plus the conditional UPDATE guarantee at most one committed
// winner per booking; losers observe zero rows affected and return Won=false.
func (s *PostgresStore) TryAssign(ctx context.Context, id types.ID, examinerEmail, examinerName string) (AssignResult, error) {
	if _, err := ParseBookingID(id); err != nil {
		return AssignResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		res, err := s.tryAssignOnce(ctx, id, examinerEmail, examinerName)
		if err == nil {
			return res, nil
		}
		if !isSerializationFailure(err) {
			return AssignResult{}, err
		}
		// Lost the serialization race; re-read and retry. The next attempt
		// will see the committed winner and report a clean loss.
		lastErr = err
	}
	return AssignResult{}, fmt.Errorf("assignment retries exhausted: %w", lastErr)
}

func (s *PostgresStore) tryAssignOnce(ctx context.Context, id types.ID, examinerEmail, examinerName string) (AssignResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return AssignResult{}, fmt.Errorf("begin assignment: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status        Status
		assignedID    *types.ID
		preferredDate time.Time
		preferredTime string
	)
	err = tx.QueryRow(ctx, `
		SELECT status, assigned_examiner_id, preferred_date, preferred_time
		FROM bookings WHERE id = $1 FOR UPDATE`, id).
		Scan(&status, &assignedID, &preferredDate, &preferredTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return AssignResult{}, ErrNotFound
	}
	if err != nil {
		return AssignResult{}, fmt.Errorf("read booking for assignment: %w", err)
	}

	if assignedID != nil || !CanAcceptAssignment(status) {
		return AssignResult{}, nil
	}

	var winners int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM examiner_responses
		WHERE booking_id = $1 AND is_winner`, id).Scan(&winners)
	if err != nil {
		return AssignResult{}, fmt.Errorf("check winner invariant: %w", err)
	}
	if winners > 0 {
		return AssignResult{}, fmt.Errorf("%w: booking %s has winner response but no assignee", ErrInvariantViolation, id)
	}

	exID, err := resolveExaminerTx(ctx, tx, examinerEmail, examinerName)
	if err != nil {
		return AssignResult{}, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET
			status = $1,
			assigned_examiner_id = $2,
			assigned_examiner_name = $3,
			scheduled_date = preferred_date,
			scheduled_time = COALESCE(NULLIF(scheduled_time, ''), preferred_time),
			updated_at = now()
		WHERE id = $4 AND assigned_examiner_id IS NULL AND status IN ($5, $6, $7)`,
		StatusExaminerAssigned, exID, examinerName, id,
		StatusCreated, StatusPaymentConfirmed, StatusExaminersContacted)
	if err != nil {
		return AssignResult{}, fmt.Errorf("commit assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return AssignResult{}, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO examiner_responses (booking_id, examiner_id, response, contacted_at, responded_at, message, is_winner)
		VALUES ($1, $2, $3, now(), now(), $4, TRUE)
		ON CONFLICT (booking_id, examiner_id) DO UPDATE SET
			response = EXCLUDED.response,
			responded_at = EXCLUDED.responded_at,
			message = EXCLUDED.message,
			is_winner = TRUE`,
		id, exID, ResponseAccepted, "Accepted via API")
	if err != nil {
		return AssignResult{}, fmt.Errorf("record winning response: %w", err)
	}

	if err := appendAuditTx(ctx, tx, AuditEntry{
		BookingID:   id,
		ExaminerID:  &exID,
		Action:      ActionExaminerAssigned,
		Description: fmt.Sprintf("Examiner %s assigned to booking", examinerName),
	}); err != nil {
		return AssignResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AssignResult{}, fmt.Errorf("commit assignment tx: %w", err)
	}
	return AssignResult{Won: true, ExaminerID: exID}, nil
}

func (s *PostgresStore) RecordDecline(ctx context.Context, id types.ID, examinerEmail, examinerName, message string) error {
	if _, err := ParseBookingID(id); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin decline: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check booking: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	exID, err := resolveExaminerTx(ctx, tx, examinerEmail, examinerName)
	if err != nil {
		return err
	}

	// A committed winner record is never rewritten by a late decline.
	_, err = tx.Exec(ctx, `
		INSERT INTO examiner_responses (booking_id, examiner_id, response, contacted_at, responded_at, message, is_winner)
		VALUES ($1, $2, $3, now(), now(), $4, FALSE)
		ON CONFLICT (booking_id, examiner_id) DO UPDATE SET
			response = EXCLUDED.response,
			responded_at = EXCLUDED.responded_at,
			message = EXCLUDED.message
		WHERE NOT examiner_responses.is_winner`,
		id, exID, ResponseDeclined, message)
	if err != nil {
		return fmt.Errorf("record decline: %w", err)
	}

	if err := appendAuditTx(ctx, tx, AuditEntry{
		BookingID:   id,
		ExaminerID:  &exID,
		Action:      ActionExaminerResponded,
		Description: fmt.Sprintf("Examiner %s declined booking", examinerName),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) RecordContact(ctx context.Context, id types.ID, examinerID types.ID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO examiner_responses (booking_id, examiner_id, response, contacted_at, is_winner)
		VALUES ($1, $2, $3, now(), FALSE)
		ON CONFLICT (booking_id, examiner_id) DO NOTHING`,
		id, examinerID, ResponseNone)
	if err != nil {
		return fmt.Errorf("record contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ContactedExaminerIDs(ctx context.Context, id types.ID) ([]types.ID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT examiner_id FROM examiner_responses WHERE booking_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("list contacted examiners: %w", err)
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var exID types.ID
		if err := rows.Scan(&exID); err != nil {
			return nil, err
		}
		out = append(out, exID)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Responses(ctx context.Context, id types.ID) ([]Response, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT booking_id, examiner_id, response, contacted_at, responded_at, message, is_winner
		FROM examiner_responses WHERE booking_id = $1
		ORDER BY contacted_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		var r Response
		var message *string
		if err := rows.Scan(&r.BookingID, &r.ExaminerID, &r.Kind, &r.ContactedAt, &r.RespondedAt, &message, &r.IsWinner); err != nil {
			return nil, err
		}
		if message != nil {
			r.Message = *message
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CancelBooking(ctx context.Context, id types.ID, reason string) (bool, error) {
	if _, err := ParseBookingID(id); err != nil {
		return false, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return false, fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $1, updated_at = now()
		WHERE id = $2
		  AND assigned_examiner_id IS NULL
		  AND status NOT IN ($3, $4, $5)`,
		StatusCancelled, id, StatusCompleted, StatusCancelled, StatusRefunded)
	if err != nil {
		return false, fmt.Errorf("cancel booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, tx.Commit(ctx)
	}

	if err := appendAuditTx(ctx, tx, AuditEntry{
		BookingID:   id,
		Action:      ActionBookingCancelled,
		Description: "Booking cancelled: " + reason,
	}); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *PostgresStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	details := e.Details
	if details == "" {
		details = "{}"
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO action_logs (booking_id, examiner_id, action, description, details, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at`,
		e.BookingID, e.ExaminerID, e.Action, e.Description, details).
		Scan(&e.ID, &e.CreatedAt)
}

func (s *PostgresStore) AuditTrail(ctx context.Context, id types.ID) ([]AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, booking_id, examiner_id, action, description, details, created_at
		FROM action_logs WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.ExaminerID, &e.Action, &e.Description, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResetForTesting force-returns the booking to ExaminersContacted and drops
// its contact attempts so a race can be replayed against real infrastructure.
// Terminal bookings stay terminal; the escape hatch does not resurrect them.
func (s *PostgresStore) ResetForTesting(ctx context.Context, id types.ID) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read booking for reset: %w", err)
	}
	if IsTerminal(status) {
		return fmt.Errorf("%w: cannot reset terminal status %s", ErrInvalidState, status)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET
			status = $1,
			assigned_examiner_id = NULL,
			assigned_examiner_name = '',
			scheduled_date = NULL,
			scheduled_time = '',
			updated_at = now()
		WHERE id = $2`,
		StatusExaminersContacted, id)
	if err != nil {
		return fmt.Errorf("reset booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM examiner_responses WHERE booking_id = $1`, id); err != nil {
		return fmt.Errorf("clear responses: %w", err)
	}
	if err := appendAuditTx(ctx, tx, AuditEntry{
		BookingID:   id,
		Action:      ActionBookingReset,
		Description: "Booking reset for assignment replay",
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Diagnostic(ctx context.Context, id types.ID) (*DiagnosticInfo, error) {
	b, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &DiagnosticInfo{
		BookingID:        b.ID,
		Status:           b.Status,
		AssignedExaminer: b.AssignedExaminerID,
		IsPaid:           b.IsPaid,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	err = s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE response = $2),
		       count(*) FILTER (WHERE response = $3)
		FROM examiner_responses WHERE booking_id = $1`,
		id, ResponseAccepted, ResponseDeclined).
		Scan(&info.ResponseCount, &info.AcceptedResponses, &info.DeclinedResponses)
	if err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}
	return info, nil
}

// resolveExaminerTx looks up the examiner by email inside the caller's
// transaction, creating a minimal inactive roster entry for unknown
// identities so the response can still be recorded.
func resolveExaminerTx(ctx context.Context, tx pgx.Tx, email, name string) (types.ID, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	var exID types.ID
	err := tx.QueryRow(ctx, `SELECT id FROM examiners WHERE lower(email) = $1`, key).Scan(&exID)
	if err == nil {
		return exID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lookup examiner: %w", err)
	}

	exID = types.ID(uuid.NewString())
	_, err = tx.Exec(ctx, `
		INSERT INTO examiners (id, name, email, qualification, active, created_at)
		VALUES ($1, $2, $3, '', FALSE, now())`,
		exID, name, email)
	if err != nil {
		return "", fmt.Errorf("create minimal examiner: %w", err)
	}
	return exID, nil
}

func appendAuditTx(ctx context.Context, tx pgx.Tx, e AuditEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_logs (booking_id, examiner_id, action, description, details, created_at)
		VALUES ($1, $2, $3, $4, '{}', now())`,
		e.BookingID, e.ExaminerID, e.Action, e.Description)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

type bookingRow interface {
	Scan(dest ...any) error
}

func scanBooking(row bookingRow) (*Booking, error) {
	var b Booking
	var (
		sessionID, intentID *string
		scheduledTime       *string
		examinerName        *string
	)
	err := row.Scan(
		&b.ID, &b.StudentFirstName, &b.StudentLastName, &b.StudentEmail, &b.StudentPhone,
		&b.StudentAddress, &b.Coords.Lat, &b.Coords.Lng, &b.ExamType, &b.PreferredDate, &b.PreferredTime,
		&b.SpecialRequirements, &b.Status, &sessionID, &intentID,
		&b.Amount.Amount, &b.Amount.Currency, &b.IsPaid, &b.SearchRadiusKm,
		&b.AssignedExaminerID, &examinerName, &b.ScheduledDate, &scheduledTime,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.PaymentSessionID = sessionID
	b.PaymentIntentID = intentID
	if examinerName != nil {
		b.AssignedExaminerName = *examinerName
	}
	if scheduledTime != nil {
		b.ScheduledTime = *scheduledTime
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]*Booking, error) {
	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

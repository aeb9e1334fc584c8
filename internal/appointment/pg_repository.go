package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

const (
	pgUniqueViolation     = "23505"
	activeSlotConstraint  = "appointments_active_slot_uniq"
	appointmentColumns    = "id, student_id, psychologist_id, appt_date, start_time, duration_minutes, status, reason, notes, intake, created_at, updated_at"
	blockColumns          = "id, psychologist_id, block_date, start_time, end_time, reason, created_at"
	microsecondsPerMinute = int64(time.Minute / time.Microsecond)
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func pgDate(d schedule.Date) pgtype.Date {
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func pgTime(t schedule.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Minutes()) * microsecondsPerMinute, Valid: true}
}

func pgNullableTime(t *schedule.TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgTime(*t)
}

func fromPgTime(t pgtype.Time) schedule.TimeOfDay {
	return schedule.TimeOfDay(t.Microseconds / microsecondsPerMinute)
}

func fromPgNullableTime(t pgtype.Time) *schedule.TimeOfDay {
	if !t.Valid {
		return nil
	}
	tod := fromPgTime(t)
	return &tod
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isActiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeSlotConstraint
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var start pgtype.Time
	var intake []byte

	err := row.Scan(
		&a.ID,
		&a.StudentID,
		&a.PsychologistID,
		&date,
		&start,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&intake,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateOf(date.Time)
	a.Time = fromPgTime(start)
	a.Intake = intake
	return &a, nil
}

func scanBlock(row pgx.Row) (*UnavailabilityBlock, error) {
	var b UnavailabilityBlock
	var date pgtype.Date
	var start, end pgtype.Time

	err := row.Scan(&b.ID, &b.PsychologistID, &date, &start, &end, &b.Reason, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	b.Date = schedule.DateOf(date.Time)
	b.StartTime = fromPgNullableTime(start)
	b.EndTime = fromPgNullableTime(end)
	return &b, nil
}

func collectBlocks(rows pgx.Rows) ([]UnavailabilityBlock, error) {
	defer rows.Close()

	var result []UnavailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// User directory

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, is_active, created_at, updated_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

// Unavailability

func (r *PgRepository) BlocksFor(ctx context.Context, psychologistID uuid.UUID, date schedule.Date) ([]UnavailabilityBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+blockColumns+`
		FROM unavailability_blocks
		WHERE psychologist_id = $1 AND block_date = $2
		ORDER BY start_time NULLS FIRST
	`, psychologistID, pgDate(date))
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	return collectBlocks(rows)
}

func (r *PgRepository) ListBlocks(ctx context.Context, psychologistID uuid.UUID, from, to schedule.Date) ([]UnavailabilityBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+blockColumns+`
		FROM unavailability_blocks
		WHERE psychologist_id = $1 AND block_date BETWEEN $2 AND $3
		ORDER BY block_date, start_time NULLS FIRST
	`, psychologistID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return collectBlocks(rows)
}

func (r *PgRepository) GetBlock(ctx context.Context, id uuid.UUID) (*UnavailabilityBlock, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+blockColumns+`
		FROM unavailability_blocks
		WHERE id = $1
	`, id)
	return scanBlock(row)
}

func (r *PgRepository) CreateBlock(ctx context.Context, b *UnavailabilityBlock) error {
	b.ID = uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO unavailability_blocks (id, psychologist_id, block_date, start_time, end_time, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`, b.ID, b.PsychologistID, pgDate(b.Date), pgNullableTime(b.StartTime), pgNullableTime(b.EndTime), b.Reason).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM unavailability_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

// Booking ledger

func (r *PgRepository) ActiveAppointmentsFor(ctx context.Context, psychologistID uuid.UUID, date schedule.Date) ([]BookedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, id
		FROM appointments
		WHERE psychologist_id = $1
		  AND appt_date = $2
		  AND status = ANY($3)
		ORDER BY start_time
	`, psychologistID, pgDate(date), statusStrings(ActiveStatuses))
	if err != nil {
		return nil, fmt.Errorf("query active appointments: %w", err)
	}
	defer rows.Close()

	var result []BookedSlot
	for rows.Next() {
		var start pgtype.Time
		var slot BookedSlot
		if err := rows.Scan(&start, &slot.AppointmentID); err != nil {
			return nil, err
		}
		slot.Time = fromPgTime(start)
		result = append(result, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ActiveAt(ctx context.Context, psychologistID uuid.UUID, date schedule.Date, t schedule.TimeOfDay) (*BookedSlot, error) {
	slot := BookedSlot{Time: t}
	err := r.pool.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE psychologist_id = $1
		  AND appt_date = $2
		  AND start_time = $3
		  AND status = ANY($4)
	`, psychologistID, pgDate(date), pgTime(t), statusStrings(ActiveStatuses)).Scan(&slot.AppointmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &slot, nil
}

// Appointments

func (r *PgRepository) CreatePendingAppointment(ctx context.Context, a *Appointment) error {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, student_id, psychologist_id, appt_date, start_time, duration_minutes, status, reason, notes, intake, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		id, a.StudentID, a.PsychologistID, pgDate(a.Date), pgTime(a.Time), a.DurationMinutes, a.Reason, a.Notes, nullableJSON(a.Intake))

	created, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotViolation(err) {
			return ErrActiveSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	*a = *created
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.StudentID != nil {
		add("student_id = $%d", *f.StudentID)
	}
	if f.PsychologistID != nil {
		add("psychologist_id = $%d", *f.PsychologistID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.From != nil {
		add("appt_date >= $%d", pgDate(*f.From))
	}
	if f.To != nil {
		add("appt_date <= $%d", pgDate(*f.To))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY appt_date, start_time, created_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) HasAppointmentBetween(ctx context.Context, studentID, psychologistID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE student_id = $1 AND psychologist_id = $2
		)
	`, studentID, psychologistID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check prior appointments: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, notes *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = COALESCE($4, notes),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, string(to), statusStrings(from), notes)

	return scanAppointment(row)
}

// Outbox

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, nullableJSON(ev.Payload), nullableTimestamp(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) FetchUnpublished(ctx context.Context, limit int) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at, published_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt, &ev.PublishedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE event_logs
		SET published_at = $2
		WHERE id = ANY($1) AND published_at IS NULL
	`, ids, at)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func nullableTimestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// nullableJSON keeps empty payloads out of jsonb columns.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

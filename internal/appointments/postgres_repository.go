package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-frontdesk/internal/media"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const selectColumns = `
	id::text, ticket_number, name, phone, COALESCE(national_id, ''),
	to_char(scheduled_date, 'YYYY-MM-DD'), status, COALESCE(completion_hour, ''),
	COALESCE(symptoms, ''), COALESCE(image_paths, ''), COALESCE(voice_note_path, ''),
	created_at, updated_at, version
`

// PostgresRepository stores appointments in PostgreSQL.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Reserve locks the date for the rest of the transaction, counts active rows and inserts.
func (r *PostgresRepository) Reserve(ctx context.Context, appt *Appointment, limit int) (*Appointment, error) {
	if appt == nil || appt.ScheduledDate == "" {
		return nil, ErrInvalidRequest
	}
	stored := appt.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	imagePaths, err := encodeImagePaths(stored.ImagePaths)
	if err != nil {
		return nil, fmt.Errorf("%w: image paths: %v", ErrInvalidRequest, err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, persistenceErr("begin reserve", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, stored.ScheduledDate); err != nil {
		return nil, persistenceErr("lock date", err)
	}

	var booked int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE scheduled_date = $1 AND status <> 'cancelled'
	`, stored.ScheduledDate).Scan(&booked); err != nil {
		return nil, persistenceErr("count active", err)
	}
	if limit > 0 && booked >= limit {
		return nil, &CapacityExceededError{Date: stored.ScheduledDate, Capacity: limit, Booked: booked}
	}

	query := `
		INSERT INTO appointments (id, ticket_number, name, phone, national_id, scheduled_date, status,
			completion_hour, symptoms, image_paths, voice_note_path)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10, NULLIF($11, ''))
		RETURNING created_at, updated_at, version
	`
	if err := tx.QueryRow(ctx, query,
		stored.ID,
		stored.TicketNumber,
		stored.Name,
		stored.Phone,
		stored.NationalID,
		stored.ScheduledDate,
		string(stored.Status),
		stored.CompletionHour,
		JoinNotes(stored.Symptoms, stored.ProceduresDone),
		imagePaths,
		stored.VoiceNotePath,
	).Scan(&stored.CreatedAt, &stored.UpdatedAt, &stored.Version); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, persistenceErr("insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistenceErr("commit reserve", err)
	}
	return stored, nil
}

// Get fetches an appointment by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, id)
	return r.scanOne(row, "select by id")
}

// GetByTicket fetches an appointment by ticket number.
func (r *PostgresRepository) GetByTicket(ctx context.Context, ticket int64) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE ticket_number = $1`, ticket)
	return r.scanOne(row, "select by ticket")
}

// FindByIdentity matches on national ID, or the ticket suffix for rows stored without one.
func (r *PostgresRepository) FindByIdentity(ctx context.Context, filter IdentityFilter) ([]*Appointment, error) {
	last4, ok := filter.last4()
	if !ok {
		last4 = -1
	}
	where := []string{`(national_id = $1 OR (COALESCE(national_id, '') = '' AND ticket_number % 10000 = $2))`}
	args := []any{filter.NationalID, last4}
	if filter.Phone != "" {
		args = append(args, "%"+filter.Phone+"%")
		where = append(where, fmt.Sprintf("phone LIKE $%d", len(args)))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		where = append(where, fmt.Sprintf("scheduled_date = $%d", len(args)))
	}
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY scheduled_date DESC, created_at DESC`
	return r.queryMany(ctx, "find by identity", query, args...)
}

// List returns one page of appointments and the total match count.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	filter = filter.Normalized()
	var where []string
	var args []any
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR phone LIKE $%d)", len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		where = append(where, fmt.Sprintf("scheduled_date = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, persistenceErr("count list", err)
	}

	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	// SortField is whitelisted by Normalized.
	query := `SELECT ` + selectColumns + ` FROM appointments` + clause +
		fmt.Sprintf(" ORDER BY %s %s, created_at DESC", filter.SortField, dir)
	if !filter.Unpaged {
		args = append(args, filter.PageSize, filter.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	items, err := r.queryMany(ctx, "list", query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchByPhone returns appointments whose phone contains the digits, newest first.
func (r *PostgresRepository) SearchByPhone(ctx context.Context, phone string) ([]*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE phone LIKE $1 ORDER BY created_at DESC LIMIT 100`
	return r.queryMany(ctx, "search by phone", query, "%"+phone+"%")
}

// CountActive counts non-cancelled appointments on date.
func (r *PostgresRepository) CountActive(ctx context.Context, date string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE scheduled_date = $1 AND status <> 'cancelled'
	`, date).Scan(&n); err != nil {
		return 0, persistenceErr("count active", err)
	}
	return n, nil
}

// FindPending returns pending appointments for nationalID scheduled on or after fromDate.
func (r *PostgresRepository) FindPending(ctx context.Context, nationalID, fromDate string) ([]*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments
		WHERE national_id = $1 AND status = 'pending' AND scheduled_date >= $2
		ORDER BY scheduled_date ASC`
	return r.queryMany(ctx, "find pending", query, nationalID, fromDate)
}

// Update writes appt when the stored version still equals expectedVersion.
func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment, expectedVersion int) (*Appointment, error) {
	imagePaths, err := encodeImagePaths(appt.ImagePaths)
	if err != nil {
		return nil, fmt.Errorf("%w: image paths: %v", ErrInvalidRequest, err)
	}
	stored := appt.Clone()
	query := `
		UPDATE appointments
		SET name = $2, phone = $3, national_id = NULLIF($4, ''), scheduled_date = $5, status = $6,
			completion_hour = NULLIF($7, ''), symptoms = $8, image_paths = $9, voice_note_path = NULLIF($10, ''),
			updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $11
		RETURNING updated_at, version
	`
	err = r.db.QueryRow(ctx, query,
		stored.ID,
		stored.Name,
		stored.Phone,
		stored.NationalID,
		stored.ScheduledDate,
		string(stored.Status),
		stored.CompletionHour,
		JoinNotes(stored.Symptoms, stored.ProceduresDone),
		imagePaths,
		stored.VoiceNotePath,
		expectedVersion,
	).Scan(&stored.UpdatedAt, &stored.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, stored.ID); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, persistenceErr("update", err)
	}
	return stored, nil
}

// Delete removes the appointment permanently.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return persistenceErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row pgx.Row, op string) (*Appointment, error) {
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, persistenceErr(op, err)
	}
	return appt, nil
}

func (r *PostgresRepository) queryMany(ctx context.Context, op, query string, args ...any) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, persistenceErr(op, err)
	}
	defer rows.Close()

	out := make([]*Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, persistenceErr(op, err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(op, err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt       Appointment
		status     string
		notes      string
		imagePaths string
		voicePath  string
	)
	if err := row.Scan(
		&appt.ID,
		&appt.TicketNumber,
		&appt.Name,
		&appt.Phone,
		&appt.NationalID,
		&appt.ScheduledDate,
		&status,
		&appt.CompletionHour,
		&notes,
		&imagePaths,
		&voicePath,
		&appt.CreatedAt,
		&appt.UpdatedAt,
		&appt.Version,
	); err != nil {
		return nil, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		parsed = StatusPending
	}
	appt.Status = parsed
	appt.Symptoms, appt.ProceduresDone = SplitNotes(notes)
	for _, p := range decodeImagePaths(imagePaths) {
		if resolved := media.ResolvePath(p, appt.NationalID, media.KindImage); resolved != "" {
			appt.ImagePaths = append(appt.ImagePaths, resolved)
		}
	}
	appt.VoiceNotePath = media.ResolvePath(voicePath, appt.NationalID, media.KindVoice)
	return &appt, nil
}

// decodeImagePaths reads a JSON array, falling back to a legacy single path.
func decodeImagePaths(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var paths []string
		if err := json.Unmarshal([]byte(raw), &paths); err == nil {
			return paths
		}
	}
	return []string{raw}
}

func encodeImagePaths(paths []string) (*string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tally-crm/tally/internal/platform/db"
	"github.com/tally-crm/tally/internal/recurrence"
)

// occurrenceConstraint guards one system reminder per task occurrence and notice.
const occurrenceConstraint = "reminders_source_occurrence_key"

// Repository defines reminder persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (*Reminder, error)
	List(ctx context.Context, filter ListFilter, now time.Time) ([]Reminder, int, error)
	// ListDue returns pending, not yet notified reminders due at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	Create(ctx context.Context, r Reminder) (int64, error)
	Delete(ctx context.Context, id int64) error

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Reminder, error)
	Insert(ctx context.Context, r Reminder) (int64, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
	MarkCompleted(ctx context.Context, id int64, at time.Time) error
	Reschedule(ctx context.Context, id int64, dueAt, at time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const reminderColumns = `id, title, description, due_at, priority, recurrence, link_kind, link_id,
	is_system, source_task_id, source_occurrence, source_notice, notified_at, completed_at,
	created_by, created_at, updated_at`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (*Reminder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	return scanOne(row)
}

func (r *repository) List(ctx context.Context, filter ListFilter, now time.Time) ([]Reminder, int, error) {
	where, args := filterClause(filter, now)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reminders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM reminders%s ORDER BY due_at ASC, id ASC LIMIT %d OFFSET %d`,
		reminderColumns, where, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := scanAll(rows)
	return out, total, err
}

func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT `+reminderColumns+` FROM reminders
		WHERE completed_at IS NULL AND notified_at IS NULL AND due_at <= $1
		ORDER BY due_at ASC, id ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (r *repository) Create(ctx context.Context, rem Reminder) (int64, error) {
	return InsertReminder(ctx, r.pool, rem)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Reminder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1 FOR UPDATE`, id)
	return scanOne(row)
}

func (t *txRepository) Insert(ctx context.Context, rem Reminder) (int64, error) {
	return InsertReminder(ctx, t.tx, rem)
}

func (t *txRepository) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	return execOne(ctx, t.tx, `UPDATE reminders SET notified_at = $1, updated_at = $1 WHERE id = $2`, at, id)
}

func (t *txRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	return execOne(ctx, t.tx, `UPDATE reminders SET completed_at = $1, updated_at = $1 WHERE id = $2`, at, id)
}

func (t *txRepository) Reschedule(ctx context.Context, id int64, dueAt, at time.Time) error {
	return execOne(ctx, t.tx, `UPDATE reminders SET due_at = $1, notified_at = NULL, updated_at = $2 WHERE id = $3`, dueAt, at, id)
}

// InsertReminder writes rem through q. It is shared with the recurring task
// repository so task processing can create reminders in its own transaction.
func InsertReminder(ctx context.Context, q db.Querier, rem Reminder) (int64, error) {
	var (
		recur     *string
		linkKind  *string
		linkID    *int64
		srcTask   *int64
		srcOcc    *time.Time
		srcNotice *string
	)
	createdAt, updatedAt := rem.CreatedAt, rem.UpdatedAt
	if rem.Recurrence != nil {
		v := string(*rem.Recurrence)
		recur = &v
	}
	if rem.Link != nil {
		k := string(rem.Link.Kind)
		linkKind, linkID = &k, &rem.Link.ID
	}
	if rem.Source != nil {
		n := string(rem.Source.Notice)
		srcTask, srcOcc, srcNotice = &rem.Source.RecurringTaskID, &rem.Source.Occurrence, &n
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO reminders (
			title, description, due_at, priority, recurrence, link_kind, link_id, is_system,
			source_task_id, source_occurrence, source_notice, notified_at, completed_at,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`,
		rem.Title, rem.Description, rem.DueAt, rem.Priority, recur, linkKind, linkID, rem.IsSystem,
		srcTask, srcOcc, srcNotice, rem.NotifiedAt, rem.CompletedAt,
		rem.CreatedBy, createdAt, updatedAt,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, occurrenceConstraint) {
			return 0, ErrDuplicateOccurrence
		}
		return 0, err
	}
	return id, nil
}

func execOne(ctx context.Context, q db.Querier, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func filterClause(f ListFilter, now time.Time) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	switch f.Scope {
	case ScopePending:
		conds = append(conds, "completed_at IS NULL")
	case ScopeCompleted:
		conds = append(conds, "completed_at IS NOT NULL")
	case ScopeOverdue:
		conds = append(conds, "completed_at IS NULL", "due_at < "+arg(now))
	case ScopeUpcoming:
		conds = append(conds, "completed_at IS NULL",
			"due_at BETWEEN "+arg(now)+" AND "+arg(now.AddDate(0, 0, f.UpcomingDays())))
	}
	if f.Link != nil {
		conds = append(conds, "link_kind = "+arg(string(f.Link.Kind)), "link_id = "+arg(f.Link.ID))
	}
	if f.IsSystem != nil {
		conds = append(conds, "is_system = "+arg(*f.IsSystem))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanOne(row pgx.Row) (*Reminder, error) {
	rem, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rem, nil
}

func scanAll(rows pgx.Rows) ([]Reminder, error) {
	defer rows.Close()
	var out []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func scanReminder(row pgx.Row) (Reminder, error) {
	var (
		rem       Reminder
		recur     *string
		linkKind  *string
		linkID    *int64
		srcTask   *int64
		srcOcc    *time.Time
		srcNotice *string
	)
	err := row.Scan(
		&rem.ID, &rem.Title, &rem.Description, &rem.DueAt, &rem.Priority, &recur, &linkKind, &linkID,
		&rem.IsSystem, &srcTask, &srcOcc, &srcNotice, &rem.NotifiedAt, &rem.CompletedAt,
		&rem.CreatedBy, &rem.CreatedAt, &rem.UpdatedAt,
	)
	if err != nil {
		return Reminder{}, err
	}
	if recur != nil {
		k := recurrence.Kind(*recur)
		rem.Recurrence = &k
	}
	if linkKind != nil && linkID != nil {
		rem.Link = &Link{Kind: LinkKind(*linkKind), ID: *linkID}
	}
	if srcTask != nil && srcOcc != nil && srcNotice != nil {
		rem.Source = &Source{RecurringTaskID: *srcTask, Occurrence: *srcOcc, Notice: Notice(*srcNotice)}
	}
	return rem, nil
}

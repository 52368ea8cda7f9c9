package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tally-crm/tally/internal/platform/db"
	"github.com/tally-crm/tally/internal/reminders"
)

// Repository defines recurring task persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]Task, int, error)
	// ListDue returns active tasks with next_due_at on or before today that
	// were not processed today.
	ListDue(ctx context.Context, today time.Time) ([]Task, error)
	ListActive(ctx context.Context) ([]Task, error)
	Create(ctx context.Context, t Task) (int64, error)
	Logs(ctx context.Context, taskID int64, limit int) ([]Log, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Task, error)
	Update(ctx context.Context, t Task) error
	AppendLog(ctx context.Context, l Log) error
	// CreateReminder returns reminders.ErrDuplicateOccurrence when the
	// occurrence already has a reminder; the transaction stays usable.
	CreateReminder(ctx context.Context, r reminders.Reminder) (int64, error)
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

const taskColumns = `id, title, description, client_id, frequency, next_due_at, active, amount,
	contract_start, contract_end, last_processed_on, reminded_for, created_at, updated_at`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (*Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM recurring_tasks WHERE id = $1`, id)
	return scanOne(row)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conds = append(conds, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recurring_tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM recurring_tasks%s ORDER BY next_due_at ASC, id ASC LIMIT %d OFFSET %d`,
		taskColumns, where, limit, filter.Offset), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := scanAll(rows)
	return out, total, err
}

func (r *repository) ListDue(ctx context.Context, today time.Time) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM recurring_tasks
		WHERE active AND next_due_at <= $1 AND last_processed_on IS DISTINCT FROM $1
		ORDER BY next_due_at ASC, id ASC`, today)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (r *repository) ListActive(ctx context.Context) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM recurring_tasks WHERE active ORDER BY next_due_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (r *repository) Create(ctx context.Context, t Task) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO recurring_tasks (
			title, description, client_id, frequency, next_due_at, active, amount,
			contract_start, contract_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		t.Title, t.Description, t.ClientID, t.Frequency, t.NextDueAt, t.Active, t.Amount,
		t.ContractStart, t.ContractEnd, t.CreatedAt, t.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (r *repository) Logs(ctx context.Context, taskID int64, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, task_id, due_date, action, COALESCE(notes, ''), created_at
		FROM recurring_task_logs WHERE task_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.TaskID, &l.DueDate, &l.Action, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Task, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM recurring_tasks WHERE id = $1 FOR UPDATE`, id)
	return scanOne(row)
}

func (t *txRepository) Update(ctx context.Context, task Task) error {
	tag, err := t.tx.Exec(ctx, `UPDATE recurring_tasks SET
			next_due_at = $1, active = $2, last_processed_on = $3, reminded_for = $4, updated_at = $5
		WHERE id = $6`,
		task.NextDueAt, task.Active, task.LastProcessedOn, task.RemindedFor, task.UpdatedAt, task.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) AppendLog(ctx context.Context, l Log) error {
	var notes *string
	if l.Notes != "" {
		notes = &l.Notes
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO recurring_task_logs (task_id, due_date, action, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`, l.TaskID, l.DueDate, l.Action, notes, l.CreatedAt)
	return err
}

func (t *txRepository) CreateReminder(ctx context.Context, rem reminders.Reminder) (int64, error) {
	// A unique violation aborts the enclosing transaction, so the insert runs
	// in a savepoint.
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	id, err := reminders.InsertReminder(ctx, sp, rem)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, err
	}
	return id, sp.Commit(ctx)
}

func scanOne(row pgx.Row) (*Task, error) {
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

func scanAll(rows pgx.Rows) ([]Task, error) {
	defer rows.Close()
	var out []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.ClientID, &t.Frequency, &t.NextDueAt, &t.Active, &t.Amount,
		&t.ContractStart, &t.ContractEnd, &t.LastProcessedOn, &t.RemindedFor, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

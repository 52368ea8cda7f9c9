package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/platform/db"
	"github.com/tally-crm/tally/internal/shared"
)

// ErrNotFound indicates the project does not exist.
var ErrNotFound = fmt.Errorf("project %w", shared.ErrNotFound)

// Repository defines project persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (*Project, error)
	List(ctx context.Context, filter ListFilter) ([]Project, int, error)
	Create(ctx context.Context, p Project) (int64, error)
	// CountByStatus returns the number of projects per status.
	CountByStatus(ctx context.Context) (map[lifecycle.ProjectStatus]int, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Project, error)
	SaveStatus(ctx context.Context, p Project) error
	// Audit records entries inside the transaction.
	Audit() shared.AuditRecorder
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

const projectColumns = `id, client_id, title, description, offer_total, status, sent_at, accepted_at,
	declined_at, started_at, completed_at, cancelled_at, created_at, updated_at`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (*Project, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM projects%s ORDER BY updated_at DESC, id DESC LIMIT %d OFFSET %d`,
		projectColumns, where, limit, filter.Offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Project) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO projects (client_id, title, description, offer_total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.ClientID, p.Title, p.Description, p.OfferTotal, string(p.Status), p.CreatedAt, p.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (r *repository) CountByStatus(ctx context.Context) (map[lifecycle.ProjectStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM projects GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[lifecycle.ProjectStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[lifecycle.ProjectStatus(status)] = n
	}
	return out, rows.Err()
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Project, error) {
	return scanOne(t.tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) Audit() shared.AuditRecorder {
	return shared.NewAuditLogger(t.tx)
}

func (t *txRepository) SaveStatus(ctx context.Context, p Project) error {
	tag, err := t.tx.Exec(ctx, `UPDATE projects SET
			status = $1, sent_at = $2, accepted_at = $3, declined_at = $4, started_at = $5,
			completed_at = $6, cancelled_at = $7, updated_at = $8
		WHERE id = $9`,
		string(p.Status), p.SentAt, p.AcceptedAt, p.DeclinedAt, p.StartedAt,
		p.CompletedAt, p.CancelledAt, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOne(row pgx.Row) (*Project, error) {
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProject(row pgx.Row) (Project, error) {
	var (
		p      Project
		status string
	)
	err := row.Scan(
		&p.ID, &p.ClientID, &p.Title, &p.Description, &p.OfferTotal, &status, &p.SentAt, &p.AcceptedAt,
		&p.DeclinedAt, &p.StartedAt, &p.CompletedAt, &p.CancelledAt, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Status = lifecycle.ProjectStatus(status)
	return p, err
}

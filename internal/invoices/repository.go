package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/platform/db"
	"github.com/tally-crm/tally/internal/shared"
)

// Repository defines invoice persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	// ListUnpaid returns SENT and OVERDUE invoices.
	ListUnpaid(ctx context.Context) ([]Invoice, error)
	Create(ctx context.Context, inv Invoice) (*Invoice, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Invoice, error)
	// SaveStatus writes status, the status timestamps and payment method.
	SaveStatus(ctx context.Context, inv Invoice) error
	// MarkOverdue moves every SENT invoice due before cutoff to OVERDUE in one
	// statement and returns the ids it touched.
	MarkOverdue(ctx context.Context, cutoff, at time.Time) ([]int64, error)
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

const invoiceColumns = `id, number, client_id, project_id, status, currency, subtotal, tax_amount, total,
	issued_at, due_at, sent_at, paid_at, COALESCE(payment_method, ''), cancelled_at, created_at, updated_at`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM invoices%s ORDER BY due_at DESC, id DESC LIMIT %d OFFSET %d`,
		invoiceColumns, where, limit, filter.Offset), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := scanAll(rows)
	return out, total, err
}

func (r *repository) ListUnpaid(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE status IN ($1, $2) ORDER BY due_at ASC, id ASC`,
		string(lifecycle.InvoiceSent), string(lifecycle.InvoiceOverdue))
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (r *repository) Create(ctx context.Context, inv Invoice) (*Invoice, error) {
	var number *string
	if inv.Number != "" {
		number = &inv.Number
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO invoices (
			number, client_id, project_id, status, currency, subtotal, tax_amount, total,
			issued_at, due_at, created_at, updated_at
		) VALUES (COALESCE($1, next_invoice_number()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, number`,
		number, inv.ClientID, inv.ProjectID, string(inv.Status), inv.Currency, inv.Subtotal, inv.TaxAmount, inv.Total,
		inv.IssuedAt, inv.DueAt, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.ID, &inv.Number)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *txRepository) MarkOverdue(ctx context.Context, cutoff, at time.Time) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `UPDATE invoices SET status = $1, updated_at = $2
		WHERE status = $3 AND due_at < $4
		RETURNING id`,
		string(lifecycle.InvoiceOverdue), at, string(lifecycle.InvoiceSent), cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return scanOne(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) SaveStatus(ctx context.Context, inv Invoice) error {
	var method *string
	if inv.PaymentMethod != "" {
		method = &inv.PaymentMethod
	}
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET
			status = $1, sent_at = $2, paid_at = $3, payment_method = $4, cancelled_at = $5, updated_at = $6
		WHERE id = $7`,
		string(inv.Status), inv.SentAt, inv.PaidAt, method, inv.CancelledAt, inv.UpdatedAt, inv.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) Audit() shared.AuditRecorder {
	return shared.NewAuditLogger(t.tx)
}

func scanOne(row pgx.Row) (*Invoice, error) {
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func scanAll(rows pgx.Rows) ([]Invoice, error) {
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv    Invoice
		status string
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.ClientID, &inv.ProjectID, &status, &inv.Currency,
		&inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.IssuedAt, &inv.DueAt,
		&inv.SentAt, &inv.PaidAt, &inv.PaymentMethod, &inv.CancelledAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	inv.Status = lifecycle.InvoiceStatus(status)
	return inv, err
}

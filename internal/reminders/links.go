package reminders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LinkResolver looks up the remindable target of a link and returns its
// display label.
type LinkResolver interface {
	Resolve(ctx context.Context, link Link) (string, error)
}

// PGLinkResolver resolves links against the clients, projects and invoices tables.
type PGLinkResolver struct {
	pool *pgxpool.Pool
}

// NewLinkResolver builds a PGLinkResolver.
func NewLinkResolver(pool *pgxpool.Pool) *PGLinkResolver {
	return &PGLinkResolver{pool: pool}
}

var linkQueries = map[LinkKind]string{
	LinkClient:  `SELECT name FROM clients WHERE id = $1`,
	LinkProject: `SELECT title FROM projects WHERE id = $1`,
	LinkInvoice: `SELECT number FROM invoices WHERE id = $1`,
}

// Resolve returns the label of the linked entity.
func (r *PGLinkResolver) Resolve(ctx context.Context, link Link) (string, error) {
	query, ok := linkQueries[link.Kind]
	if !ok {
		return "", fmt.Errorf("reminders: unknown link kind %q", link.Kind)
	}
	var label string
	if err := r.pool.QueryRow(ctx, query, link.ID).Scan(&label); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s %d", ErrLinkNotFound, link.Kind, link.ID)
		}
		return "", err
	}
	return label, nil
}

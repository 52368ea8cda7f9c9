package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/shared"
)

const defaultCurrency = "EUR"

// ServiceConfig collects the lifecycle's collaborators.
type ServiceConfig struct {
	Policy lifecycle.Policy
	Clock  shared.Clock
	Logger *slog.Logger
}

// Service applies the invoice status table.
type Service struct {
	repo      Repository
	policy    lifecycle.Policy
	clock     shared.Clock
	logger    *slog.Logger
	validator *shared.Validator
}

// NewService builds Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	s := &Service{
		repo:      repo,
		policy:    cfg.Policy,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		validator: shared.NewValidator(),
	}
	if s.policy == "" {
		s.policy = lifecycle.PolicyStrict
	}
	if s.clock == nil {
		s.clock = shared.SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Policy returns the transition policy in effect.
func (s *Service) Policy() lifecycle.Policy {
	return s.policy
}

// MarkSent issues a draft invoice.
func (s *Service) MarkSent(ctx context.Context, id int64) (*Invoice, error) {
	return s.transition(ctx, id, lifecycle.InvoiceSent, func(inv *Invoice, now time.Time) {
		inv.SentAt = &now
	})
}

// Cancel voids an invoice that is not yet paid.
func (s *Service) Cancel(ctx context.Context, id int64) (*Invoice, error) {
	return s.transition(ctx, id, lifecycle.InvoiceCancelled, func(inv *Invoice, now time.Time) {
		inv.CancelledAt = &now
	})
}

// MarkPaid settles an invoice and stamps the payment.
func (s *Service) MarkPaid(ctx context.Context, id int64, input PaymentInput) (*Invoice, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, lifecycle.InvoicePaid, func(inv *Invoice, now time.Time) {
		paidAt := now
		if input.PaidAt != nil {
			paidAt = *input.PaidAt
		}
		inv.PaidAt = &paidAt
		inv.PaymentMethod = strings.TrimSpace(input.Method)
	})
}

func (s *Service) transition(ctx context.Context, id int64, to lifecycle.InvoiceStatus, apply func(*Invoice, time.Time)) (*Invoice, error) {
	now := s.clock.Now()
	var (
		out  Invoice
		from lifecycle.InvoiceStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = inv.Status
		if err := s.allow(from, to); err != nil {
			return err
		}
		inv.Status = to
		apply(inv, now)
		inv.UpdatedAt = now
		if err := tx.SaveStatus(ctx, *inv); err != nil {
			return err
		}
		if err := record(ctx, tx, id, from, to, now); err != nil {
			return err
		}
		out = *inv
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invoice %d to %s: %w", id, to, err)
	}
	return &out, nil
}

// allow applies the configured policy. Lenient mode trusts the caller's
// gating: a terminal invoice never changes again, except that marking a
// PAID invoice paid re-stamps the payment.
func (s *Service) allow(from, to lifecycle.InvoiceStatus) error {
	if s.policy == lifecycle.PolicyLenient {
		if from == lifecycle.InvoicePaid && to == lifecycle.InvoicePaid {
			return nil
		}
		if from.IsTerminal() {
			return fmt.Errorf("%w: invoice %s is final", shared.ErrInvalidTransition, from)
		}
		return nil
	}
	return lifecycle.InvoiceTable.Check(from, to)
}

func record(ctx context.Context, tx TxRepository, id int64, from, to lifecycle.InvoiceStatus, at time.Time) error {
	if err := shared.RecordTransition(ctx, tx.Audit(), "invoice", id, string(from), string(to), at); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// SweepOverdue moves every SENT invoice whose due date is before today to
// OVERDUE. Running it again the same day changes nothing.
func (s *Service) SweepOverdue(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.MarkOverdue(ctx, shared.DateOf(now), now)
		if err != nil {
			return err
		}
		for _, id := range moved {
			if err := record(ctx, tx, id, lifecycle.InvoiceSent, lifecycle.InvoiceOverdue, now); err != nil {
				return fmt.Errorf("invoice %d: %w", id, err)
			}
		}
		ids = moved
		return nil
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("overdue sweep: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return SweepResult{Count: len(ids), IDs: ids}, nil
}

// Create stores a draft invoice.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Invoice, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	if input.Subtotal.IsNegative() || input.TaxAmount.IsNegative() {
		return nil, shared.NewValidationError("subtotal", "amounts must not be negative")
	}
	now := s.clock.Now()
	issued := shared.DateOf(now)
	if input.IssuedAt != nil {
		issued = shared.DateOf(*input.IssuedAt)
	}
	due := shared.DateOf(input.DueAt)
	if due.Before(issued) {
		return nil, shared.NewValidationError("due_at", "must not be before issued_at")
	}
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	inv := Invoice{
		Number:    strings.TrimSpace(input.Number),
		ClientID:  input.ClientID,
		ProjectID: input.ProjectID,
		Status:    lifecycle.InvoiceDraft,
		Currency:  currency,
		Subtotal:  input.Subtotal.Round(2),
		TaxAmount: input.TaxAmount.Round(2),
		IssuedAt:  issued,
		DueAt:     due,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inv.Total = inv.Subtotal.Add(inv.TaxAmount)
	created, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return created, nil
}

// Get returns an invoice by id.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, shared.NewValidationError("status", "unknown invoice status")
	}
	return s.repo.List(ctx, filter)
}

// Aging groups unpaid invoice totals by days past due as of asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	invoices, err := s.repo.ListUnpaid(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	today := shared.DateOf(asOf)
	bucket := AgingBucket{
		Current: decimal.Zero,
		Days30:  decimal.Zero,
		Days60:  decimal.Zero,
		Days90:  decimal.Zero,
		Over90:  decimal.Zero,
	}
	for _, inv := range invoices {
		days := int(today.Sub(inv.DueAt).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(inv.Total)
		case days <= 30:
			bucket.Days30 = bucket.Days30.Add(inv.Total)
		case days <= 60:
			bucket.Days60 = bucket.Days60.Add(inv.Total)
		case days <= 90:
			bucket.Days90 = bucket.Days90.Add(inv.Total)
		default:
			bucket.Over90 = bucket.Over90.Add(inv.Total)
		}
	}
	return bucket, nil
}

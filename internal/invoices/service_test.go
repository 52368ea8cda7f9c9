package invoices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/shared"
)

type memoryInvoiceRepo struct {
	invoices map[int64]*Invoice
	nextID   int64
	audit    *memoryAudit
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[int64]*Invoice), audit: &memoryAudit{}}
}

func (r *memoryInvoiceRepo) seed(status lifecycle.InvoiceStatus, due time.Time, total string) int64 {
	inv, _ := r.Create(context.Background(), Invoice{
		ClientID: 1,
		Status:   status,
		DueAt:    due,
		Total:    decimal.RequireFromString(total),
	})
	return inv.ID
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryInvoiceRepo) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.sorted() {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (r *memoryInvoiceRepo) ListUnpaid(ctx context.Context) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.sorted() {
		if inv.Status.IsUnpaid() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryInvoiceRepo) Create(ctx context.Context, inv Invoice) (*Invoice, error) {
	r.nextID++
	inv.ID = r.nextID
	if inv.Number == "" {
		inv.Number = fmt.Sprintf("INV-%05d", inv.ID)
	}
	r.invoices[inv.ID] = &inv
	cp := inv
	return &cp, nil
}

// WithTx restores the invoices and audit entries when fn fails.
func (r *memoryInvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := make(map[int64]*Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		cp := *inv
		saved[id] = &cp
	}
	logs := len(r.audit.logs)
	if err := fn(ctx, memoryInvoiceTx{r}); err != nil {
		r.invoices = saved
		r.audit.logs = r.audit.logs[:logs]
		return err
	}
	return nil
}

func (r *memoryInvoiceRepo) sorted() []Invoice {
	out := make([]Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryInvoiceTx struct {
	r *memoryInvoiceRepo
}

func (t memoryInvoiceTx) GetForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return t.r.Get(ctx, id)
}

func (t memoryInvoiceTx) SaveStatus(ctx context.Context, inv Invoice) error {
	if _, ok := t.r.invoices[inv.ID]; !ok {
		return ErrNotFound
	}
	t.r.invoices[inv.ID] = &inv
	return nil
}

func (t memoryInvoiceTx) MarkOverdue(ctx context.Context, cutoff, at time.Time) ([]int64, error) {
	var ids []int64
	for _, inv := range t.r.sorted() {
		if inv.Status == lifecycle.InvoiceSent && inv.DueAt.Before(cutoff) {
			stored := t.r.invoices[inv.ID]
			stored.Status = lifecycle.InvoiceOverdue
			stored.UpdatedAt = at
			ids = append(ids, inv.ID)
		}
	}
	return ids, nil
}

func (t memoryInvoiceTx) Audit() shared.AuditRecorder {
	return t.r.audit
}

type memoryAudit struct {
	logs []shared.AuditLog
	err  error
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

var sweepDay = time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC)

func newTestService(repo *memoryInvoiceRepo, policy lifecycle.Policy) (*Service, *memoryAudit) {
	return NewService(repo, ServiceConfig{
		Policy: policy,
		Clock:  shared.NewFixedClock(sweepDay),
	}), repo.audit
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSweepOverdueOnlyTouchesSentPastDue(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	past := day(2024, time.May, 9)
	sent := repo.seed(lifecycle.InvoiceSent, past, "100")
	dueToday := repo.seed(lifecycle.InvoiceSent, day(2024, time.May, 10), "100")
	paid := repo.seed(lifecycle.InvoicePaid, past, "100")
	cancelled := repo.seed(lifecycle.InvoiceCancelled, past, "100")
	draft := repo.seed(lifecycle.InvoiceDraft, past, "100")
	svc, audit := newTestService(repo, lifecycle.PolicyStrict)

	res, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []int64{sent}, res.IDs)

	want := map[int64]lifecycle.InvoiceStatus{
		sent:      lifecycle.InvoiceOverdue,
		dueToday:  lifecycle.InvoiceSent,
		paid:      lifecycle.InvoicePaid,
		cancelled: lifecycle.InvoiceCancelled,
		draft:     lifecycle.InvoiceDraft,
	}
	for id, status := range want {
		inv, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, status, inv.Status, "invoice %d", id)
	}
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "status.OVERDUE", audit.logs[0].Action)

	// second run the same day is a no-op
	res, err = svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Len(t, audit.logs, 1)
}

func TestStrictPolicyRejectsIllegalTransitions(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	draft := repo.seed(lifecycle.InvoiceDraft, day(2024, time.June, 1), "50")
	paid := repo.seed(lifecycle.InvoicePaid, day(2024, time.June, 1), "50")
	svc, _ := newTestService(repo, lifecycle.PolicyStrict)
	ctx := context.Background()

	_, err := svc.MarkPaid(ctx, draft, PaymentInput{Method: "bank"})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.Cancel(ctx, paid)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	inv, err := svc.MarkSent(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InvoiceSent, inv.Status)
	require.NotNil(t, inv.SentAt)

	_, err = svc.MarkSent(ctx, draft)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestLenientPolicyTrustsCallerButKeepsTerminal(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	draft := repo.seed(lifecycle.InvoiceDraft, day(2024, time.June, 1), "50")
	cancelled := repo.seed(lifecycle.InvoiceCancelled, day(2024, time.June, 1), "50")
	svc, _ := newTestService(repo, lifecycle.PolicyLenient)
	ctx := context.Background()

	inv, err := svc.MarkPaid(ctx, draft, PaymentInput{Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InvoicePaid, inv.Status)

	_, err = svc.MarkPaid(ctx, cancelled, PaymentInput{Method: "cash"})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.MarkSent(ctx, draft)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestLenientMarkPaidRestampsPaidInvoice(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	id := repo.seed(lifecycle.InvoiceSent, day(2024, time.June, 1), "80")
	ctx := context.Background()

	first := time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	second := time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)

	lenient, _ := newTestService(repo, lifecycle.PolicyLenient)
	_, err := lenient.MarkPaid(ctx, id, PaymentInput{PaidAt: &first, Method: "cash"})
	require.NoError(t, err)
	inv, err := lenient.MarkPaid(ctx, id, PaymentInput{PaidAt: &second, Method: "transfer"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InvoicePaid, inv.Status)
	assert.Equal(t, second, *inv.PaidAt)
	assert.Equal(t, "transfer", inv.PaymentMethod)

	strict, _ := newTestService(repo, lifecycle.PolicyStrict)
	_, err = strict.MarkPaid(ctx, id, PaymentInput{PaidAt: &first, Method: "cash"})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestAuditFailureRollsBackTransition(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	id := repo.seed(lifecycle.InvoiceOverdue, day(2024, time.April, 1), "250")
	sent := repo.seed(lifecycle.InvoiceSent, day(2024, time.April, 1), "90")
	svc, audit := newTestService(repo, lifecycle.PolicyStrict)
	audit.err = errors.New("audit_logs unavailable")
	ctx := context.Background()

	_, err := svc.MarkPaid(ctx, id, PaymentInput{Method: "cash"})
	require.Error(t, err)
	inv, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InvoiceOverdue, inv.Status)
	assert.Nil(t, inv.PaidAt)

	_, err = svc.SweepOverdue(ctx)
	require.Error(t, err)
	inv, err = repo.Get(ctx, sent)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InvoiceSent, inv.Status)
	assert.Empty(t, audit.logs)

	audit.err = nil
	res, err := svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{sent}, res.IDs)
	assert.Len(t, audit.logs, 1)
}

func TestMarkPaidStampsPayment(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	id := repo.seed(lifecycle.InvoiceOverdue, day(2024, time.April, 1), "250")
	svc, audit := newTestService(repo, lifecycle.PolicyStrict)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{UserID: 9})

	_, err := svc.MarkPaid(ctx, id, PaymentInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	paidAt := time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)
	inv, err := svc.MarkPaid(ctx, id, PaymentInput{PaidAt: &paidAt, Method: " transfer "})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InvoicePaid, inv.Status)
	assert.Equal(t, paidAt, *inv.PaidAt)
	assert.Equal(t, "transfer", inv.PaymentMethod)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, int64(9), audit.logs[0].ActorID)
	assert.Equal(t, "OVERDUE", audit.logs[0].Meta["from"])

	_, err = svc.MarkPaid(ctx, 404, PaymentInput{Method: "cash"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateDraft(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc, _ := newTestService(repo, lifecycle.PolicyStrict)

	inv, err := svc.Create(context.Background(), CreateInput{
		ClientID:  3,
		Subtotal:  decimal.RequireFromString("100.005"),
		TaxAmount: decimal.RequireFromString("21"),
		DueAt:     day(2024, time.June, 9),
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.InvoiceDraft, inv.Status)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, "121.01", inv.Total.StringFixed(2))
	assert.Equal(t, day(2024, time.May, 10), inv.IssuedAt)
	assert.NotEmpty(t, inv.Number)

	_, err = svc.Create(context.Background(), CreateInput{ClientID: 3, DueAt: day(2024, time.May, 1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{DueAt: day(2024, time.June, 1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAgingBuckets(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	repo.seed(lifecycle.InvoiceSent, day(2024, time.May, 20), "100")
	repo.seed(lifecycle.InvoiceOverdue, day(2024, time.April, 30), "40")
	repo.seed(lifecycle.InvoiceOverdue, day(2024, time.March, 20), "60")
	repo.seed(lifecycle.InvoiceOverdue, day(2024, time.January, 1), "10")
	repo.seed(lifecycle.InvoicePaid, day(2024, time.January, 1), "999")
	svc, _ := newTestService(repo, lifecycle.PolicyStrict)

	bucket, err := svc.Aging(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "100", bucket.Current.String())
	assert.Equal(t, "40", bucket.Days30.String())
	assert.Equal(t, "60", bucket.Days60.String())
	assert.Equal(t, "0", bucket.Days90.String())
	assert.Equal(t, "10", bucket.Over90.String())
	assert.Equal(t, "210", bucket.Total().String())
}

func TestInvoiceView(t *testing.T) {
	inv := Invoice{Status: lifecycle.InvoiceSent, DueAt: day(2024, time.May, 1)}
	view := inv.View()
	assert.Equal(t, "Sent", view.Label)
	assert.True(t, view.Payable)
	assert.False(t, view.Final)
	assert.ElementsMatch(t, []lifecycle.InvoiceStatus{lifecycle.InvoicePaid, lifecycle.InvoiceOverdue, lifecycle.InvoiceCancelled}, view.Next)
	assert.True(t, inv.IsPastDue(day(2024, time.May, 2)))
}

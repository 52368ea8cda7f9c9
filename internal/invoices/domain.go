// Package invoices applies the invoice status table to explicit user actions
// and to the scheduled overdue sweep.
package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally-crm/tally/internal/lifecycle"
)

// Invoice model. DueAt and IssuedAt are dates (midnight UTC).
type Invoice struct {
	ID            int64                   `json:"id"`
	Number        string                  `json:"number"`
	ClientID      int64                   `json:"client_id"`
	ProjectID     *int64                  `json:"project_id,omitempty"`
	Status        lifecycle.InvoiceStatus `json:"status"`
	Currency      string                  `json:"currency"`
	Subtotal      decimal.Decimal         `json:"subtotal"`
	TaxAmount     decimal.Decimal         `json:"tax_amount"`
	Total         decimal.Decimal         `json:"total"`
	IssuedAt      time.Time               `json:"issued_at"`
	DueAt         time.Time               `json:"due_at"`
	SentAt        *time.Time              `json:"sent_at,omitempty"`
	PaidAt        *time.Time              `json:"paid_at,omitempty"`
	PaymentMethod string                  `json:"payment_method,omitempty"`
	CancelledAt   *time.Time              `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// IsPastDue reports whether an unpaid invoice's due date is before today.
func (i Invoice) IsPastDue(today time.Time) bool {
	return i.Status.IsUnpaid() && i.DueAt.Before(today)
}

// StatusView is the status with its label and the actions available from it.
type StatusView struct {
	Status  lifecycle.InvoiceStatus   `json:"status"`
	Label   string                    `json:"label"`
	Next    []lifecycle.InvoiceStatus `json:"next"`
	Final   bool                      `json:"final"`
	Payable bool                      `json:"payable"`
}

// View describes the invoice status for clients that gate their actions.
func (i Invoice) View() StatusView {
	return StatusView{
		Status:  i.Status,
		Label:   i.Status.Label(),
		Next:    i.Status.AllowedTransitions(),
		Final:   i.Status.IsTerminal(),
		Payable: i.Status.IsUnpaid(),
	}
}

// PaymentInput records how an invoice was settled. PaidAt defaults to now.
type PaymentInput struct {
	PaidAt *time.Time `json:"paid_at"`
	Method string     `json:"payment_method" validate:"required,max=50"`
}

// CreateInput is the draft invoice form.
type CreateInput struct {
	ClientID  int64           `json:"client_id" validate:"required,min=1"`
	ProjectID *int64          `json:"project_id" validate:"omitempty,min=1"`
	Number    string          `json:"number" validate:"max=50"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	IssuedAt  *time.Time      `json:"issued_at"`
	DueAt     time.Time       `json:"due_at" validate:"required"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status   *lifecycle.InvoiceStatus
	ClientID *int64
	Limit    int
	Offset   int
}

// SweepResult reports the invoices an overdue sweep moved.
type SweepResult struct {
	Count int     `json:"count"`
	IDs   []int64 `json:"ids"`
}

// AgingBucket sums unpaid totals by days past due.
type AgingBucket struct {
	Current decimal.Decimal `json:"current"`
	Days30  decimal.Decimal `json:"days_30"`
	Days60  decimal.Decimal `json:"days_60"`
	Days90  decimal.Decimal `json:"days_90"`
	Over90  decimal.Decimal `json:"over_90"`
}

// Total returns the sum of all buckets.
func (b AgingBucket) Total() decimal.Decimal {
	return decimal.Sum(b.Current, b.Days30, b.Days60, b.Days90, b.Over90)
}

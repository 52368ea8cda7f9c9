package lifecycle

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceOverdue   InvoiceStatus = "OVERDUE"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// InvoiceStatuses lists every invoice state in display order.
var InvoiceStatuses = []InvoiceStatus{InvoiceDraft, InvoiceSent, InvoiceOverdue, InvoicePaid, InvoiceCancelled}

// InvoiceTable is the invoice transition table.
var InvoiceTable = NewTable("invoice", map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:     {InvoiceSent, InvoiceCancelled},
	InvoiceSent:      {InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoiceOverdue:   {InvoicePaid, InvoiceCancelled},
	InvoicePaid:      {},
	InvoiceCancelled: {},
})

var invoiceLabels = map[InvoiceStatus]string{
	InvoiceDraft:     "Draft",
	InvoiceSent:      "Sent",
	InvoicePaid:      "Paid",
	InvoiceOverdue:   "Overdue",
	InvoiceCancelled: "Cancelled",
}

// IsValid checks if the status is a known invoice state.
func (s InvoiceStatus) IsValid() bool {
	return InvoiceTable.Known(s)
}

// Label returns the human readable name.
func (s InvoiceStatus) Label() string {
	return invoiceLabels[s]
}

// AllowedTransitions returns the states reachable from s.
func (s InvoiceStatus) AllowedTransitions() []InvoiceStatus {
	return InvoiceTable.Allowed(s)
}

// CanTransitionTo reports whether s → to is allowed.
func (s InvoiceStatus) CanTransitionTo(to InvoiceStatus) bool {
	return InvoiceTable.CanTransition(s, to)
}

// IsTerminal is true for PAID and CANCELLED.
func (s InvoiceStatus) IsTerminal() bool {
	return InvoiceTable.IsTerminal(s)
}

// IsUnpaid is true for SENT and OVERDUE: issued and still awaiting payment.
func (s InvoiceStatus) IsUnpaid() bool {
	return s == InvoiceSent || s == InvoiceOverdue
}

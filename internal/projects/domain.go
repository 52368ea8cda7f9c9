// Package projects runs the offer lifecycle of a project: an offer is sent,
// accepted or declined, and accepted work is started and completed.
package projects

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally-crm/tally/internal/lifecycle"
)

// Project model.
type Project struct {
	ID          int64                   `json:"id"`
	ClientID    int64                   `json:"client_id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	OfferTotal  decimal.Decimal         `json:"offer_total"`
	Status      lifecycle.ProjectStatus `json:"status"`
	SentAt      *time.Time              `json:"sent_at,omitempty"`
	AcceptedAt  *time.Time              `json:"accepted_at,omitempty"`
	DeclinedAt  *time.Time              `json:"declined_at,omitempty"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	CancelledAt *time.Time              `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Action is a user action on a project.
type Action string

const (
	ActionSendOffer    Action = "send"
	ActionAcceptOffer  Action = "accept"
	ActionDeclineOffer Action = "decline"
	ActionStart        Action = "start"
	ActionComplete     Action = "complete"
	ActionCancel       Action = "cancel"
	ActionRevise       Action = "revise"
)

var actionTargets = map[Action]lifecycle.ProjectStatus{
	ActionSendOffer:    lifecycle.ProjectSent,
	ActionAcceptOffer:  lifecycle.ProjectAccepted,
	ActionDeclineOffer: lifecycle.ProjectDeclined,
	ActionStart:        lifecycle.ProjectInProgress,
	ActionComplete:     lifecycle.ProjectCompleted,
	ActionCancel:       lifecycle.ProjectCancelled,
	ActionRevise:       lifecycle.ProjectDraft,
}

// Target returns the status the action leads to.
func (a Action) Target() (lifecycle.ProjectStatus, bool) {
	s, ok := actionTargets[a]
	return s, ok
}

// Actions lists the actions available from the project's status.
func (p Project) Actions() []Action {
	var out []Action
	for _, a := range []Action{ActionSendOffer, ActionAcceptOffer, ActionDeclineOffer, ActionStart, ActionComplete, ActionCancel, ActionRevise} {
		if p.Status.CanTransitionTo(actionTargets[a]) {
			out = append(out, a)
		}
	}
	return out
}

// moveTo sets the status and its timestamp. Revising an offer clears the
// offer timestamps.
func (p *Project) moveTo(to lifecycle.ProjectStatus, now time.Time) {
	p.Status = to
	p.UpdatedAt = now
	switch to {
	case lifecycle.ProjectSent:
		p.SentAt = &now
	case lifecycle.ProjectAccepted:
		p.AcceptedAt = &now
	case lifecycle.ProjectDeclined:
		p.DeclinedAt = &now
	case lifecycle.ProjectInProgress:
		p.StartedAt = &now
	case lifecycle.ProjectCompleted:
		p.CompletedAt = &now
	case lifecycle.ProjectCancelled:
		p.CancelledAt = &now
	case lifecycle.ProjectDraft:
		p.SentAt, p.DeclinedAt = nil, nil
	}
}

// CreateInput is the project form.
type CreateInput struct {
	ClientID    int64           `json:"client_id" validate:"required,min=1"`
	Title       string          `json:"title" validate:"required,max=255"`
	Description string          `json:"description" validate:"max=5000"`
	OfferTotal  decimal.Decimal `json:"offer_total"`
}

// ListFilter narrows project listings.
type ListFilter struct {
	Status   *lifecycle.ProjectStatus
	ClientID *int64
	Limit    int
	Offset   int
}

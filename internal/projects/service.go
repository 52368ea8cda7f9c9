package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/shared"
)

// Service applies project actions through the project transition table.
type Service struct {
	repo      Repository
	clock     shared.Clock
	logger    *slog.Logger
	validator *shared.Validator
}

// NewService builds Service instance.
func NewService(repo Repository, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clock: clock, logger: logger, validator: shared.NewValidator()}
}

// SendOffer sends a draft offer to the client.
func (s *Service) SendOffer(ctx context.Context, id int64) (*Project, error) {
	return s.Apply(ctx, id, ActionSendOffer)
}

// AcceptOffer records the client's acceptance.
func (s *Service) AcceptOffer(ctx context.Context, id int64) (*Project, error) {
	return s.Apply(ctx, id, ActionAcceptOffer)
}

// DeclineOffer records the client's refusal.
func (s *Service) DeclineOffer(ctx context.Context, id int64) (*Project, error) {
	return s.Apply(ctx, id, ActionDeclineOffer)
}

// Start begins work on an accepted project.
func (s *Service) Start(ctx context.Context, id int64) (*Project, error) {
	return s.Apply(ctx, id, ActionStart)
}

// Complete finishes a project in progress.
func (s *Service) Complete(ctx context.Context, id int64) (*Project, error) {
	return s.Apply(ctx, id, ActionComplete)
}

// Cancel abandons a project that is not finished.
func (s *Service) Cancel(ctx context.Context, id int64) (*Project, error) {
	return s.Apply(ctx, id, ActionCancel)
}

// Revise reopens a declined offer as a draft.
func (s *Service) Revise(ctx context.Context, id int64) (*Project, error) {
	return s.Apply(ctx, id, ActionRevise)
}

// Apply runs a named action.
func (s *Service) Apply(ctx context.Context, id int64, action Action) (*Project, error) {
	to, ok := action.Target()
	if !ok {
		return nil, shared.NewValidationError("action", fmt.Sprintf("unknown project action %q", action))
	}
	now := s.clock.Now()
	var (
		out  Project
		from lifecycle.ProjectStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = p.Status
		if err := lifecycle.ProjectTable.Check(from, to); err != nil {
			return err
		}
		p.moveTo(to, now)
		if err := tx.SaveStatus(ctx, *p); err != nil {
			return err
		}
		if err := shared.RecordTransition(ctx, tx.Audit(), "project", id, string(from), string(to), now); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		out = *p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project %d %s: %w", id, action, err)
	}
	s.logger.Debug("project status changed",
		slog.Int64("project_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return &out, nil
}

// Create stores a draft project.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Project, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	if input.OfferTotal.IsNegative() {
		return nil, shared.NewValidationError("offer_total", "must not be negative")
	}
	now := s.clock.Now()
	p := Project{
		ClientID:    input.ClientID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		OfferTotal:  input.OfferTotal.Round(2),
		Status:      lifecycle.ProjectDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	p.ID = id
	return &p, nil
}

// Get returns a project by id.
func (s *Service) Get(ctx context.Context, id int64) (*Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns projects matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, shared.NewValidationError("status", "unknown project status")
	}
	return s.repo.List(ctx, filter)
}

// OpenOffers counts projects whose offer awaits an answer.
func (s *Service) OpenOffers(ctx context.Context) (int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	for status, c := range counts {
		if status.IsOpenOffer() {
			n += c
		}
	}
	return n, nil
}

package locations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// DraftChecker reports whether draft documents still reference a location.
type DraftChecker interface {
	HasDraftDocuments(ctx context.Context, locationID int64) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo      Repository
	drafts    DraftChecker
	audit     AuditPort
	logger    *slog.Logger
	validator *validator.Validate
}

func NewService(repo Repository, drafts DraftChecker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, drafts: drafts, audit: audit, logger: logger, validator: newValidator()}
}

// SetDraftChecker wires the document engine after construction; documents
// depend on locations so the checker cannot be built first.
func (s *Service) SetDraftChecker(drafts DraftChecker) {
	s.drafts = drafts
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Location, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, ErrLocationNotFound
	}
	return s.repo.Get(ctx, id)
}

// RequireActive returns the location or an error when it is unknown or inactive.
func (s *Service) RequireActive(ctx context.Context, id int64) (Location, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if !loc.Active {
		return Location{}, fmt.Errorf("location %d: %w", id, ErrLocationInactive)
	}
	return loc, nil
}

func (s *Service) Create(ctx context.Context, input CreateInput) (Location, error) {
	if err := s.validate(input); err != nil {
		return Location{}, err
	}
	loc := Location{
		Code:    input.Code,
		Name:    input.Name,
		Kind:    input.Kind,
		Address: input.Address,
		Phone:   input.Phone,
		Active:  true,
	}
	normalise(&loc)
	created, err := s.repo.Create(ctx, loc)
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, "locations:create", created.ID, map[string]any{"name": created.Name, "kind": created.Kind})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Location, error) {
	if err := s.validate(input); err != nil {
		return Location{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	updated, err := s.repo.Update(ctx, input.apply(current))
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, "locations:update", id, nil)
	return updated, nil
}

// Deactivate hides a location from new documents. Locations are never deleted.
func (s *Service) Deactivate(ctx context.Context, id int64) (Location, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if !loc.Active {
		return loc, nil
	}
	if loc.IsDefault {
		return Location{}, ErrDefaultLocation
	}
	if s.drafts != nil {
		inUse, err := s.drafts.HasDraftDocuments(ctx, id)
		if err != nil {
			return Location{}, err
		}
		if inUse {
			return Location{}, ErrLocationInUse
		}
	}
	loc, err = s.repo.SetActive(ctx, id, false)
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, "locations:deactivate", id, nil)
	return loc, nil
}

// Activate re-enables a deactivated location.
func (s *Service) Activate(ctx context.Context, id int64) (Location, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if loc.Active {
		return loc, nil
	}
	loc, err = s.repo.SetActive(ctx, id, true)
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, "locations:activate", id, nil)
	return loc, nil
}

// SetDefault makes id the default location, clearing the previous default
// in the same transaction.
func (s *Service) SetDefault(ctx context.Context, id int64) (Location, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if !loc.Active {
		return Location{}, ErrLocationInactive
	}
	if loc.IsDefault {
		return loc, nil
	}
	loc, err = s.repo.SetDefault(ctx, id)
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, "locations:set_default", id, nil)
	return loc, nil
}

// Default returns the current default location.
func (s *Service) Default(ctx context.Context) (Location, error) {
	active := true
	items, _, err := s.repo.List(ctx, ListFilters{IsActive: &active})
	if err != nil {
		return Location{}, err
	}
	for _, loc := range items {
		if loc.IsDefault {
			return loc, nil
		}
	}
	return Location{}, ErrLocationNotFound
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "location",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit location change", slog.String("action", action), slog.Any("error", err))
	}
}

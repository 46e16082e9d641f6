package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Repository persists parts.
type Repository interface {
	Create(ctx context.Context, part Part) (Part, error)
	Get(ctx context.Context, id int64) (Part, error)
	List(ctx context.Context, filters ListFilters) ([]Part, int, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)
	Deactivate(ctx context.Context, id int64, at time.Time) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the part catalog.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Create registers a new active part.
func (s *Service) Create(ctx context.Context, part Part) (Part, error) {
	part.Code = strings.ToUpper(strings.TrimSpace(part.Code))
	part.Name = strings.TrimSpace(part.Name)
	if part.UOM == "" {
		part.UOM = "pcs"
	}
	if err := s.validate(part); err != nil {
		return Part{}, err
	}
	part.Status = PartActive
	part.DeactivatedAt = nil
	created, err := s.repo.Create(ctx, part)
	if err != nil {
		return Part{}, err
	}
	s.record(ctx, "catalog:create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// Get returns a part by id, including inactive ones.
func (s *Service) Get(ctx context.Context, id int64) (Part, error) {
	if id <= 0 {
		return Part{}, ErrPartNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns one page of parts matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Part, shared.Pagination, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	parts, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return parts, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// ListActiveIDs returns the ids of every active part.
func (s *Service) ListActiveIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListActiveIDs(ctx)
}

// Deactivate tombstones a part. Deactivating twice is an invalid transition.
func (s *Service) Deactivate(ctx context.Context, id int64) (Part, error) {
	part, err := s.Get(ctx, id)
	if err != nil {
		return Part{}, err
	}
	if !part.Active() {
		return Part{}, fmt.Errorf("catalog: part %d already inactive: %w", id, shared.ErrInvalidStateTransition)
	}
	now := time.Now().UTC()
	if err := s.repo.Deactivate(ctx, id, now); err != nil {
		return Part{}, err
	}
	part.Status = PartInactive
	part.DeactivatedAt = &now
	s.record(ctx, "catalog:deactivate", id, nil)
	return part, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "part",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("catalog audit", slog.String("action", action), slog.Any("error", err))
	}
}

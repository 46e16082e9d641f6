package locations

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Repository persists locations.
type Repository interface {
	Create(ctx context.Context, loc Location) (Location, error)
	Get(ctx context.Context, id int64) (Location, error)
	Children(ctx context.Context, parentID int64) ([]Location, error)
	// Subtree returns id and every descendant id.
	Subtree(ctx context.Context, id int64) ([]int64, error)
}

// Service manages the location hierarchy.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a location, enforcing warehouse → zone → bin containment.
func (s *Service) Create(ctx context.Context, loc Location) (Location, error) {
	loc.Code = strings.ToUpper(strings.TrimSpace(loc.Code))
	loc.Name = strings.TrimSpace(loc.Name)
	if loc.Code == "" || loc.Name == "" {
		return Location{}, fmt.Errorf("location code and name are required: %w", shared.ErrValidation)
	}
	switch loc.Kind {
	case KindWarehouse:
		if loc.ParentID != nil {
			return Location{}, ErrInvalidParent
		}
	case KindZone, KindBin:
		if loc.ParentID == nil {
			return Location{}, ErrInvalidParent
		}
		parent, err := s.repo.Get(ctx, *loc.ParentID)
		if err != nil {
			return Location{}, err
		}
		if parent.Kind != parentKind[loc.Kind] {
			return Location{}, fmt.Errorf("%w: %s cannot be placed in %s", ErrInvalidParent, loc.Kind, parent.Kind)
		}
	default:
		return Location{}, fmt.Errorf("unsupported location kind %q: %w", loc.Kind, shared.ErrValidation)
	}
	return s.repo.Create(ctx, loc)
}

// Get returns a location by id.
func (s *Service) Get(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, ErrLocationNotFound
	}
	return s.repo.Get(ctx, id)
}

// Children lists the direct children of a location.
func (s *Service) Children(ctx context.Context, id int64) ([]Location, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Children(ctx, id)
}

// Scope returns the location and all nested location ids. A warehouse scope covers its
// zones and bins.
func (s *Service) Scope(ctx context.Context, id int64) ([]int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Subtree(ctx, id)
}

// Path returns the chain from the root warehouse down to id.
func (s *Service) Path(ctx context.Context, id int64) ([]Location, error) {
	var path []Location
	next := &id
	for depth := 0; next != nil; depth++ {
		if depth > 3 {
			return nil, fmt.Errorf("locations: hierarchy deeper than expected at %d: %w", id, shared.ErrIntegrity)
		}
		loc, err := s.Get(ctx, *next)
		if err != nil {
			return nil, err
		}
		path = append([]Location{loc}, path...)
		next = loc.ParentID
	}
	return path, nil
}

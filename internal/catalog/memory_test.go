package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryRepo struct {
	mu     sync.Mutex
	parts  map[int64]Part
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{parts: make(map[int64]Part)}
}

func (r *memoryRepo) Create(_ context.Context, part Part) (Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.parts {
		if existing.Code == part.Code {
			return Part{}, ErrDuplicateCode
		}
	}
	r.nextID++
	part.ID = r.nextID
	part.CreatedAt = time.Now().UTC()
	part.UpdatedAt = part.CreatedAt
	r.parts[part.ID] = part
	return part, nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parts[id]
	if !ok {
		return Part{}, ErrPartNotFound
	}
	return p, nil
}

func (r *memoryRepo) List(_ context.Context, filters ListFilters) ([]Part, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Part
	for _, p := range r.parts {
		if filters.Status != "" && p.Status != filters.Status {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name+p.Code), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	total := len(out)
	start := (filters.Page - 1) * filters.Limit
	if start > total {
		start = total
	}
	end := min(start+filters.Limit, total)
	return out[start:end], total, nil
}

func (r *memoryRepo) ListActiveIDs(_ context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, p := range r.parts {
		if p.Active() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRepo) Deactivate(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parts[id]
	if !ok || !p.Active() {
		return ErrPartNotFound
	}
	p.Status = PartInactive
	p.DeactivatedAt = &at
	r.parts[id] = p
	return nil
}

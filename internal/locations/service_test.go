package locations

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	locs   map[int64]Location
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{locs: make(map[int64]Location)}
}

func (r *memoryRepo) Create(_ context.Context, loc Location) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.locs {
		if l.Code == loc.Code {
			return Location{}, ErrDuplicateCode
		}
	}
	r.nextID++
	loc.ID = r.nextID
	r.locs[loc.ID] = loc
	return loc, nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.locs[id]
	if !ok {
		return Location{}, ErrLocationNotFound
	}
	return loc, nil
}

func (r *memoryRepo) Children(_ context.Context, parentID int64) ([]Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Location
	for _, l := range r.locs {
		if l.ParentID != nil && *l.ParentID == parentID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) Subtree(ctx context.Context, id int64) ([]int64, error) {
	ids := []int64{id}
	children, _ := r.Children(ctx, id)
	for _, c := range children {
		sub, _ := r.Subtree(ctx, c.ID)
		ids = append(ids, sub...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func ptr(v int64) *int64 { return &v }

func TestHierarchyContainment(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	wh, err := svc.Create(ctx, Location{Code: "wh1", Name: "Main", Kind: KindWarehouse})
	require.NoError(t, err)
	zone, err := svc.Create(ctx, Location{Code: "Z1", Name: "Engine", Kind: KindZone, ParentID: ptr(wh.ID)})
	require.NoError(t, err)
	bin, err := svc.Create(ctx, Location{Code: "B1", Name: "Shelf 1", Kind: KindBin, ParentID: ptr(zone.ID)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Location{Code: "B2", Name: "Loose", Kind: KindBin, ParentID: ptr(wh.ID)})
	require.ErrorIs(t, err, ErrInvalidParent)
	_, err = svc.Create(ctx, Location{Code: "W2", Name: "Nested", Kind: KindWarehouse, ParentID: ptr(wh.ID)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(ctx, Location{Code: "Z9", Name: "Orphan", Kind: KindZone, ParentID: ptr(99)})
	require.ErrorIs(t, err, shared.ErrReferentialIntegrity)

	scope, err := svc.Scope(ctx, wh.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{wh.ID, zone.ID, bin.ID}, scope)

	path, err := svc.Path(ctx, bin.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	require.Equal(t, "WH1", path[0].Code)
	require.Equal(t, KindBin, path[2].Kind)
}

func TestChildrenOfUnknown(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Children(context.Background(), 5)
	require.ErrorIs(t, err, ErrLocationNotFound)
}

package service

import (
	"context"
	"strconv"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/util"
)

// SlugAllocator picks the first unused slug for a title.
//
// Probing only narrows the race: two writers can both see a slug as free.
// The unique index on posts.slug decides, and the loser re-allocates.
type SlugAllocator struct {
	store     store.Store
	maxProbes int
}

// NewSlugAllocator creates an allocator that tries at most maxProbes candidates.
func NewSlugAllocator(store store.Store, maxProbes int) *SlugAllocator {
	if maxProbes <= 0 {
		maxProbes = DefaultPipelineOptions().SlugMaxProbes
	}
	return &SlugAllocator{store: store, maxProbes: maxProbes}
}

// Allocate returns Slugify(source) or its first free "-N" variant.
// excludeID is the post being updated (0 for a new post) so it never
// collides with its own current slug.
func (a *SlugAllocator) Allocate(ctx context.Context, excludeID int64, source string) (string, error) {
	base := util.Slugify(source)

	for n := range a.maxProbes {
		candidate := base
		if n > 0 {
			candidate = base + "-" + strconv.Itoa(n)
		}

		taken, err := a.store.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", mapStoreError(err, "post")
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", domainerrors.AllocationExhausted(base, a.maxProbes)
}

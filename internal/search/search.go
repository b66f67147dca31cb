package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// Index groups the per-kind indexes behind the store.SearchIndexer contract.
type Index struct {
	kinds map[domain.Kind]*KindIndex
}

var _ store.SearchIndexer = (*Index)(nil)

// NewIndex opens one index per entity kind.
func NewIndex(opts Options) (*Index, error) {
	idx := &Index{kinds: make(map[domain.Kind]*KindIndex, len(domain.Kinds))}
	for _, kind := range domain.Kinds {
		ki, err := openKindIndex(kind, opts)
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		idx.kinds[kind] = ki
	}
	return idx, nil
}

// Kind returns the index for kind.
func (i *Index) Kind(kind domain.Kind) (*KindIndex, error) {
	ki, ok := i.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("no index for kind %q", kind)
	}
	return ki, nil
}

// Upsert replaces the indexed fields of (kind, id) at revision rev.
func (i *Index) Upsert(ctx context.Context, kind domain.Kind, id, rev int64, fields map[string]string) error {
	ki, err := i.Kind(kind)
	if err != nil {
		return err
	}
	return ki.Upsert(ctx, Entry{ID: id, Rev: rev, Fields: fields})
}

// UpsertAll indexes many entries of one kind in batches.
func (i *Index) UpsertAll(ctx context.Context, kind domain.Kind, entries ...Entry) error {
	ki, err := i.Kind(kind)
	if err != nil {
		return err
	}
	return ki.Upsert(ctx, entries...)
}

// Remove deletes (kind, id) unless a newer revision was already applied.
func (i *Index) Remove(ctx context.Context, kind domain.Kind, id, rev int64) error {
	ki, err := i.Kind(kind)
	if err != nil {
		return err
	}
	return ki.Remove(ctx, id, rev)
}

// Search returns matching ids of kind.
func (i *Index) Search(ctx context.Context, kind domain.Kind, text string, limit int) ([]int64, error) {
	ki, err := i.Kind(kind)
	if err != nil {
		return nil, err
	}
	return ki.Search(ctx, text, limit)
}

// IDs returns every indexed id of kind in ascending order.
func (i *Index) IDs(ctx context.Context, kind domain.Kind) ([]int64, error) {
	ki, err := i.Kind(kind)
	if err != nil {
		return nil, err
	}
	return ki.IDs(ctx)
}

// Empty reports whether no kind holds any document.
func (i *Index) Empty() (bool, error) {
	for _, ki := range i.kinds {
		n, err := ki.DocumentCount()
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// Close closes every kind index.
func (i *Index) Close() error {
	var errs []error
	for _, ki := range i.kinds {
		if err := ki.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s index: %w", ki.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/desync"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/id"
	"github.com/inkwellapp/inkwell-server/internal/search"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// SearchIndex is the index backend driven by SearchService.
// *search.Index implements it.
type SearchIndex interface {
	store.SearchIndexer
	UpsertAll(ctx context.Context, kind domain.Kind, entries ...search.Entry) error
	Search(ctx context.Context, kind domain.Kind, text string, limit int) ([]int64, error)
	IDs(ctx context.Context, kind domain.Kind) ([]int64, error)
	Empty() (bool, error)
}

var _ SearchIndex = (*search.Index)(nil)

// SearchService keeps the search indexes in step with the store.
// It bridges the index with the data store: pipeline services call it after
// every commit, and the reconcile jobs call it to repair drift.
type SearchService struct {
	index  SearchIndex
	store  store.Store
	ledger *desync.Ledger
	opts   PipelineOptions
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index SearchIndex, store store.Store, ledger *desync.Ledger, opts PipelineOptions, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  index,
		store:  store,
		ledger: ledger,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Search returns the ids of kind matching text, most relevant first.
func (s *SearchService) Search(ctx context.Context, kind domain.Kind, text string) ([]int64, error) {
	ids, err := s.index.Search(ctx, kind, text, s.opts.SearchLimit)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "search failed")
	}
	return ids, nil
}

// SearchPosts resolves matching post ids against the store.
// Ids whose row vanished since indexing are skipped.
func (s *SearchService) SearchPosts(ctx context.Context, text string) ([]*domain.Post, error) {
	ids, err := s.Search(ctx, domain.KindPost, text)
	if err != nil {
		return nil, err
	}

	posts := make([]*domain.Post, 0, len(ids))
	for _, postID := range ids {
		p, err := s.store.GetPost(ctx, postID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, mapStoreError(err, "post")
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// SearchUsers resolves matching user ids against the store.
func (s *SearchService) SearchUsers(ctx context.Context, text string) ([]*domain.User, error) {
	ids, err := s.Search(ctx, domain.KindUser, text)
	if err != nil {
		return nil, err
	}

	users := make([]*domain.User, 0, len(ids))
	for _, userID := range ids {
		u, err := s.store.GetUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, mapStoreError(err, "user")
		}
		users = append(users, u)
	}
	return users, nil
}

// IndexPost upserts a committed post. A failure is returned as IndexDesync
// after the entity has been flagged for repair.
func (s *SearchService) IndexPost(ctx context.Context, p *domain.Post) error {
	return s.sync(ctx, domain.KindPost, p.ID, p.Revision, desync.OpUpsert, p.IndexFields())
}

// RemovePost drops a deleted post at its tombstone revision.
func (s *SearchService) RemovePost(ctx context.Context, postID, rev int64) error {
	return s.sync(ctx, domain.KindPost, postID, rev, desync.OpRemove, nil)
}

// IndexUser upserts a committed user.
func (s *SearchService) IndexUser(ctx context.Context, u *domain.User) error {
	return s.sync(ctx, domain.KindUser, u.ID, u.Revision, desync.OpUpsert, u.IndexFields())
}

// RemoveUser drops a deleted user at its tombstone revision.
func (s *SearchService) RemoveUser(ctx context.Context, userID, rev int64) error {
	return s.sync(ctx, domain.KindUser, userID, rev, desync.OpRemove, nil)
}

// sync applies one index mutation for an already committed change.
// Caller cancellation is ignored; IndexTimeout bounds the wait instead.
func (s *SearchService) sync(ctx context.Context, kind domain.Kind, entityID, rev int64, op desync.Op, fields map[string]string) error {
	detached := context.WithoutCancel(ctx)
	ictx, cancel := context.WithTimeout(detached, s.opts.IndexTimeout)
	defer cancel()

	var err error
	switch op {
	case desync.OpUpsert:
		err = s.index.Upsert(ictx, kind, entityID, rev, fields)
	case desync.OpRemove:
		err = s.index.Remove(ictx, kind, entityID, rev)
	}
	if err == nil {
		s.logger.Debug("index updated", "kind", string(kind), "id", entityID, "rev", rev, "op", string(op))
		return nil
	}

	s.logger.Warn("search index desync",
		"kind", string(kind),
		"id", entityID,
		"rev", rev,
		"op", string(op),
		"error", err,
	)
	entry := desync.Entry{Kind: kind, ID: entityID, Op: op, Rev: rev, Error: err.Error()}
	if flagErr := s.ledger.Flag(detached, entry); flagErr != nil {
		s.logger.Error("failed to flag index desync", "kind", string(kind), "id", entityID, "error", flagErr)
	}
	return domainerrors.IndexDesync(err, string(kind), entityID)
}

// RepairResult summarizes one RepairFlagged run.
type RepairResult struct {
	RunID    string
	Repaired int
	Failed   int
}

// RepairFlagged re-applies every ledger entry from the current store row.
// Entries that still fail stay flagged with their attempt count bumped.
func (s *SearchService) RepairFlagged(ctx context.Context) (*RepairResult, error) {
	res := &RepairResult{RunID: id.MustGenerate(id.PrefixRepair)}
	logger := s.logger.With("run_id", res.RunID)

	entries, err := s.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list desync ledger: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}

	logger.Info("repairing flagged index entries", "count", len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := s.repair(ctx, e); err != nil {
			res.Failed++
			e.Attempts++
			e.Error = err.Error()
			e.FlaggedAt = time.Now()
			logger.Warn("index repair failed", "kind", string(e.Kind), "id", e.ID, "attempts", e.Attempts, "error", err)
			if flagErr := s.ledger.Flag(ctx, e); flagErr != nil {
				return res, fmt.Errorf("reflag %s %d: %w", e.Kind, e.ID, flagErr)
			}
			continue
		}

		if err := s.ledger.Clear(ctx, e.Kind, e.ID, e.Rev); err != nil {
			return res, fmt.Errorf("clear %s %d: %w", e.Kind, e.ID, err)
		}
		res.Repaired++
	}

	logger.Info("index repair complete", "repaired", res.Repaired, "failed", res.Failed)
	return res, nil
}

// repair reloads the entity and applies whatever its current state implies.
func (s *SearchService) repair(ctx context.Context, e desync.Entry) error {
	ictx, cancel := context.WithTimeout(ctx, s.opts.IndexTimeout)
	defer cancel()

	var (
		fields map[string]string
		rev    int64
		err    error
	)
	switch e.Kind {
	case domain.KindPost:
		var p *domain.Post
		p, err = s.store.GetPost(ctx, e.ID)
		if err == nil {
			fields, rev = p.IndexFields(), p.Revision
		}
	case domain.KindUser:
		var u *domain.User
		u, err = s.store.GetUser(ctx, e.ID)
		if err == nil {
			fields, rev = u.IndexFields(), u.Revision
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		// Ids are never reused, so an unversioned removal is safe.
		return s.index.Remove(ictx, e.Kind, e.ID, 0)
	case err != nil:
		return err
	default:
		return s.index.Upsert(ictx, e.Kind, e.ID, rev, fields)
	}
}

// ReconcileResult summarizes one full sweep.
type ReconcileResult struct {
	RunID    string
	Upserted map[domain.Kind]int
	Removed  map[domain.Kind]int
	Duration time.Duration
}

// Reconcile recomputes both indexes from the store: every row is upserted
// and every index entry without a row is removed. Ledger entries flagged
// before the sweep started are cleared once it succeeds.
func (s *SearchService) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	start := time.Now()
	res := &ReconcileResult{
		RunID:    id.MustGenerate(id.PrefixSweep),
		Upserted: make(map[domain.Kind]int, len(domain.Kinds)),
		Removed:  make(map[domain.Kind]int, len(domain.Kinds)),
	}
	logger := s.logger.With("run_id", res.RunID)
	logger.Info("starting index sweep")

	flagged, err := s.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list desync ledger: %w", err)
	}

	for _, kind := range domain.Kinds {
		upserted, removed, err := s.reconcileKind(ctx, kind)
		if err != nil {
			logger.Error("index sweep failed", "kind", string(kind), "error", err)
			return nil, fmt.Errorf("reconcile %s index: %w", kind, err)
		}
		res.Upserted[kind] = upserted
		res.Removed[kind] = removed
	}

	for _, e := range flagged {
		if err := s.ledger.Clear(ctx, e.Kind, e.ID, e.Rev); err != nil {
			return nil, fmt.Errorf("clear %s %d: %w", e.Kind, e.ID, err)
		}
	}

	res.Duration = time.Since(start)
	logger.Info("index sweep complete",
		"posts", res.Upserted[domain.KindPost],
		"users", res.Upserted[domain.KindUser],
		"orphans_removed", res.Removed[domain.KindPost]+res.Removed[domain.KindUser],
		"cleared_flags", len(flagged),
		"duration", res.Duration,
	)
	return res, nil
}

func (s *SearchService) reconcileKind(ctx context.Context, kind domain.Kind) (upserted, removed int, err error) {
	// Snapshot the index before reading the store: an entity created in
	// between is then absent from the snapshot, never mistaken for an orphan.
	indexed, err := s.index.IDs(ctx, kind)
	if err != nil {
		return 0, 0, fmt.Errorf("list indexed ids: %w", err)
	}

	var entries []search.Entry
	switch kind {
	case domain.KindPost:
		posts, err := s.store.ListPosts(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("list posts: %w", err)
		}
		entries = make([]search.Entry, 0, len(posts))
		for _, p := range posts {
			entries = append(entries, search.Entry{ID: p.ID, Rev: p.Revision, Fields: p.IndexFields()})
		}
	case domain.KindUser:
		users, err := s.store.ListUsers(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("list users: %w", err)
		}
		entries = make([]search.Entry, 0, len(users))
		for _, u := range users {
			entries = append(entries, search.Entry{ID: u.ID, Rev: u.Revision, Fields: u.IndexFields()})
		}
	default:
		return 0, 0, fmt.Errorf("unknown kind %q", kind)
	}

	if err := s.index.UpsertAll(ctx, kind, entries...); err != nil {
		return 0, 0, fmt.Errorf("upsert: %w", err)
	}

	live := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		live[e.ID] = struct{}{}
	}
	for _, indexedID := range indexed {
		if _, ok := live[indexedID]; ok {
			continue
		}
		if err := s.index.Remove(ctx, kind, indexedID, 0); err != nil {
			return len(entries), removed, fmt.Errorf("remove orphan %d: %w", indexedID, err)
		}
		removed++
	}
	return len(entries), removed, nil
}

// EnsureIndexed runs a sweep when the index is empty but the store is not,
// as after first start or a mapping rebuild. Reports whether a sweep ran.
func (s *SearchService) EnsureIndexed(ctx context.Context) (bool, error) {
	empty, err := s.index.Empty()
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	if !empty {
		return false, nil
	}

	posts, err := s.store.CountPosts(ctx)
	if err != nil {
		return false, mapStoreError(err, "post")
	}
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, mapStoreError(err, "user")
	}
	if posts == 0 && users == 0 {
		return false, nil
	}

	s.logger.Info("search index empty, rebuilding", "posts", posts, "users", users)
	if _, err := s.Reconcile(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FlaggedCount returns how many entities await repair.
func (s *SearchService) FlaggedCount(ctx context.Context) (int, error) {
	return s.ledger.Count(ctx)
}

// Flagged lists the entities awaiting repair.
func (s *SearchService) Flagged(ctx context.Context) ([]desync.Entry, error) {
	entries, err := s.ledger.List(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "list desync ledger")
	}
	return entries, nil
}

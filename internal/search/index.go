package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// ErrClosed is returned for mutations sent after Close.
var ErrClosed = errors.New("search index closed")

// mappingVersion is incremented whenever the index mapping changes.
// This triggers an automatic rebuild on startup when the version doesn't match.
const mappingVersion = "1"

// batchSize bounds the number of documents per Bleve batch.
const batchSize = 500

// Options configures the search indexes.
type Options struct {
	DataPath string       // Directory for index storage; empty keeps indexes in memory
	Logger   *slog.Logger // Logger for operations (uses discard if nil)
}

type opKind int

const (
	opUpsert opKind = iota
	opRemove
)

// op is a mutation queued for the writer goroutine.
type op struct {
	kind    opKind
	entries []Entry // opUpsert
	id      int64   // opRemove
	rev     int64   // opRemove
	result  chan error
}

// KindIndex wraps the Bleve index of one entity kind.
//
// Thread safety: mutations are serialized through a single writer goroutine;
// searches run concurrently with it. The mutex only guards Close.
type KindIndex struct {
	kind   domain.Kind
	index  bleve.Index
	path   string
	logger *slog.Logger

	ops  chan op
	quit chan struct{}
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	// lastRev is owned by the writer goroutine.
	lastRev map[int64]int64
}

// openKindIndex creates or opens the index for kind and starts its writer.
// If the existing index is corrupted or has an outdated mapping, it's removed and recreated.
func openKindIndex(kind domain.Kind, opts Options) (*KindIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("kind", string(kind))

	var (
		index     bleve.Index
		indexPath string
		err       error
	)

	if opts.DataPath == "" {
		index, err = bleve.NewMemOnly(buildIndexMapping(kind))
		if err != nil {
			return nil, fmt.Errorf("create in-memory %s index: %w", kind, err)
		}
	} else {
		indexPath = filepath.Join(opts.DataPath, string(kind)+"s.bleve")
		index, err = openOnDisk(kind, indexPath, filepath.Join(opts.DataPath, string(kind)+"s.version"), logger)
		if err != nil {
			return nil, err
		}
	}

	ki := &KindIndex{
		kind:    kind,
		index:   index,
		path:    indexPath,
		logger:  logger,
		ops:     make(chan op),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		lastRev: make(map[int64]int64),
	}
	go ki.run()

	return ki, nil
}

func openOnDisk(kind domain.Kind, indexPath, versionPath string, logger *slog.Logger) (bleve.Index, error) {
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		if readErr != nil || string(existingVersion) != mappingVersion {
			logger.Info("search index mapping version changed, will rebuild",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	var index bleve.Index
	if !needsRebuild && indexExists {
		var err error
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing index, will recreate",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("remove old index: %w", err)
		}
		index = nil
	}

	if index != nil {
		logger.Info("opened existing search index", "path", indexPath)
		return index, nil
	}

	index, err := bleve.New(indexPath, buildIndexMapping(kind))
	if err != nil {
		return nil, fmt.Errorf("create %s index: %w", kind, err)
	}
	if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
		logger.Warn("failed to write search version file", "error", writeErr)
	}
	logger.Info("created new search index", "path", indexPath, "mapping_version", mappingVersion)
	return index, nil
}

// Kind returns the entity kind this index holds.
func (k *KindIndex) Kind() domain.Kind { return k.kind }

// Upsert replaces the documents for the given entries.
func (k *KindIndex) Upsert(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return k.submit(ctx, op{kind: opUpsert, entries: entries})
}

// Remove deletes the document for id. Removing an absent id is a no-op.
func (k *KindIndex) Remove(ctx context.Context, id, rev int64) error {
	return k.submit(ctx, op{kind: opRemove, id: id, rev: rev})
}

// submit hands o to the writer and waits for it to be applied.
// If ctx ends before the writer accepts o, nothing is applied.
func (k *KindIndex) submit(ctx context.Context, o op) error {
	o.result = make(chan error, 1)

	select {
	case k.ops <- o:
	case <-k.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-o.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the single writer loop.
func (k *KindIndex) run() {
	defer close(k.done)
	for {
		select {
		case o := <-k.ops:
			o.result <- k.apply(o)
		case <-k.quit:
			return
		}
	}
}

func (k *KindIndex) apply(o op) error {
	switch o.kind {
	case opUpsert:
		return k.applyUpsert(o.entries)
	case opRemove:
		return k.applyRemove(o.id, o.rev)
	default:
		return fmt.Errorf("unknown op %d", o.kind)
	}
}

// stale reports whether rev is older than the last revision applied for id.
func (k *KindIndex) stale(id, rev int64) bool {
	return rev != 0 && rev < k.lastRev[id]
}

func (k *KindIndex) record(id, rev int64) {
	if rev != 0 {
		k.lastRev[id] = rev
	}
}

func (k *KindIndex) applyUpsert(entries []Entry) error {
	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))

		batch := k.index.NewBatch()
		applied := make([]Entry, 0, end-i)
		for _, e := range entries[i:end] {
			if k.stale(e.ID, e.Rev) {
				k.logger.Debug("dropping stale index upsert", "id", e.ID, "rev", e.Rev, "last_rev", k.lastRev[e.ID])
				continue
			}
			if err := batch.Index(docID(e.ID), toDocument(k.kind, e)); err != nil {
				return fmt.Errorf("batch index %d: %w", e.ID, err)
			}
			applied = append(applied, e)
		}
		if len(applied) == 0 {
			continue
		}

		if err := k.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
		for _, e := range applied {
			k.record(e.ID, e.Rev)
		}
		k.logger.Debug("indexed documents", "count", len(applied))
	}
	return nil
}

func (k *KindIndex) applyRemove(id, rev int64) error {
	if k.stale(id, rev) {
		k.logger.Debug("dropping stale index removal", "id", id, "rev", rev, "last_rev", k.lastRev[id])
		return nil
	}
	if err := k.index.Delete(docID(id)); err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	k.record(id, rev)
	k.logger.Debug("removed document", "id", id, "rev", rev)
	return nil
}

// DocumentCount returns the total number of indexed documents.
func (k *KindIndex) DocumentCount() (uint64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return 0, ErrClosed
	}
	return k.index.DocCount()
}

// IDs returns every indexed entity id.
func (k *KindIndex) IDs(ctx context.Context) ([]int64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, ErrClosed
	}

	count, err := k.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return []int64{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	req.SortBy([]string{numericIDField})
	res, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := parseDocID(hit.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close stops the writer and closes the index.
func (k *KindIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true

	close(k.quit)
	<-k.done
	return k.index.Close()
}

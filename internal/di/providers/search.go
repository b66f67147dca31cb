package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/search"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.Index
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	indexPath := cfg.Storage.IndexPath()
	if err := os.MkdirAll(indexPath, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	index, err := search.NewIndex(search.Options{
		DataPath: indexPath,
		Logger:   log.Component("search"),
	})
	if err != nil {
		return nil, err
	}

	empty, _ := index.Empty()
	log.Info("Search index initialized", "path", indexPath, "empty", empty)

	return &SearchIndexHandle{Index: index}, nil
}

// ProvideSearchService provides the search service.
func ProvideSearchService(i do.Injector) (*service.SearchService, error) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	ledgerHandle := do.MustInvoke[*LedgerHandle](i)
	opts := do.MustInvoke[service.PipelineOptions](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSearchService(indexHandle.Index, storeHandle.Store, ledgerHandle.Ledger, opts, log.Component("search")), nil
}

// TriggerSearchReindexIfNeeded rebuilds the index in the background when it
// is empty but the store is not, e.g. after the index directory was deleted.
// Should be called after all services are wired.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	searchService := do.MustInvoke[*service.SearchService](i)
	log := do.MustInvoke[*logger.Logger](i)

	go func() {
		rebuilt, err := searchService.EnsureIndexed(context.Background())
		if err != nil {
			log.Error("Initial search reindex failed", "error", err)
			return
		}
		if rebuilt {
			log.Info("Initial search reindex completed")
		}
	}()
}

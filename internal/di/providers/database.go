package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/desync"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the SQLite store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := cfg.Storage.DatabasePath()
	db, err := sqlite.Open(dbPath, log.Component("store"))
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}

// LedgerHandle wraps the desync ledger with shutdown capability.
type LedgerHandle struct {
	*desync.Ledger
}

// Shutdown implements do.Shutdownable.
func (h *LedgerHandle) Shutdown() error {
	return h.Close()
}

// ProvideLedger provides the Badger-backed desync ledger.
func ProvideLedger(i do.Injector) (*LedgerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ledger, err := desync.Open(cfg.Storage.LedgerPath(), log.Component("desync"))
	if err != nil {
		return nil, err
	}

	return &LedgerHandle{Ledger: ledger}, nil
}

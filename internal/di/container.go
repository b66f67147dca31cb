// Package di provides dependency injection configuration for the Inkwell server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/auth"
	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/di/providers"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/markup"
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()
	Register(injector)
	return injector
}

// Register installs every provider into injector. Providers are lazy, so
// cmd/seed can resolve the services without starting the listener or jobs.
func Register(injector do.Injector) {
	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideLedger)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Pipeline building blocks
	do.Provide(injector, providers.ProvidePipelineOptions)
	do.Provide(injector, providers.ProvideRenderer)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideHasher)

	// Business services
	do.Provide(injector, providers.ProvideSearchService)
	do.Provide(injector, providers.ProvidePostService)
	do.Provide(injector, providers.ProvideUserService)
	do.Provide(injector, providers.ProvideCommentService)
	do.Provide(injector, providers.ProvideTaxonomyService)

	// Workers
	do.Provide(injector, providers.ProvideIndexJobs)

	// Server
	do.Provide(injector, providers.ProvideRateLimiter)
	do.Provide(injector, providers.ProvideHTTPServer)
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.LedgerHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[service.PipelineOptions](injector)
	_ = do.MustInvoke[*markup.Renderer](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*auth.Hasher](injector)

	// Business services
	_ = do.MustInvoke[*service.SearchService](injector)
	_ = do.MustInvoke[*service.PostService](injector)
	_ = do.MustInvoke[*service.UserService](injector)
	_ = do.MustInvoke[*service.CommentService](injector)
	_ = do.MustInvoke[*service.TaxonomyService](injector)

	// Workers
	if _, err := do.Invoke[*providers.IndexJobs](injector); err != nil {
		return err
	}

	// Server
	_ = do.MustInvoke[*providers.RateLimiterHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	// Rebuild the search index if it was lost
	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}

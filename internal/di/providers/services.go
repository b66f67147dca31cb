package providers

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/auth"
	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/markup"
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// ProvidePipelineOptions maps pipeline configuration onto service options.
func ProvidePipelineOptions(i do.Injector) (service.PipelineOptions, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return service.PipelineOptions{
		SlugMaxAttempts: cfg.Pipeline.SlugMaxAttempts,
		SlugMaxProbes:   cfg.Pipeline.SlugMaxProbes,
		StoreTimeout:    cfg.Pipeline.StoreTimeout,
		IndexTimeout:    cfg.Pipeline.IndexTimeout,
		SearchLimit:     cfg.Pipeline.SearchLimit,
	}, nil
}

// ProvideRenderer provides the markup renderer.
func ProvideRenderer(i do.Injector) (*markup.Renderer, error) {
	return markup.NewRenderer(), nil
}

// ProvideValidator provides the input validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvidePostService provides the post publishing service.
func ProvidePostService(i do.Injector) (*service.PostService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	renderer := do.MustInvoke[*markup.Renderer](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	validator := do.MustInvoke[*validation.Validator](i)
	opts := do.MustInvoke[service.PipelineOptions](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewPostService(storeHandle.Store, renderer, searchService, validator, opts, log.Component("posts")), nil
}

// ProvideUserService provides the user account service.
func ProvideUserService(i do.Injector) (*service.UserService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	hasher := do.MustInvoke[*auth.Hasher](i)
	validator := do.MustInvoke[*validation.Validator](i)
	opts := do.MustInvoke[service.PipelineOptions](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewUserService(storeHandle.Store, searchService, hasher, validator, opts, log.Component("users")), nil
}

// ProvideCommentService provides the comment service.
func ProvideCommentService(i do.Injector) (*service.CommentService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	opts := do.MustInvoke[service.PipelineOptions](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCommentService(storeHandle.Store, validator, opts, log.Component("comments")), nil
}

// ProvideTaxonomyService provides the category and tag service.
func ProvideTaxonomyService(i do.Injector) (*service.TaxonomyService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewTaxonomyService(storeHandle.Store, validator, log.Component("taxonomy")), nil
}

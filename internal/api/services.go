package api

import (
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// Services groups the pipeline services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Posts    *service.PostService
	Users    *service.UserService
	Comments *service.CommentService
	Taxonomy *service.TaxonomyService
	Search   *service.SearchService
	Store    store.Store // Health probes only; handlers go through the services
}

package service

import (
	"context"
	"errors"
	"time"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// PipelineOptions tunes the publish pipeline and index synchronization.
type PipelineOptions struct {
	SlugMaxAttempts int           // Commit attempts before AllocationExhausted
	SlugMaxProbes   int           // Suffixes tried per allocation
	StoreTimeout    time.Duration // Bound on one store commit
	IndexTimeout    time.Duration // Bound on one index mutation after commit
	SearchLimit     int           // Max ids returned per query
}

// DefaultPipelineOptions returns the defaults used when config leaves a value unset.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		SlugMaxAttempts: 3,
		SlugMaxProbes:   1000,
		StoreTimeout:    5 * time.Second,
		IndexTimeout:    5 * time.Second,
		SearchLimit:     50,
	}
}

func (o PipelineOptions) withDefaults() PipelineOptions {
	d := DefaultPipelineOptions()
	if o.SlugMaxAttempts <= 0 {
		o.SlugMaxAttempts = d.SlugMaxAttempts
	}
	if o.SlugMaxProbes <= 0 {
		o.SlugMaxProbes = d.SlugMaxProbes
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.IndexTimeout <= 0 {
		o.IndexTimeout = d.IndexTimeout
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = d.SearchLimit
	}
	return o
}

// mapStoreError converts a store failure into a domain error.
// what names the entity for not-found messages.
func mapStoreError(err error, what string) error {
	if err == nil {
		return nil
	}

	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var storeErr *store.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFoundf("%s not found", what)
	case errors.Is(err, store.ErrRevisionConflict):
		return domainerrors.Conflict(what + " was modified concurrently, retry the request")
	case errors.Is(err, store.ErrInvalidReference):
		msg := "referenced entity does not exist"
		if errors.As(err, &storeErr) {
			msg = storeErr.Message
		}
		return domainerrors.Validation(msg)
	case errors.Is(err, store.ErrAlreadyExists), errors.Is(err, store.ErrSlugTaken):
		msg := what + " already exists"
		if errors.As(err, &storeErr) && storeErr.Message != store.ErrAlreadyExists.Message {
			msg = storeErr.Message
		}
		return domainerrors.AlreadyExists(msg)
	case errors.Is(err, context.DeadlineExceeded):
		return domainerrors.StoreUnavailable(err, "store timed out")
	default:
		return domainerrors.StoreUnavailable(err, "store operation failed")
	}
}

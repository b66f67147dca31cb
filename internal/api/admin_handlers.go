package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "reindex",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/reindex",
		Summary:     "Rebuild search index",
		Description: "Runs a full sweep: every row is re-indexed and entries without a row are removed. Admin only",
		Tags:        []string{"Admin"},
	}, s.handleReindex)

	huma.Register(s.api, huma.Operation{
		OperationID: "repairIndex",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/repair",
		Summary:     "Repair flagged index entries",
		Description: "Re-applies only the index mutations that failed after a commit. Admin only",
		Tags:        []string{"Admin"},
	}, s.handleRepair)

	huma.Register(s.api, huma.Operation{
		OperationID: "listDesync",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/desync",
		Summary:     "List index desyncs",
		Description: "Returns the entities whose index update failed and is awaiting repair. Admin only",
		Tags:        []string{"Admin"},
	}, s.handleListDesync)
}

// ReindexResponse summarizes a sweep.
type ReindexResponse struct {
	RunID    string              `json:"run_id" doc:"Sweep run ID"`
	Upserted map[domain.Kind]int `json:"upserted" doc:"Entries written per kind"`
	Removed  map[domain.Kind]int `json:"removed" doc:"Orphan entries removed per kind"`
	Duration string              `json:"duration" doc:"Wall time of the sweep"`
}

// ReindexOutput wraps the sweep summary for Huma.
type ReindexOutput struct {
	Body ReindexResponse
}

// RepairResponse summarizes a repair run.
type RepairResponse struct {
	RunID    string `json:"run_id" doc:"Repair run ID"`
	Repaired int    `json:"repaired" doc:"Entries brought back in sync"`
	Failed   int    `json:"failed" doc:"Entries still failing"`
}

// RepairOutput wraps the repair summary for Huma.
type RepairOutput struct {
	Body RepairResponse
}

// DesyncEntryResponse is one flagged entity.
type DesyncEntryResponse struct {
	Kind      domain.Kind `json:"kind" doc:"Entity kind"`
	ID        int64       `json:"id" doc:"Entity ID"`
	Op        string      `json:"op" doc:"Failed operation: upsert or remove"`
	Revision  int64       `json:"revision" doc:"Revision the failed mutation carried"`
	Error     string      `json:"error" doc:"Last failure"`
	FlaggedAt time.Time   `json:"flagged_at" doc:"When the entity was first flagged"`
	Attempts  int         `json:"attempts" doc:"Repair attempts so far"`
}

// DesyncInput filters the ledger listing.
type DesyncInput struct {
	Kind string `query:"kind" doc:"Only entries of this kind: post(s) or user(s)"`
}

// DesyncOutput wraps the ledger listing for Huma.
type DesyncOutput struct {
	Body struct {
		Entries []DesyncEntryResponse `json:"entries" doc:"Flagged entities"`
	}
}

func (s *Server) handleReindex(ctx context.Context, _ *struct{}) (*ReindexOutput, error) {
	principal, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("reindex requested", "by", principal.UserID)

	res, err := s.services.Search.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	return &ReindexOutput{Body: ReindexResponse{
		RunID:    res.RunID,
		Upserted: res.Upserted,
		Removed:  res.Removed,
		Duration: res.Duration.String(),
	}}, nil
}

func (s *Server) handleRepair(ctx context.Context, _ *struct{}) (*RepairOutput, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	res, err := s.services.Search.RepairFlagged(ctx)
	if err != nil {
		return nil, err
	}

	return &RepairOutput{Body: RepairResponse{
		RunID:    res.RunID,
		Repaired: res.Repaired,
		Failed:   res.Failed,
	}}, nil
}

func (s *Server) handleListDesync(ctx context.Context, input *DesyncInput) (*DesyncOutput, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	var kind domain.Kind
	if input.Kind != "" {
		k, err := domain.ParseKind(input.Kind)
		if err != nil {
			return nil, domainerrors.Validation(err.Error())
		}
		kind = k
	}

	entries, err := s.services.Search.Flagged(ctx)
	if err != nil {
		return nil, err
	}

	out := &DesyncOutput{}
	out.Body.Entries = make([]DesyncEntryResponse, 0, len(entries))
	for _, e := range entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		out.Body.Entries = append(out.Body.Entries, DesyncEntryResponse{
			Kind:      e.Kind,
			ID:        e.ID,
			Op:        string(e.Op),
			Revision:  e.Rev,
			Error:     e.Error,
			FlaggedAt: e.FlaggedAt,
			Attempts:  e.Attempts,
		})
	}
	return out, nil
}

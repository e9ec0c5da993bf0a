package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
	"github.com/plumblinelabs/takeoffd/internal/policy"
	"github.com/plumblinelabs/takeoffd/internal/snapshot"
	"github.com/plumblinelabs/takeoffd/internal/stages"
)

// RunRequest is the POST /v1/runs payload.
type RunRequest struct {
	Document extract.Document   `json:"document"`
	Siblings []extract.Document `json:"siblings,omitempty"`

	// MaxPages bounds extraction; zero defers to the policy's limit.
	MaxPages int `json:"max_pages,omitempty"`

	// PolicyID selects the governing policy; empty or unknown ids resolve
	// to the default policy.
	PolicyID string `json:"policy_id,omitempty"`
}

// RunResponse summarizes one completed run. The full ledger is served at
// /v1/ledgers/{document}/{run} once Persisted is true.
type RunResponse struct {
	RunID     string                  `json:"run_id"`
	LedgerID  string                  `json:"ledger_id"`
	PolicyID  string                  `json:"policy_id"`
	Success   bool                    `json:"success"`
	Persisted bool                    `json:"persisted"`
	Stages    []pipeline.StageOutcome `json:"stages"`
	Summary   ledger.Summary          `json:"summary"`
	Decisions []*ledger.Decision      `json:"decisions,omitempty"`
	Errors    []string                `json:"errors,omitempty"`
}

// RunListResponse lists the stored runs of one document.
type RunListResponse struct {
	DocumentID string   `json:"document_id"`
	Runs       []string `json:"runs"`
}

// RunDeps carries what the run endpoints need. Store is required; the
// remaining fields default sensibly when nil.
type RunDeps struct {
	Executor *pipeline.Executor
	Resolver *policy.Resolver
	Stages   stages.Deps
	Store    snapshot.Store

	// Observer, usually the audit trail, is subscribed to every run's
	// ledger before the first stage executes. Nil disables it.
	Observer ledger.Observer

	Logger *zap.Logger
}

// RunService executes takeoff runs and serves stored ledgers.
type RunService struct {
	executor *pipeline.Executor
	resolver *policy.Resolver
	pipe     *pipeline.Pipeline
	store    snapshot.Store
	observer ledger.Observer
	logger   *zap.Logger
}

// NewRunService assembles the run service around the standard pipeline.
func NewRunService(deps RunDeps) *RunService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	executor := deps.Executor
	if executor == nil {
		executor = pipeline.NewExecutor(pipeline.DefaultConfig(), logger)
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = policy.NewResolver(logger)
	}

	return &RunService{
		executor: executor,
		resolver: resolver,
		pipe:     stages.NewStandardPipeline(deps.Stages),
		store:    deps.Store,
		observer: deps.Observer,
		logger:   logger,
	}
}

// Execute runs the takeoff pipeline for one document and persists the
// resulting ledger. The run outcome is returned even when stages failed;
// only an invalid request is an error. A snapshot persistence failure is
// logged and reported through Persisted, never by failing the run that
// already completed.
func (s *RunService) Execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if err := snapshot.ValidateID(req.Document.ID); err != nil {
		return nil, fmt.Errorf("document id: %w", err)
	}

	pol := s.resolver.Policy(req.PolicyID)
	runID := uuid.NewString()

	l := ledger.New(runID, pol.ID)
	if s.observer != nil {
		l.Subscribe(s.observer)
	}

	pctx := pipeline.NewContext(l, pol)
	pctx.SetMeta("document_id", req.Document.ID)
	if req.Document.Name != "" {
		pctx.SetMeta("document_name", req.Document.Name)
	}

	input := stages.RunInput{
		Document: req.Document,
		Siblings: req.Siblings,
		MaxPages: req.MaxPages,
	}
	result := s.executor.Execute(ctx, s.pipe, input, pctx)

	resp := &RunResponse{
		RunID:     runID,
		LedgerID:  l.ID(),
		PolicyID:  pol.ID,
		Success:   result.Success,
		Stages:    result.StageOutcomes,
		Summary:   l.Summary(),
		Decisions: l.AllDecisions(),
	}
	for _, stageErr := range result.Errors {
		resp.Errors = append(resp.Errors, stageErr.Error())
	}

	if err := snapshot.Save(ctx, s.store, req.Document.ID, l); err != nil {
		s.logger.Error("persist run snapshot",
			zap.String("document_id", req.Document.ID),
			zap.String("run_id", runID),
			zap.Error(err))
	} else {
		resp.Persisted = true
	}

	return resp, nil
}

// handleCreateRun handles POST /v1/runs.
func (s *RunService) handleCreateRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed run request")
	}

	resp, err := s.Execute(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, snapshot.ErrInvalidKey) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// handleListRuns handles GET /v1/ledgers/:document.
func (s *RunService) handleListRuns(c echo.Context) error {
	documentID := c.Param("document")
	if err := snapshot.ValidateID(documentID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	runs, err := snapshot.Runs(c.Request().Context(), s.store, documentID)
	if err != nil {
		s.logger.Error("list run snapshots",
			zap.String("document_id", documentID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "snapshot listing failed")
	}
	return c.JSON(http.StatusOK, RunListResponse{DocumentID: documentID, Runs: runs})
}

// handleGetLedger handles GET /v1/ledgers/:document/:run. The stored
// snapshot is replayed through the live append path before it is served,
// so a snapshot that no longer satisfies the ledger invariants surfaces
// as an error instead of as trusted data.
func (s *RunService) handleGetLedger(c echo.Context) error {
	documentID := c.Param("document")
	runID := c.Param("run")
	if err := snapshot.ValidateID(documentID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := snapshot.ValidateID(runID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	l, err := snapshot.Load(c.Request().Context(), s.store, documentID, runID)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("no ledger for document %s run %s", documentID, runID))
	case err != nil:
		s.logger.Error("load ledger snapshot",
			zap.String("document_id", documentID),
			zap.String("run_id", runID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ledger snapshot unreadable")
	}

	return c.JSON(http.StatusOK, snapshot.Capture(l))
}

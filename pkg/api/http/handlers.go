package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/domain"
)

// RunSubmitRequest represents a pipeline run submission request
type RunSubmitRequest struct {
	Name   string         `json:"name" binding:"required"`
	Stages []StageRequest `json:"stages" binding:"required,min=1"`
}

// StageRequest represents one stage of a submitted pipeline. Timeout is
// a duration string ("5m"); gate severities are names ("high").
type StageRequest struct {
	ID        string            `json:"id" binding:"required"`
	Adapter   string            `json:"adapter" binding:"required"`
	DependsOn []string          `json:"depends_on"`
	Params    map[string]string `json:"params"`
	Timeout   string            `json:"timeout"`
	Gate      *GateRequest      `json:"gate"`
}

// GateRequest represents a stage's gate policy
type GateRequest struct {
	FailOn    string         `json:"fail_on"`
	MaxCounts map[string]int `json:"max_counts"`
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"orchestrator": "ok",
		},
	})
}

// handleSubmitRun handles pipeline run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	spec, err := req.toSpec()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	runID, err := s.orchestrator.Submit(c.Request.Context(), spec)
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:  runID,
		Status: string(domain.RunStatusSubmitted),
	})
}

// handleListRuns handles listing runs
func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := s.orchestrator.ListRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to retrieve runs",
			},
		})
		return
	}

	summaries := make([]gin.H, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, gin.H{
			"run_id":       run.ID,
			"pipeline":     run.Pipeline.Name,
			"status":       run.Status,
			"submitted_at": run.SubmittedAt,
			"completed_at": run.CompletedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  summaries,
		"total": len(summaries),
	})
}

// handleGetRun handles getting full run details
func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, run)
}

// handleGetStatus handles getting run status
func (s *Server) handleGetStatus(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}

	stages := make(map[string]gin.H, len(run.StageResults))
	for id, res := range run.StageResults {
		stages[id] = gin.H{
			"status":      res.Status,
			"skip_reason": res.SkipReason,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       run.ID,
		"status":       run.Status,
		"stages":       stages,
		"submitted_at": run.SubmittedAt,
		"started_at":   run.StartedAt,
		"completed_at": run.CompletedAt,
	})
}

// handleGetResult handles getting the terminal run result
func (s *Server) handleGetResult(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}

	if !run.Status.Terminal() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_COMPLETED",
				Message: "Pipeline run not yet completed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       run.ID,
		"status":       run.Status,
		"error":        run.Error,
		"stages":       run.StageResults,
		"completed_at": run.CompletedAt,
		"notified_at":  run.NotifiedAt,
	})
}

// handleGetArtifacts handles listing a run's artifacts
func (s *Server) handleGetArtifacts(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}

	artifacts := run.Artifacts()
	c.JSON(http.StatusOK, gin.H{
		"run_id":    run.ID,
		"artifacts": artifacts,
		"total":     len(artifacts),
	})
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.orchestrator.Cancel(c.Request.Context(), runID); err != nil {
		status := http.StatusConflict
		code := "CANCELLATION_FAILED"
		if errors.Is(err, domain.ErrRunNotFound) {
			status = http.StatusNotFound
			code = "NOT_FOUND"
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"status": "cancelling",
	})
}

// loadRun fetches the run named in the path, writing the error response
// on failure.
func (s *Server) loadRun(c *gin.Context) (*domain.PipelineRun, bool) {
	runID := c.Param("id")

	run, err := s.orchestrator.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "NOT_FOUND",
					Message: "Run not found",
				},
			})
			return nil, false
		}
		s.logger.Error("failed to get run", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to retrieve run",
			},
		})
		return nil, false
	}

	return run, true
}

// toSpec converts the request to a pipeline spec
func (r *RunSubmitRequest) toSpec() (*domain.PipelineSpec, error) {
	spec := &domain.PipelineSpec{Name: r.Name}
	for _, st := range r.Stages {
		stage := domain.StageSpec{
			ID:        st.ID,
			Adapter:   st.Adapter,
			DependsOn: st.DependsOn,
			Params:    st.Params,
		}

		if st.Timeout != "" {
			timeout, err := time.ParseDuration(st.Timeout)
			if err != nil {
				return nil, fmt.Errorf("stage %q: invalid timeout: %w", st.ID, err)
			}
			if timeout <= 0 {
				return nil, fmt.Errorf("stage %q: timeout must be positive", st.ID)
			}
			stage.Timeout = timeout
		}

		if st.Gate != nil {
			gate, err := st.Gate.toPolicy(st.ID)
			if err != nil {
				return nil, err
			}
			stage.Gate = gate
		}

		spec.Stages = append(spec.Stages, stage)
	}
	return spec, nil
}

func (g *GateRequest) toPolicy(stageID string) (*domain.GatePolicy, error) {
	policy := &domain.GatePolicy{}

	if g.FailOn != "" {
		sev, err := domain.ParseSeverity(g.FailOn)
		if err != nil {
			return nil, fmt.Errorf("stage %q: invalid fail_on: %w", stageID, err)
		}
		policy.FailOn = sev
	}

	for name, max := range g.MaxCounts {
		sev, err := domain.ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("stage %q: invalid max_counts severity: %w", stageID, err)
		}
		if max < 0 {
			return nil, fmt.Errorf("stage %q: max_counts[%s] must not be negative", stageID, name)
		}
		if policy.MaxCounts == nil {
			policy.MaxCounts = make(map[domain.Severity]int)
		}
		policy.MaxCounts[sev] = max
	}

	if policy.FailOn == domain.SeverityUnknown && policy.MaxCounts == nil {
		return nil, fmt.Errorf("stage %q: gate requires fail_on or max_counts", stageID)
	}

	return policy, nil
}

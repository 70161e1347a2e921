package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/runs"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/http/response"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	apperr "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
)

type RunHandler struct {
	runs     runs.RunRepo
	nodeRuns runs.NodeRunRepo
}

func NewRunHandler(runRepo runs.RunRepo, nodeRunRepo runs.NodeRunRepo) *RunHandler {
	return &RunHandler{runs: runRepo, nodeRuns: nodeRunRepo}
}

// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.runs.GetByID(dbctx.New(c.Request.Context()), runID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "run_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "run_lookup_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// GET /api/runs/:id/node-runs
func (h *RunHandler) ListNodeRuns(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	nodeRuns, err := h.nodeRuns.ListByRun(dbctx.New(c.Request.Context()), runID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "node_run_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"node_runs": nodeRuns})
}

// GET /api/runs?limit=N
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = parsed
	}
	list, err := h.runs.List(dbctx.New(c.Request.Context()), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "run_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"runs": list})
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/documents"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/http/response"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/chunker"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/orchestrator"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	apperr "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

const (
	minDocumentChars = 40
	maxDocumentChars = 200_000
)

var environments = map[string]bool{"dev": true, "staging": true, "prod": true}

type IngestHandler struct {
	log    *logger.Logger
	orch   *orchestrator.Orchestrator
	docs   documents.DocumentRepo
	chunks documents.DocumentChunkRepo
}

func NewIngestHandler(log *logger.Logger, orch *orchestrator.Orchestrator, docs documents.DocumentRepo, chunks documents.DocumentChunkRepo) *IngestHandler {
	return &IngestHandler{
		log:    log.With("handler", "IngestHandler"),
		orch:   orch,
		docs:   docs,
		chunks: chunks,
	}
}

type ingestRequest struct {
	DocumentText string `json:"document_text"`
	DocumentID   string `json:"document_id"`
	Environment  string `json:"environment"`
}

// POST /api/ingest
//
// Validation and authentication failures are the only request-level errors;
// every mid-pipeline failure arrives inside the structured result instead.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	text := req.DocumentText
	if n := len(text); n < minDocumentChars || n > maxDocumentChars {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_text",
			fmt.Errorf("document_text must be %d..%d characters, got %d", minDocumentChars, maxDocumentChars, n))
		return
	}

	env := strings.TrimSpace(req.Environment)
	if !environments[env] {
		response.RespondError(c, http.StatusBadRequest, "invalid_environment",
			fmt.Errorf("environment must be one of dev, staging, prod"))
		return
	}

	docID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	if _, err := h.docs.GetByID(dbc, docID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "document_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "document_lookup_failed", err)
		return
	}

	h.persistChunks(c, docID, text)

	result, err := h.orch.RunPipeline(c.Request.Context(), text, docID, env)
	if err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			response.RespondError(c, http.StatusConflict, "pipeline_busy", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "pipeline_failed", err)
		return
	}
	response.RespondOK(c, result)
}

// persistChunks refreshes the document's retrieval windows so evidence spans
// can be mapped back later. Chunking failure is not a reason to refuse the
// ingest.
func (h *IngestHandler) persistChunks(c *gin.Context, docID uuid.UUID, text string) {
	split := chunker.Split(text, 0, 0)
	if len(split) == 0 {
		return
	}
	rows := make([]*types.DocumentChunk, 0, len(split))
	for _, ch := range split {
		rows = append(rows, &types.DocumentChunk{
			DocumentID: docID,
			ChunkIndex: ch.Index,
			Content:    ch.Text,
			CharStart:  ch.CharStart,
			CharEnd:    ch.CharEnd,
			WordCount:  ch.WordCount,
		})
	}
	if err := h.chunks.ReplaceForDocument(dbctx.New(c.Request.Context()), docID, rows); err != nil {
		h.log.Warn("chunk persistence failed", "document_id", docID, "error", err)
	}
}

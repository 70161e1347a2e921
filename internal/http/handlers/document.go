package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/documents"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/graph"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/http/response"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	apperr "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
)

type DocumentHandler struct {
	docs     documents.DocumentRepo
	entities graph.EntityRepo
	facts    graph.FactRepo
}

func NewDocumentHandler(docs documents.DocumentRepo, entities graph.EntityRepo, facts graph.FactRepo) *DocumentHandler {
	return &DocumentHandler{docs: docs, entities: entities, facts: facts}
}

type createDocumentRequest struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// POST /api/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.Content == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_content", fmt.Errorf("content required"))
		return
	}
	doc := &types.Document{
		SourceURL: req.SourceURL,
		Title:     req.Title,
		Content:   req.Content,
	}
	if err := h.docs.Create(dbctx.New(c.Request.Context()), doc); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "document_create_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// GET /api/documents/:id/facts
func (h *DocumentHandler) ListFacts(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	facts, err := h.facts.ListByDocument(dbctx.New(c.Request.Context()), docID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "fact_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"facts": facts})
}

// GET /api/documents/:id/entities
func (h *DocumentHandler) ListEntities(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	entities, err := h.entities.ListByDocument(dbctx.New(c.Request.Context()), docID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "entity_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"entities": entities})
}

// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.docs.GetByID(dbctx.New(c.Request.Context()), docID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "document_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "document_lookup_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

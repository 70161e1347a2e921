package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

type DocumentChunkRepo interface {
	// ReplaceForDocument swaps the document's chunk set atomically so a
	// re-chunk never leaves a mix of old and new windows.
	ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, chunks []*types.DocumentChunk) error
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error)
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return &documentChunkRepo{db: db, log: baseLog.With("repo", "DocumentChunkRepo")}
}

func (r *documentChunkRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentChunkRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, chunks []*types.DocumentChunk) error {
	if documentID == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for _, c := range chunks {
			c.DocumentID = documentID
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
		}
		return tx.Create(&chunks).Error
	})
}

func (r *documentChunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	if documentID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out []*types.DocumentChunk
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

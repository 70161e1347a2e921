package documents

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) error {
	if doc == nil || doc.Content == "" {
		return pkgerrors.ErrInvalidArgument
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var doc types.Document
	err := r.handle(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

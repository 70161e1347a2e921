package graph

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

type EntityRepo interface {
	CreateBatch(dbc dbctx.Context, entities []*types.Entity) ([]*types.Entity, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Entity, error)
}

type entityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return &entityRepo{db: db, log: baseLog.With("repo", "EntityRepo")}
}

func (r *entityRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *entityRepo) CreateBatch(dbc dbctx.Context, entities []*types.Entity) ([]*types.Entity, error) {
	if len(entities) == 0 {
		return []*types.Entity{}, nil
	}
	for _, e := range entities {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *entityRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Entity, error) {
	if documentID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out []*types.Entity
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("metadata ->> 'document_id' = ?", documentID.String()).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

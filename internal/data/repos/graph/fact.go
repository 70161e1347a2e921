package graph

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

type FactRepo interface {
	CreateBatch(dbc dbctx.Context, facts []*types.Fact) ([]*types.Fact, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Fact, error)
	CountByRun(dbc dbctx.Context, runID uuid.UUID) (int64, error)
}

type factRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFactRepo(db *gorm.DB, baseLog *logger.Logger) FactRepo {
	return &factRepo{db: db, log: baseLog.With("repo", "FactRepo")}
}

func (r *factRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *factRepo) CreateBatch(dbc dbctx.Context, facts []*types.Fact) ([]*types.Fact, error) {
	if len(facts) == 0 {
		return []*types.Fact{}, nil
	}
	for _, f := range facts {
		if f.EvidenceText == "" || f.EvidenceDocID == uuid.Nil {
			return nil, pkgerrors.ErrInvalidArgument
		}
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(&facts).Error; err != nil {
		return nil, err
	}
	return facts, nil
}

func (r *factRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Fact, error) {
	if documentID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out []*types.Fact
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("evidence_doc_id = ?", documentID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *factRepo) CountByRun(dbc dbctx.Context, runID uuid.UUID) (int64, error) {
	if runID == uuid.Nil {
		return 0, pkgerrors.ErrInvalidArgument
	}
	var count int64
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Fact{}).
		Where("run_id = ?", runID).
		Count(&count).Error
	return count, err
}

package runs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// NodeRunRepo is append-only: NodeRun rows are never mutated after creation.
type NodeRunRepo interface {
	Append(dbc dbctx.Context, nodeRun *types.NodeRun) error
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.NodeRun, error)
}

type nodeRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRunRepo(db *gorm.DB, baseLog *logger.Logger) NodeRunRepo {
	return &nodeRunRepo{db: db, log: baseLog.With("repo", "NodeRunRepo")}
}

func (r *nodeRunRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *nodeRunRepo) Append(dbc dbctx.Context, nodeRun *types.NodeRun) error {
	if nodeRun == nil || nodeRun.RunID == uuid.Nil || nodeRun.Stage == "" {
		return pkgerrors.ErrInvalidArgument
	}
	if nodeRun.ID == uuid.Nil {
		nodeRun.ID = uuid.New()
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(nodeRun).Error
}

func (r *nodeRunRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.NodeRun, error) {
	if runID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out []*types.NodeRun
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

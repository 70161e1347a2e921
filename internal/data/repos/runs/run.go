package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

type RunRepo interface {
	// Create inserts a Run in running status. A unique violation on the
	// running-uniqueness index maps to pkgerrors.ErrBusy.
	Create(dbc dbctx.Context, run *types.Run) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Run, error)
	List(dbc dbctx.Context, limit int) ([]*types.Run, error)
	// Finalize transitions a run to a terminal status. Rows already
	// terminal are left untouched; returns whether the row transitioned.
	Finalize(dbc dbctx.Context, id uuid.UUID, status string, metrics types.RunMetrics) (bool, error)
	// FailLatestRunning is the catastrophic-error path: best-effort mark of
	// the most recent running row as failed with a diagnostic error entry.
	FailLatestRunning(dbc dbctx.Context, reason string) (bool, error)
	// ReapStale transitions running rows older than the cutoff to timeout,
	// recording a synthetic reaper error. Returns the ids it reclaimed.
	ReapStale(dbc dbctx.Context, olderThan time.Duration) ([]uuid.UUID, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{db: db, log: baseLog.With("repo", "RunRepo")}
}

func (r *runRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *runRepo) Create(dbc dbctx.Context, run *types.Run) error {
	if run == nil {
		return pkgerrors.ErrInvalidArgument
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = types.StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	err := r.handle(dbc).WithContext(dbc.Ctx).Create(run).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("another run is in flight: %w", pkgerrors.ErrBusy)
		}
		return err
	}
	return nil
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Run, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var run types.Run
	err := r.handle(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) List(dbc dbctx.Context, limit int) ([]*types.Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.Run
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) Finalize(dbc dbctx.Context, id uuid.UUID, status string, metrics types.RunMetrics) (bool, error) {
	if id == uuid.Nil {
		return false, pkgerrors.ErrInvalidArgument
	}
	switch status {
	case types.StatusSuccess, types.StatusPartial, types.StatusFailed, types.StatusTimeout:
	default:
		return false, fmt.Errorf("non-terminal status %q: %w", status, pkgerrors.ErrInvalidArgument)
	}
	raw, err := json.Marshal(metrics)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Run{}).
		Where("id = ? AND status = ?", id, types.StatusRunning).
		Updates(map[string]interface{}{
			"status":     status,
			"ended_at":   now,
			"metrics":    datatypes.JSON(raw),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *runRepo) FailLatestRunning(dbc dbctx.Context, reason string) (bool, error) {
	var run types.Run
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("status = ?", types.StatusRunning).
		Order("started_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return false, err
	}
	if run.ID == uuid.Nil {
		return false, nil
	}
	metrics := decodeMetrics(run.Metrics)
	metrics.Errors = append(metrics.Errors, types.StepError{Step: "coordinator", Message: reason})
	return r.Finalize(dbc, run.ID, types.StatusFailed, metrics)
}

func (r *runRepo) ReapStale(dbc dbctx.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	if olderThan <= 0 {
		return nil, pkgerrors.ErrInvalidArgument
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	var stale []*types.Run
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("status = ? AND started_at < ?", types.StatusRunning, cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}
	var reaped []uuid.UUID
	for _, run := range stale {
		metrics := decodeMetrics(run.Metrics)
		metrics.Errors = append(metrics.Errors, types.StepError{
			Step:    "reaper",
			Message: fmt.Sprintf("run exceeded %s in running status", olderThan),
		})
		ok, fErr := r.Finalize(dbc, run.ID, types.StatusTimeout, metrics)
		if fErr != nil {
			r.log.Warn("reap finalize failed", "run_id", run.ID.String(), "error", fErr)
			continue
		}
		if ok {
			reaped = append(reaped, run.ID)
		}
	}
	return reaped, nil
}

func decodeMetrics(raw []byte) types.RunMetrics {
	var metrics types.RunMetrics
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &metrics)
	}
	return metrics
}

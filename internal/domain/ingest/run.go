package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Run statuses. A Run is created as StatusRunning and must reach exactly one
// terminal status; the partial unique index on (status='running') keeps the
// system to a single in-flight Run.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

type Run struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"document_id"`
	Environment string         `gorm:"column:environment;not null;index" json:"environment"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	StartedAt   time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	EndedAt     *time.Time     `gorm:"column:ended_at" json:"ended_at,omitempty"`
	Metrics     datatypes.JSON `gorm:"column:metrics;type:jsonb" json:"metrics"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Run) TableName() string { return "pipeline_run" }

// StepError is one recoverable failure recorded against a pipeline step.
type StepError struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// RunMetrics is the metrics blob serialized into Run.Metrics.
type RunMetrics struct {
	StepsCompleted    []string    `json:"steps_completed"`
	TotalLatencyMS    int64       `json:"total_latency_ms"`
	EntitiesExtracted int         `json:"entities_extracted"`
	FactsExtracted    int         `json:"facts_extracted"`
	EntitiesStored    int         `json:"entities_stored"`
	FactsStored       int         `json:"facts_stored"`
	FactsApproved     int         `json:"facts_approved"`
	BlockedByArbiter  int         `json:"blocked_by_arbiter"`
	Decision          string      `json:"decision,omitempty"`
	Errors            []StepError `json:"errors"`
}

// NodeRun is the append-only record of one stage invocation within a Run.
type NodeRun struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RunID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"run_id"`
	Stage     string         `gorm:"column:stage;not null;index" json:"stage"`
	Status    string         `gorm:"column:status;not null" json:"status"`
	Input     datatypes.JSON `gorm:"column:input;type:jsonb" json:"input"`
	Output    datatypes.JSON `gorm:"column:output;type:jsonb" json:"output"`
	LatencyMS int64          `gorm:"column:latency_ms;not null;default:0" json:"latency_ms"`
	Attempts  int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	TokensIn  int            `gorm:"column:tokens_in;not null;default:0" json:"tokens_in"`
	TokensOut int            `gorm:"column:tokens_out;not null;default:0" json:"tokens_out"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (NodeRun) TableName() string { return "node_run" }

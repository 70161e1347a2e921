package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/graph"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/runs"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/assemble"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/singleflight"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/stage"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

const (
	defaultMaxStageCalls = 5
	defaultWallBudget    = 60 * time.Second
)

// coordinatorStep names the synthetic step used for budget violations and
// other failures that belong to no single stage.
const coordinatorStep = "coordinator"

// AgentStatus reports one stage invocation's outcome to the caller.
type AgentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// RunResult is the structured response for one pipeline invocation. Mid-
// pipeline failures are absorbed here, never surfaced as transport errors.
type RunResult struct {
	Success           bool              `json:"success"`
	RunID             uuid.UUID         `json:"run_id"`
	Status            string            `json:"status"`
	EntitiesExtracted int               `json:"entities_extracted"`
	FactsExtracted    int               `json:"facts_extracted"`
	EntitiesStored    int               `json:"entities_stored"`
	FactsStored       int               `json:"facts_stored"`
	FactsApproved     int               `json:"facts_approved"`
	BlockedByArbiter  int               `json:"blocked_by_arbiter"`
	AgentsExecuted    []AgentStatus     `json:"agents_executed"`
	TotalLatencyMS    int64             `json:"total_latency_ms"`
	Errors            []types.StepError `json:"errors"`
}

// GraphMirror is the optional best-effort projection of stored records into
// a secondary graph store. Failures are its own problem; the orchestrator
// never inspects them.
type GraphMirror interface {
	Project(ctx context.Context, entities []*types.Entity, facts []*types.Fact)
}

type Orchestrator struct {
	log      *logger.Logger
	stages   stage.Invoker
	guard    singleflight.Guard
	runs     runs.RunRepo
	nodeRuns runs.NodeRunRepo
	entities graph.EntityRepo
	facts    graph.FactRepo
	assembler *assemble.Assembler
	mirror   GraphMirror
	tracer   trace.Tracer

	maxCalls   int
	wallBudget time.Duration
}

func New(
	log *logger.Logger,
	stages stage.Invoker,
	guard singleflight.Guard,
	runRepo runs.RunRepo,
	nodeRunRepo runs.NodeRunRepo,
	entityRepo graph.EntityRepo,
	factRepo graph.FactRepo,
	mirror GraphMirror,
) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if stages == nil || guard == nil || runRepo == nil || nodeRunRepo == nil || entityRepo == nil || factRepo == nil {
		return nil, fmt.Errorf("all pipeline collaborators required")
	}
	return &Orchestrator{
		log:        log.With("service", "PipelineOrchestrator"),
		stages:     stages,
		guard:      guard,
		runs:       runRepo,
		nodeRuns:   nodeRunRepo,
		entities:   entityRepo,
		facts:      factRepo,
		assembler:  assemble.New(log),
		mirror:     mirror,
		tracer:     otel.Tracer("truthweave/pipeline"),
		maxCalls:   defaultMaxStageCalls,
		wallBudget: defaultWallBudget,
	}, nil
}

// runState is the mutable bookkeeping for one pipeline execution, threaded
// through the stage loop and read by the deferred finalizer.
type runState struct {
	state     State
	calls     int
	start     time.Time
	budgetHit bool
	metrics   types.RunMetrics
	result    *RunResult

	extraction map[string]any
	normalized map[string]any
	validation map[string]any
	policy     map[string]any
	decision   string
}

func (rs *runState) recordError(step, message string) {
	rs.metrics.Errors = append(rs.metrics.Errors, types.StepError{Step: step, Message: message})
}

// RunPipeline executes the four stages over one document under the global
// call and wall-clock budgets. The returned error is reserved for request-
// level failures (busy system, run creation failure, panic); every
// mid-pipeline failure is absorbed into the RunResult.
func (o *Orchestrator) RunPipeline(ctx context.Context, documentText string, documentID uuid.UUID, environment string) (res *RunResult, err error) {
	release, err := o.guard.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("document_id", documentID.String()),
			attribute.String("environment", environment),
		))
	defer span.End()

	run := &types.Run{
		DocumentID:  documentID,
		Environment: environment,
		Status:      types.StatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := o.runs.Create(dbctx.New(ctx), run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	rs := &runState{
		state:  StateInit,
		start:  time.Now(),
		result: &RunResult{RunID: run.ID, Errors: []types.StepError{}, AgentsExecuted: []AgentStatus{}},
	}

	// Finalization is unconditional: every exit path, the panic path
	// included, transitions the run to a terminal status exactly once.
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pipeline panic", "run_id", run.ID, "panic", r)
			rs.recordError(coordinatorStep, fmt.Sprintf("fatal: %v", r))
			o.finalize(run.ID, rs, types.StatusFailed)
			res = nil
			err = fmt.Errorf("pipeline aborted: %v", r)
			return
		}
		o.finalize(run.ID, rs, o.terminalStatus(rs))
		res = rs.result
	}()

	for {
		name := NextStage(rs.state)
		if name == "" {
			break
		}
		if !o.checkBudget(rs) {
			break
		}
		if name == stage.Policy && !validationPassed(rs.validation) {
			// Gate, not an error: facts from a document that failed
			// validation never reach the policy stage.
			break
		}

		input := o.stageInput(name, rs, documentText, documentID)
		result, stageErr := o.invokeStage(ctx, name, input)
		rs.calls++
		o.appendNodeRun(ctx, run.ID, name, input, result, stageErr)

		if stageErr == nil {
			stageErr = o.applyStageOutput(ctx, name, result.Output, rs, run.ID, documentID)
		}
		if stageErr != nil {
			rs.recordError(name, stageErr.Error())
			rs.result.AgentsExecuted = append(rs.result.AgentsExecuted, AgentStatus{Name: name, Status: "error"})
			break
		}
		rs.result.AgentsExecuted = append(rs.result.AgentsExecuted, AgentStatus{Name: name, Status: "success"})
		rs.metrics.StepsCompleted = append(rs.metrics.StepsCompleted, name)
		rs.state = Advance(rs.state, name)
	}

	if rs.state == StatePolicyApplied {
		o.assembleAndStore(ctx, rs, run.ID, documentID, documentText)
		rs.state = StateFinalized
	}
	return nil, nil // replaced by the deferred finalizer
}

func (o *Orchestrator) checkBudget(rs *runState) bool {
	if rs.calls >= o.maxCalls {
		rs.budgetHit = true
		rs.recordError(coordinatorStep, fmt.Sprintf("stage call budget exhausted (%d calls)", rs.calls))
		return false
	}
	if elapsed := time.Since(rs.start); elapsed >= o.wallBudget {
		rs.budgetHit = true
		rs.recordError(coordinatorStep, fmt.Sprintf("wall-clock budget exhausted after %s", elapsed.Round(time.Millisecond)))
		return false
	}
	return true
}

func (o *Orchestrator) invokeStage(ctx context.Context, name string, input map[string]any) (stage.Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()
	return o.stages.Invoke(ctx, name, input)
}

func (o *Orchestrator) stageInput(name string, rs *runState, documentText string, documentID uuid.UUID) map[string]any {
	switch name {
	case stage.Extraction:
		return map[string]any{
			"document_text": documentText,
			"document_id":   documentID.String(),
		}
	case stage.Normalization:
		return map[string]any{
			"entities": rs.extraction["entities"],
			"facts":    rs.extraction["facts"],
		}
	case stage.Validation:
		return map[string]any{
			"entities":      rs.normalized["normalized_entities"],
			"facts":         rs.normalized["normalized_facts"],
			"document_text": documentText,
		}
	case stage.Policy:
		return map[string]any{
			"facts":      rs.normalized["normalized_facts"],
			"validation": rs.validation,
		}
	default:
		return map[string]any{}
	}
}

func (o *Orchestrator) applyStageOutput(ctx context.Context, name string, output map[string]any, rs *runState, runID, documentID uuid.UUID) error {
	switch name {
	case stage.Extraction:
		rs.extraction = output
		rs.metrics.EntitiesExtracted = listLen(output["entities"])
		rs.metrics.FactsExtracted = listLen(output["facts"])
	case stage.Normalization:
		rs.normalized = output
		o.storeEntities(ctx, rs, runID, documentID)
	case stage.Validation:
		rs.validation = output
	case stage.Policy:
		rs.policy = output
		decision, err := assemble.ParseDecision(output)
		if err != nil {
			// Malformed decision is a stage error, never silently
			// defaulted to allow or block.
			return err
		}
		rs.decision = decision
		rs.metrics.Decision = decision
	}
	return nil
}

// storeEntities persists normalized entities immediately, before the policy
// stage runs. Entities are low-sensitivity metadata and are not gated on the
// policy decision.
func (o *Orchestrator) storeEntities(ctx context.Context, rs *runState, runID, documentID uuid.UUID) {
	rawEntities, ok := rs.normalized["normalized_entities"].([]any)
	if !ok || len(rawEntities) == 0 {
		return
	}
	records := make([]*types.Entity, 0, len(rawEntities))
	for _, raw := range rawEntities {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		typ, _ := m["type"].(string)
		records = append(records, &types.Entity{
			Name:          name,
			Type:          typ,
			Identifiers:   toJSON(m["identifiers"]),
			Addresses:     toJSON(m["addresses"]),
			Relationships: toJSON(m["relationships"]),
			Metadata: toJSON(map[string]any{
				"run_id":      runID.String(),
				"document_id": documentID.String(),
			}),
		})
	}
	if len(records) == 0 {
		return
	}
	stored, err := o.entities.CreateBatch(dbctx.New(ctx), records)
	if err != nil {
		rs.recordError(stage.Normalization, fmt.Sprintf("entity storage: %v", err))
		return
	}
	rs.metrics.EntitiesStored = len(stored)
	if o.mirror != nil {
		o.mirror.Project(ctx, stored, nil)
	}
}

// assembleAndStore runs fact assembly unconditionally once the policy stage
// has returned; the decision only gates persistence.
func (o *Orchestrator) assembleAndStore(ctx context.Context, rs *runState, runID, documentID uuid.UUID, documentText string) {
	rawFacts := toFactMaps(rs.normalized["normalized_facts"])
	assembled := o.assembler.Assemble(assemble.Input{
		RunID:        runID,
		RawFacts:     rawFacts,
		DocumentID:   documentID,
		DocumentText: documentText,
		Validation:   rs.validation,
		Policy:       rs.policy,
	})

	switch rs.decision {
	case assemble.DecisionAllow:
		rs.metrics.FactsApproved = len(assembled)
		if len(assembled) == 0 {
			return
		}
		stored, err := o.facts.CreateBatch(dbctx.New(ctx), assembled)
		if err != nil {
			rs.recordError(stage.Policy, fmt.Sprintf("fact storage: %v", err))
			return
		}
		rs.metrics.FactsStored = len(stored)
		if o.mirror != nil {
			o.mirror.Project(ctx, nil, stored)
		}
	case assemble.DecisionWarn, assemble.DecisionBlock:
		rs.metrics.BlockedByArbiter = len(assembled)
	}
}

// terminalStatus applies the status precedence: partial when the budget was
// hit or a stage errored with at least one stage completed, failed when
// nothing completed, success only when every stage ran cleanly.
func (o *Orchestrator) terminalStatus(rs *runState) string {
	completed := len(rs.metrics.StepsCompleted)
	degraded := rs.budgetHit || len(rs.metrics.Errors) > 0
	switch {
	case degraded && completed > 0:
		return types.StatusPartial
	case completed == 0:
		return types.StatusFailed
	case rs.state == StateFinalized:
		return types.StatusSuccess
	default:
		// Some stage was gated off without an error (validation did not
		// pass). The run completed in a degraded form.
		return types.StatusPartial
	}
}

func (o *Orchestrator) finalize(runID uuid.UUID, rs *runState, status string) {
	rs.metrics.TotalLatencyMS = time.Since(rs.start).Milliseconds()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := o.runs.Finalize(dbctx.New(ctx), runID, status, rs.metrics); err != nil {
		o.log.Error("run finalization failed", "run_id", runID, "status", status, "error", err)
	}

	r := rs.result
	r.Status = status
	r.Success = status == types.StatusSuccess
	r.EntitiesExtracted = rs.metrics.EntitiesExtracted
	r.FactsExtracted = rs.metrics.FactsExtracted
	r.EntitiesStored = rs.metrics.EntitiesStored
	r.FactsStored = rs.metrics.FactsStored
	r.FactsApproved = rs.metrics.FactsApproved
	r.BlockedByArbiter = rs.metrics.BlockedByArbiter
	r.TotalLatencyMS = rs.metrics.TotalLatencyMS
	r.Errors = rs.metrics.Errors
	if r.Errors == nil {
		r.Errors = []types.StepError{}
	}
}

func (o *Orchestrator) appendNodeRun(ctx context.Context, runID uuid.UUID, stageName string, input map[string]any, result stage.Result, stageErr error) {
	status := "success"
	var output map[string]any
	if stageErr != nil {
		status = "error"
		output = map[string]any{"error": stageErr.Error()}
	} else {
		output = result.Output
	}
	nr := &types.NodeRun{
		RunID:     runID,
		Stage:     stageName,
		Status:    status,
		Input:     toJSON(input),
		Output:    toJSON(output),
		LatencyMS: result.Latency.Milliseconds(),
		Attempts:  result.Attempts,
	}
	if err := o.nodeRuns.Append(dbctx.New(ctx), nr); err != nil {
		o.log.Warn("node run append failed", "run_id", runID, "stage", stageName, "error", err)
	}
}

func validationPassed(validation map[string]any) bool {
	if validation == nil {
		return false
	}
	valid, ok := validation["is_valid"].(bool)
	return ok && valid
}

func toFactMaps(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func listLen(v any) int {
	if list, ok := v.([]any); ok {
		return len(list)
	}
	return 0
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/stage"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	apperr "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

const docText = "Acme Inc was founded in 1999. It employs 230 people in Berlin."

type fakeInvoker struct {
	mu      sync.Mutex
	outputs map[string]map[string]any
	errs    map[string]error
	calls   []string
}

func (f *fakeInvoker) Invoke(_ context.Context, stageName string, _ map[string]any) (stage.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, stageName)
	f.mu.Unlock()
	if err := f.errs[stageName]; err != nil {
		return stage.Result{Attempts: 1}, err
	}
	return stage.Result{Output: f.outputs[stageName], Attempts: 1, Latency: time.Millisecond}, nil
}

type fakeGuard struct{ busy bool }

func (f *fakeGuard) Acquire(context.Context) (func(), error) {
	if f.busy {
		return nil, apperr.ErrBusy
	}
	return func() {}, nil
}

type fakeRunRepo struct {
	created       *types.Run
	finalStatus   string
	finalMetrics  types.RunMetrics
	finalized     bool
	createErr     error
}

func (f *fakeRunRepo) Create(_ dbctx.Context, run *types.Run) error {
	if f.createErr != nil {
		return f.createErr
	}
	run.ID = uuid.New()
	f.created = run
	return nil
}
func (f *fakeRunRepo) GetByID(dbctx.Context, uuid.UUID) (*types.Run, error) { return f.created, nil }
func (f *fakeRunRepo) List(dbctx.Context, int) ([]*types.Run, error)       { return nil, nil }
func (f *fakeRunRepo) Finalize(_ dbctx.Context, _ uuid.UUID, status string, metrics types.RunMetrics) (bool, error) {
	f.finalized = true
	f.finalStatus = status
	f.finalMetrics = metrics
	return true, nil
}
func (f *fakeRunRepo) FailLatestRunning(dbctx.Context, string) (bool, error) { return false, nil }
func (f *fakeRunRepo) ReapStale(dbctx.Context, time.Duration) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeNodeRunRepo struct{ appended []*types.NodeRun }

func (f *fakeNodeRunRepo) Append(_ dbctx.Context, nr *types.NodeRun) error {
	f.appended = append(f.appended, nr)
	return nil
}
func (f *fakeNodeRunRepo) ListByRun(dbctx.Context, uuid.UUID) ([]*types.NodeRun, error) {
	return f.appended, nil
}

type fakeEntityRepo struct {
	stored []*types.Entity
	err    error
}

func (f *fakeEntityRepo) CreateBatch(_ dbctx.Context, entities []*types.Entity) ([]*types.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stored = append(f.stored, entities...)
	return entities, nil
}
func (f *fakeEntityRepo) ListByDocument(dbctx.Context, uuid.UUID) ([]*types.Entity, error) {
	return f.stored, nil
}

type fakeFactRepo struct {
	stored []*types.Fact
	err    error
}

func (f *fakeFactRepo) CreateBatch(_ dbctx.Context, facts []*types.Fact) ([]*types.Fact, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stored = append(f.stored, facts...)
	return facts, nil
}
func (f *fakeFactRepo) ListByDocument(dbctx.Context, uuid.UUID) ([]*types.Fact, error) {
	return f.stored, nil
}
func (f *fakeFactRepo) CountByRun(dbctx.Context, uuid.UUID) (int64, error) {
	return int64(len(f.stored)), nil
}

type harness struct {
	orch     *Orchestrator
	invoker  *fakeInvoker
	runs     *fakeRunRepo
	nodeRuns *fakeNodeRunRepo
	entities *fakeEntityRepo
	facts    *fakeFactRepo
}

func happyOutputs(decision string) map[string]map[string]any {
	return map[string]map[string]any{
		stage.Extraction: {
			"entities": []any{map[string]any{"name": "Acme Inc", "type": "company"}},
			"facts":    []any{map[string]any{"subject": "Acme Inc", "predicate": "employees", "object": "230"}},
		},
		stage.Normalization: {
			"normalized_entities": []any{map[string]any{"name": "Acme Inc", "type": "company"}},
			"normalized_facts": []any{map[string]any{
				"subject":    "Acme Inc",
				"predicate":  "employees",
				"object":     "230",
				"confidence": 0.9,
				"evidence":   "It employs 230 people in Berlin.",
			}},
		},
		stage.Validation: {"is_valid": true},
		stage.Policy:     {"decision": decision},
	}
}

func newHarness(t *testing.T, outputs map[string]map[string]any, errs map[string]error) *harness {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := &harness{
		invoker:  &fakeInvoker{outputs: outputs, errs: errs},
		runs:     &fakeRunRepo{},
		nodeRuns: &fakeNodeRunRepo{},
		entities: &fakeEntityRepo{},
		facts:    &fakeFactRepo{},
	}
	h.orch, err = New(log, h.invoker, &fakeGuard{}, h.runs, h.nodeRuns, h.entities, h.facts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestRunPipelineAllowStoresFacts(t *testing.T) {
	h := newHarness(t, happyOutputs("ALLOW"), nil)

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if res.Status != types.StatusSuccess || !res.Success {
		t.Fatalf("expected success, got %q (errors: %v)", res.Status, res.Errors)
	}
	if len(h.invoker.calls) != 4 {
		t.Fatalf("expected 4 stage calls, got %v", h.invoker.calls)
	}
	if res.EntitiesStored != 1 || len(h.entities.stored) != 1 {
		t.Fatalf("expected 1 entity stored: %+v", res)
	}
	if res.FactsStored != 1 || res.FactsApproved != 1 || len(h.facts.stored) != 1 {
		t.Fatalf("expected 1 fact stored and approved: %+v", res)
	}
	if res.EntitiesExtracted != 1 || res.FactsExtracted != 1 {
		t.Fatalf("extraction counts wrong: %+v", res)
	}
	if len(res.AgentsExecuted) != 4 {
		t.Fatalf("expected 4 agent entries: %+v", res.AgentsExecuted)
	}
	for _, a := range res.AgentsExecuted {
		if a.Status != "success" {
			t.Fatalf("agent %s not success: %+v", a.Name, res.AgentsExecuted)
		}
	}
	if !h.runs.finalized || h.runs.finalStatus != types.StatusSuccess {
		t.Fatalf("run not finalized as success: %+v", h.runs)
	}
	if len(h.nodeRuns.appended) != 4 {
		t.Fatalf("expected 4 node runs, got %d", len(h.nodeRuns.appended))
	}
	f := h.facts.stored[0]
	if f.ValueNumber == nil || *f.ValueNumber != 230 {
		t.Fatalf("typed value lost: %+v", f)
	}
}

func TestRunPipelineBlockStoresNoFacts(t *testing.T) {
	h := newHarness(t, happyOutputs("BLOCK"), nil)

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if len(h.facts.stored) != 0 || res.FactsStored != 0 {
		t.Fatalf("BLOCK must store zero facts: %+v", res)
	}
	if res.BlockedByArbiter != 1 {
		t.Fatalf("expected 1 blocked fact, got %d", res.BlockedByArbiter)
	}
	// Entities are not gated on the decision.
	if len(h.entities.stored) != 1 {
		t.Fatalf("entities must be stored under BLOCK: %d", len(h.entities.stored))
	}
	if res.Status != types.StatusSuccess {
		t.Fatalf("all stages ran cleanly, expected success: %q", res.Status)
	}
}

func TestRunPipelineWarnAssemblesButDoesNotStore(t *testing.T) {
	h := newHarness(t, happyOutputs("WARN"), nil)

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if len(h.facts.stored) != 0 {
		t.Fatalf("WARN must not persist facts")
	}
	if res.BlockedByArbiter != 1 {
		t.Fatalf("expected WARN facts counted as blocked: %+v", res)
	}
}

func TestRunPipelineStageErrorDegradesToPartial(t *testing.T) {
	h := newHarness(t, happyOutputs("ALLOW"), map[string]error{
		stage.Normalization: fmt.Errorf("normalization stage failed after 5 attempts"),
	})

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if res.Status != types.StatusPartial {
		t.Fatalf("expected partial, got %q", res.Status)
	}
	if len(h.invoker.calls) != 2 {
		t.Fatalf("downstream stages must be skipped: %v", h.invoker.calls)
	}
	if len(res.Errors) != 1 || res.Errors[0].Step != stage.Normalization {
		t.Fatalf("expected one normalization error: %+v", res.Errors)
	}
	if len(h.facts.stored) != 0 || len(h.entities.stored) != 0 {
		t.Fatal("nothing may be stored when normalization fails")
	}
}

func TestRunPipelineExtractionFailureIsFailed(t *testing.T) {
	h := newHarness(t, nil, map[string]error{
		stage.Extraction: fmt.Errorf("extraction unreachable"),
	})

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if res.Status != types.StatusFailed || res.Success {
		t.Fatalf("zero stages completed must be failed: %q", res.Status)
	}
	if h.runs.finalStatus != types.StatusFailed {
		t.Fatalf("ledger status mismatch: %q", h.runs.finalStatus)
	}
}

func TestRunPipelineCallBudgetForcesPartial(t *testing.T) {
	h := newHarness(t, happyOutputs("ALLOW"), nil)
	h.orch.maxCalls = 2

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if res.Status != types.StatusPartial {
		t.Fatalf("budget exhaustion must force partial: %q", res.Status)
	}
	if len(h.invoker.calls) != 2 {
		t.Fatalf("expected exactly 2 calls, got %v", h.invoker.calls)
	}
	found := false
	for _, e := range res.Errors {
		if e.Step == coordinatorStep {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected synthetic coordinator error: %+v", res.Errors)
	}
	if len(h.facts.stored) != 0 {
		t.Fatal("facts must not be stored when policy never ran")
	}
	// Entities were stored before the budget ran out.
	if len(h.entities.stored) != 1 {
		t.Fatalf("normalization completed, entities expected: %d", len(h.entities.stored))
	}
}

func TestRunPipelineWallClockBudget(t *testing.T) {
	h := newHarness(t, happyOutputs("ALLOW"), nil)
	h.orch.wallBudget = 0

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if res.Status != types.StatusFailed {
		t.Fatalf("no stage ran, expected failed: %q", res.Status)
	}
	if len(h.invoker.calls) != 0 {
		t.Fatalf("no stage may run with an expired budget: %v", h.invoker.calls)
	}
}

func TestRunPipelineValidationNotPassedSkipsPolicy(t *testing.T) {
	outputs := happyOutputs("ALLOW")
	outputs[stage.Validation] = map[string]any{"is_valid": false, "contradictions": []any{}}
	h := newHarness(t, outputs, nil)

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if len(h.invoker.calls) != 3 {
		t.Fatalf("policy must be gated off: %v", h.invoker.calls)
	}
	if len(h.facts.stored) != 0 {
		t.Fatal("facts must not be stored when policy never ran")
	}
	if res.Status != types.StatusPartial {
		t.Fatalf("gated-off policy cannot be success: %q", res.Status)
	}
}

func TestRunPipelineMalformedDecisionIsStageError(t *testing.T) {
	outputs := happyOutputs("ALLOW")
	outputs[stage.Policy] = map[string]any{"reason": "no decision field"}
	h := newHarness(t, outputs, nil)

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if res.Status != types.StatusPartial {
		t.Fatalf("malformed decision must degrade to partial: %q", res.Status)
	}
	if len(h.facts.stored) != 0 {
		t.Fatal("facts must never be stored without a valid decision")
	}
	last := res.AgentsExecuted[len(res.AgentsExecuted)-1]
	if last.Name != stage.Policy || last.Status != "error" {
		t.Fatalf("policy agent must report error: %+v", res.AgentsExecuted)
	}
}

func TestRunPipelineBusyGuardFailsFast(t *testing.T) {
	h := newHarness(t, happyOutputs("ALLOW"), nil)
	h.orch.guard = &fakeGuard{busy: true}

	if _, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev"); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if h.runs.created != nil {
		t.Fatal("no run may be created while the guard is held")
	}
}

func TestRunPipelineEntityStorageErrorIsRecoverable(t *testing.T) {
	h := newHarness(t, happyOutputs("ALLOW"), nil)
	h.entities.err = fmt.Errorf("insert failed")

	res, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	// Storage errors are recorded but do not abort the run.
	if len(h.invoker.calls) != 4 {
		t.Fatalf("pipeline must continue past storage errors: %v", h.invoker.calls)
	}
	if res.Status != types.StatusPartial {
		t.Fatalf("recorded storage error must degrade status: %q", res.Status)
	}
	if res.EntitiesStored != 0 {
		t.Fatalf("nothing was stored: %+v", res)
	}
}

func TestRunPipelineRunNeverLeftRunning(t *testing.T) {
	for name, errs := range map[string]map[string]error{
		"clean":              nil,
		"extraction_error":   {stage.Extraction: fmt.Errorf("boom")},
		"validation_error":   {stage.Validation: fmt.Errorf("boom")},
		"policy_error":       {stage.Policy: fmt.Errorf("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, happyOutputs("ALLOW"), errs)
			if _, err := h.orch.RunPipeline(context.Background(), docText, uuid.New(), "dev"); err != nil {
				t.Fatalf("RunPipeline: %v", err)
			}
			if !h.runs.finalized {
				t.Fatal("run left without a terminal status")
			}
			switch h.runs.finalStatus {
			case types.StatusSuccess, types.StatusPartial, types.StatusFailed, types.StatusTimeout:
			default:
				t.Fatalf("non-terminal final status %q", h.runs.finalStatus)
			}
		})
	}
}

package orchestrator

import "github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/stage"

// State tracks how far a run has advanced through the stage sequence. Which
// stages ran is a first-class value, not something reconstructed from
// side-effect flags.
type State int

const (
	StateInit State = iota
	StateExtracted
	StateNormalized
	StateValidated
	StatePolicyApplied
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateExtracted:
		return "extracted"
	case StateNormalized:
		return "normalized"
	case StateValidated:
		return "validated"
	case StatePolicyApplied:
		return "policy_applied"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// NextStage returns the stage a run in state s invokes next, or "" when no
// stage remains.
func NextStage(s State) string {
	switch s {
	case StateInit:
		return stage.Extraction
	case StateExtracted:
		return stage.Normalization
	case StateNormalized:
		return stage.Validation
	case StateValidated:
		return stage.Policy
	default:
		return ""
	}
}

// Advance is the single transition function: the state reached once the
// given stage completes successfully. Unknown or out-of-order stages leave
// the state unchanged.
func Advance(s State, stageName string) State {
	if NextStage(s) != stageName {
		return s
	}
	switch stageName {
	case stage.Extraction:
		return StateExtracted
	case stage.Normalization:
		return StateNormalized
	case stage.Validation:
		return StateValidated
	case stage.Policy:
		return StatePolicyApplied
	default:
		return s
	}
}

// StagesRun lists the stages a run in state s has completed, in order.
func StagesRun(s State) []string {
	n := int(s)
	if n > len(stage.Order) {
		n = len(stage.Order)
	}
	out := make([]string, n)
	copy(out, stage.Order[:n])
	return out
}

package assemble

import (
	"fmt"
	"math"
	"strings"
)

// Policy decisions, normalized to upper case on parse.
const (
	DecisionAllow = "ALLOW"
	DecisionWarn  = "WARN"
	DecisionBlock = "BLOCK"
)

// ParseDecision extracts and validates the policy stage's decision field.
// A missing or unrecognized decision is a stage error, never a silent
// default.
func ParseDecision(policyOutput map[string]any) (string, error) {
	if policyOutput == nil {
		return "", fmt.Errorf("policy output missing")
	}
	raw, ok := policyOutput["decision"].(string)
	if !ok {
		return "", fmt.Errorf("policy output has no decision field")
	}
	switch d := strings.ToUpper(strings.TrimSpace(raw)); d {
	case DecisionAllow, DecisionWarn, DecisionBlock:
		return d, nil
	default:
		return "", fmt.Errorf("unrecognized policy decision %q", raw)
	}
}

// Penalties by finding category.
const (
	penaltyMissingCitation = 0.2
	penaltySchemaError     = 0.25
	penaltyContradiction   = 0.3
	penaltyNoEvidenceRef   = 0.15
	warnModifier           = 0.1
	defaultConfidence      = 0.8
)

var severityPenalty = map[string]float64{
	"low":    0.1,
	"medium": 0.2,
	"high":   0.3,
}

// PenaltyIndex maps every identifier a validation finding may reference
// (fact id, statement text, reconstructed triple key) to the worst penalty
// recorded under it. Lookup takes the max across a fact's own identifiers,
// never a sum, so the same issue surfacing under several keys cannot
// double-penalize.
type PenaltyIndex struct {
	byKey          map[string]float64
	overallScore   *float64
	overallPresent bool
}

// BuildPenaltyIndex digests a validation stage output.
func BuildPenaltyIndex(validation map[string]any) PenaltyIndex {
	idx := PenaltyIndex{byKey: map[string]float64{}}
	if validation == nil {
		return idx
	}

	if score, ok := toFloat(validation["confidence_score"]); ok {
		idx.overallScore = &score
		idx.overallPresent = true
	}

	idx.indexFindings(validation["missing_citations"], penaltyMissingCitation)
	idx.indexFindings(validation["schema_errors"], penaltySchemaError)
	idx.indexFindings(validation["contradictions"], penaltyContradiction)

	if issues, ok := validation["issues"].([]any); ok {
		for _, item := range issues {
			finding, ok := item.(map[string]any)
			if !ok {
				continue
			}
			severity := strings.ToLower(asString(finding["severity"]))
			penalty, ok := severityPenalty[severity]
			if !ok {
				penalty = severityPenalty["low"]
			}
			idx.record(finding, penalty)
		}
	}
	return idx
}

func (idx *PenaltyIndex) indexFindings(list any, penalty float64) {
	items, ok := list.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		if finding, ok := item.(map[string]any); ok {
			idx.record(finding, penalty)
		}
	}
}

// record indexes one finding under every identifying key it carries.
func (idx *PenaltyIndex) record(finding map[string]any, penalty float64) {
	for _, key := range findingKeys(finding) {
		if penalty > idx.byKey[key] {
			idx.byKey[key] = penalty
		}
	}
}

func findingKeys(finding map[string]any) []string {
	var keys []string
	add := func(k string) {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			keys = append(keys, k)
		}
	}
	add(asString(finding["fact_id"]))
	add(asString(finding["id"]))
	if ids, ok := finding["fact_ids"].([]any); ok {
		for _, id := range ids {
			add(asString(id))
		}
	}
	add(asString(finding["normalized_statement"]))
	add(asString(finding["original_statement"]))
	add(asString(finding["statement"]))
	if t, ok := tripleFrom(finding); ok {
		add(t.Key())
	}
	return keys
}

// PenaltyFor returns the worst penalty recorded under any of the fact's
// identifying keys.
func (idx *PenaltyIndex) PenaltyFor(raw map[string]any, triple Triple) float64 {
	max := 0.0
	lookup := func(k string) {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			if p, ok := idx.byKey[k]; ok && p > max {
				max = p
			}
		}
	}
	lookup(asString(raw["fact_id"]))
	lookup(asString(raw["id"]))
	lookup(asString(raw["normalized_statement"]))
	lookup(asString(raw["original_statement"]))
	lookup(asString(raw["statement"]))
	lookup(triple.Key())
	return max
}

// ComputeConfidence produces the final confidence per the scoring rules:
// extraction confidence (default 0.8) averaged with the validation pass's
// overall score when present, minus the max finding penalty, minus 0.15
// when the fact had no explicit evidence reference, then the policy
// modifier (WARN −0.1, BLOCK forces 0), clamped to [0,1], rounded to two
// decimals.
func ComputeConfidence(raw map[string]any, triple Triple, idx PenaltyIndex, explicitEvidence bool, decision string) float64 {
	confidence := defaultConfidence
	if c, ok := toFloat(raw["confidence"]); ok {
		confidence = c
	}
	if idx.overallPresent && idx.overallScore != nil {
		confidence = (confidence + *idx.overallScore) / 2
	}

	penalty := idx.PenaltyFor(raw, triple)
	if !explicitEvidence {
		penalty += penaltyNoEvidenceRef
	}
	confidence -= penalty

	switch decision {
	case DecisionWarn:
		confidence -= warnModifier
	case DecisionBlock:
		confidence = 0
	}

	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return defaultConfidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return math.Round(confidence*100) / 100
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

package assemble

import (
	"time"

	"github.com/google/uuid"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// Input is everything fact assembly needs: the normalization stage's raw
// facts, the source document, and the validation/policy stage outputs.
type Input struct {
	RunID             uuid.UUID
	RawFacts          []map[string]any
	DocumentID        uuid.UUID
	DocumentText      string
	FallbackSourceURL string
	Validation        map[string]any
	Policy            map[string]any
}

type Assembler struct {
	log *logger.Logger
}

func New(log *logger.Logger) *Assembler {
	return &Assembler{log: log.With("service", "FactAssembler")}
}

// Assemble reconciles raw facts, validation findings, and the policy
// decision into store-ready Fact records. Malformed facts (unresolvable
// triple or no evidence) are dropped and logged, never errors. The caller
// decides whether the records are persisted; assembly itself is always
// performed, even under WARN/BLOCK, for observability.
func (a *Assembler) Assemble(in Input) []*types.Fact {
	decision, err := ParseDecision(in.Policy)
	if err != nil {
		// Facts assembled without a policy verdict are never persisted;
		// score them as unmodified so the observability path stays useful.
		decision = ""
	}
	idx := BuildPenaltyIndex(in.Validation)

	out := make([]*types.Fact, 0, len(in.RawFacts))
	for i, raw := range in.RawFacts {
		triple, ok := ResolveTriple(raw)
		if !ok {
			a.log.Debug("dropping fact with unresolvable triple", "index", i)
			continue
		}
		evidence, ok := ResolveEvidence(raw, in.DocumentID, in.DocumentText)
		if !ok {
			a.log.Debug("dropping fact without evidence",
				"index", i,
				"subject", triple.Subject,
				"predicate", triple.Predicate,
			)
			continue
		}

		typed := DetectTypedValue(triple.Object, triple.Predicate)
		confidence := ComputeConfidence(raw, triple, idx, evidence.Explicit, decision)

		fact := &types.Fact{
			RunID:         in.RunID,
			Subject:       triple.Subject,
			Predicate:     triple.Predicate,
			Object:        triple.Object,
			ValueNumber:   typed.Number,
			ValueDate:     typed.Date,
			ValueMoney:    typed.MoneyAmount,
			ValueCurrency: typed.MoneyCurrency,
			ValuePercent:  typed.Percent,
			ValueCountry:  typed.Country,
			ValueCode:     typed.Code,
			EvidenceText:  evidence.Text,
			EvidenceDocID: evidence.DocID,
			EvidenceStart: evidence.Start,
			EvidenceEnd:   evidence.End,
			Confidence:    confidence,
			Status:        factStatus(raw),
			AsOf:          parseAsOf(raw),
		}
		if refID := asString(raw["object_entity_id"]); refID != "" {
			if id, err := uuid.Parse(refID); err == nil {
				fact.ValueEntityID = &id
			}
		}
		out = append(out, fact)
	}
	return out
}

func factStatus(raw map[string]any) string {
	switch s := asString(raw["status"]); s {
	case types.FactPending, types.FactVerified, types.FactDisputed, types.FactSuperseded:
		return s
	default:
		return types.FactVerified
	}
}

func parseAsOf(raw map[string]any) *time.Time {
	s := asString(raw["as_of"])
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

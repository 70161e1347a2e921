package assemble

import (
	"testing"

	"github.com/google/uuid"
)

const docText = "Acme Inc was founded in 1999. It employs 230 people in Berlin."

func TestResolveEvidenceSpan(t *testing.T) {
	docID := uuid.New()
	raw := map[string]any{
		"evidence_span": map[string]any{"start": float64(30), "end": float64(52)},
	}
	ev, ok := ResolveEvidence(raw, docID, docText)
	if !ok {
		t.Fatalf("expected evidence")
	}
	if ev.Text != "It employs 230 people" {
		t.Fatalf("wrong span text: %q", ev.Text)
	}
	if !ev.FromSpan || !ev.Explicit {
		t.Fatalf("span evidence must be explicit: %+v", ev)
	}
	if ev.Start == nil || *ev.Start != 30 || ev.End == nil || *ev.End != 52 {
		t.Fatalf("span offsets not preserved: %+v", ev)
	}
	if ev.DocID != docID {
		t.Fatalf("doc id not defaulted")
	}
}

func TestResolveEvidenceInvalidSpanFallsBack(t *testing.T) {
	docID := uuid.New()
	cases := []map[string]any{
		{"evidence_span": map[string]any{"start": float64(52), "end": float64(30)}, "evidence": "fallback text"},
		{"evidence_span": map[string]any{"start": float64(-3), "end": float64(10)}, "evidence": "fallback text"},
		{"evidence_span": map[string]any{"start": float64(0), "end": float64(9999)}, "evidence": "fallback text"},
	}
	for i, raw := range cases {
		ev, ok := ResolveEvidence(raw, docID, docText)
		if !ok {
			t.Fatalf("case %d: expected fallback evidence", i)
		}
		if ev.Text != "fallback text" || ev.FromSpan {
			t.Fatalf("case %d: expected explicit fallback, got %+v", i, ev)
		}
		if !ev.Explicit {
			t.Fatalf("case %d: explicit evidence string must not be penalized", i)
		}
	}
}

func TestResolveEvidenceStatementFallbackChain(t *testing.T) {
	docID := uuid.New()

	ev, ok := ResolveEvidence(map[string]any{
		"normalized_statement": "Acme Inc employs 230 people",
		"original_statement":   "they have 230 staff",
	}, docID, docText)
	if !ok || ev.Text != "Acme Inc employs 230 people" {
		t.Fatalf("normalized statement should win: %+v", ev)
	}
	if ev.Explicit {
		t.Fatalf("statement fallback is not an evidence reference")
	}

	ev, ok = ResolveEvidence(map[string]any{
		"original_statement": "they have 230 staff",
	}, docID, docText)
	if !ok || ev.Text != "they have 230 staff" {
		t.Fatalf("original statement fallback: %+v", ev)
	}
}

func TestResolveEvidenceDropped(t *testing.T) {
	if _, ok := ResolveEvidence(map[string]any{}, uuid.New(), docText); ok {
		t.Fatalf("no evidence at all must drop")
	}
	// No resolvable document id either.
	if _, ok := ResolveEvidence(map[string]any{"evidence": "text"}, uuid.Nil, docText); ok {
		t.Fatalf("unresolvable doc id must drop")
	}
}

func TestResolveEvidenceExplicitDocID(t *testing.T) {
	other := uuid.New()
	raw := map[string]any{
		"evidence_doc_id": other.String(),
		"evidence":        "cited elsewhere",
	}
	ev, ok := ResolveEvidence(raw, uuid.New(), docText)
	if !ok || ev.DocID != other {
		t.Fatalf("explicit doc id should win: %+v", ev)
	}
}

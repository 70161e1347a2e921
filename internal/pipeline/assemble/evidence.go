package assemble

import (
	"strings"

	"github.com/google/uuid"
)

// Evidence is the substantiation attached to a fact before persistence.
// FromSpan records whether the text came from a character span or an
// explicit evidence field, as opposed to a statement fallback; statement
// fallbacks carry a confidence penalty.
type Evidence struct {
	Text     string
	DocID    uuid.UUID
	Start    *int
	End      *int
	FromSpan bool
	Explicit bool
}

// ResolveEvidence resolves a fact's evidence per the fallback chain: a
// valid (start,end) span into the document text wins; otherwise an explicit
// evidence string, then the normalized statement, then the original
// statement. ok=false means the fact must be dropped.
func ResolveEvidence(raw map[string]any, documentID uuid.UUID, documentText string) (Evidence, bool) {
	ev := Evidence{DocID: resolveDocID(raw, documentID)}
	if ev.DocID == uuid.Nil {
		return Evidence{}, false
	}

	if start, end, ok := resolveSpan(raw); ok && end > start && start >= 0 && end <= len(documentText) {
		text := strings.TrimSpace(documentText[start:end])
		if text != "" {
			ev.Text = text
			ev.Start = &start
			ev.End = &end
			ev.FromSpan = true
			ev.Explicit = true
			return ev, true
		}
	}

	if text := firstString(raw, []string{"evidence", "evidence_text"}); text != "" {
		ev.Text = text
		ev.Explicit = true
		return ev, true
	}
	if text := firstString(raw, []string{"normalized_statement", "original_statement", "statement"}); text != "" {
		ev.Text = text
		return ev, true
	}
	return Evidence{}, false
}

func resolveDocID(raw map[string]any, fallback uuid.UUID) uuid.UUID {
	for _, key := range []string{"evidence_doc_id", "document_id", "doc_id"} {
		if s := asString(raw[key]); s != "" {
			if id, err := uuid.Parse(s); err == nil {
				return id
			}
		}
	}
	return fallback
}

func resolveSpan(raw map[string]any) (int, int, bool) {
	if span, ok := raw["evidence_span"].(map[string]any); ok {
		return spanFields(span, "start", "end")
	}
	if span, ok := raw["span"].(map[string]any); ok {
		return spanFields(span, "start", "end")
	}
	return spanFields(raw, "evidence_start", "evidence_end")
}

func spanFields(m map[string]any, startKey, endKey string) (int, int, bool) {
	start, okS := asInt(m[startKey])
	end, okE := asInt(m[endKey])
	if !okS || !okE {
		return 0, 0, false
	}
	return start, end, true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

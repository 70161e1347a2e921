package assemble

import "strings"

// Triple is a resolved subject-predicate-object claim.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// Key is the reconstructed identity used when validation findings reference
// a fact by its triple rather than an id.
func (t Triple) Key() string {
	return strings.ToLower(t.Subject) + "|" + strings.ToLower(t.Predicate) + "|" + strings.ToLower(t.Object)
}

var (
	subjectKeys   = []string{"subject", "entity"}
	predicateKeys = []string{"predicate", "relationship", "attribute"}
	objectKeys    = []string{"object", "value"}
)

// ResolveTriple walks the shapes extraction output arrives in, in fixed
// priority: the fact's own subject/predicate/object fields, a nested
// "triple" object, then the "derived" wrapper with its entity/relationship/
// value synonyms. A fact missing any resolved field yields ok=false.
func ResolveTriple(raw map[string]any) (Triple, bool) {
	if raw == nil {
		return Triple{}, false
	}
	if t, ok := tripleFrom(raw); ok {
		return t, true
	}
	if nested, ok := raw["triple"].(map[string]any); ok {
		if t, ok := tripleFrom(nested); ok {
			return t, true
		}
	}
	if derived, ok := raw["derived"].(map[string]any); ok {
		if t, ok := tripleFrom(derived); ok {
			return t, true
		}
	}
	return Triple{}, false
}

func tripleFrom(m map[string]any) (Triple, bool) {
	t := Triple{
		Subject:   firstString(m, subjectKeys),
		Predicate: firstString(m, predicateKeys),
		Object:    firstString(m, objectKeys),
	}
	if t.Subject == "" || t.Predicate == "" || t.Object == "" {
		return Triple{}, false
	}
	return t, true
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return ""
	}
}

package memory

import (
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

// Filter construction is pure and deterministic: no I/O, no type coercion
// beyond the payload value mapping, and metadata keys are visited in sorted
// order so the same inputs always yield the same condition sequence.

// tenantCondition returns the mandatory tenant equality term. Every filter
// the engine sends to the backend starts with it; no code path may omit it.
func tenantCondition(tn tenant.Info) *qdrant.Condition {
	return keywordCondition(payloadTenantKey, tn.ID)
}

// BuildFilter returns the tenant term conjoined with flattened metadata
// constraints. Nil or empty metadata yields exactly the tenant term, i.e. a
// full-tenant scan filter.
func BuildFilter(tn tenant.Info, metadata map[string]any) *qdrant.Filter {
	must := []*qdrant.Condition{tenantCondition(tn)}
	must = append(must, metadataConditions(metadata)...)
	return &qdrant.Filter{Must: must}
}

// metadataConditions flattens a nested constraint map into equality terms on
// dotted metadata paths:
//
//   - nested maps extend the path: {"a":{"b":1}} -> metadata.a.b == 1
//   - list values repeat the term per element: {"a":[1,2]} -> two terms on
//     metadata.a
//   - list-of-map values recurse per element under path[]
func metadataConditions(metadata map[string]any) []*qdrant.Condition {
	if len(metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []*qdrant.Condition
	for _, k := range keys {
		out = append(out, buildCondition(k, metadata[k])...)
	}
	return out
}

func buildCondition(path string, value any) []*qdrant.Condition {
	var out []*qdrant.Condition

	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, buildCondition(path+"."+k, v[k])...)
		}
	case []any:
		for _, item := range v {
			p := path
			if _, isMap := item.(map[string]any); isMap {
				p = path + "[]"
			}
			out = append(out, buildCondition(p, item)...)
		}
	default:
		out = append(out, matchCondition(payloadMetadataKey+"."+path, value))
	}

	return out
}

// matchCondition builds an equality term for a scalar value.
func matchCondition(key string, value any) *qdrant.Condition {
	var match *qdrant.Match
	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	default:
		// Fallback to string representation
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
	}

	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: match,
			},
		},
	}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

// textCondition builds a full-text match term, used for the http-prefix
// source scans.
func textCondition(key, text string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Text{Text: text}},
			},
		},
	}
}

// hasIDCondition constrains a filter to an explicit id list.
func hasIDCondition(ids []string) *qdrant.Condition {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_HasId{
			HasId: &qdrant.HasIdCondition{HasId: pointIDs},
		},
	}
}

package memory

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys. tenant_id is the isolation term and is always written by the
// engine, never by callers.
const (
	payloadContentKey  = "content"
	payloadMetadataKey = "metadata"
	payloadTenantKey   = "tenant_id"
)

// buildPayload assembles a point payload, injecting the tenant term.
func buildPayload(content string, metadata map[string]any, tenantID string) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		payloadContentKey:  {Kind: &qdrant.Value_StringValue{StringValue: content}},
		payloadMetadataKey: valueFrom(metadata),
		payloadTenantKey:   {Kind: &qdrant.Value_StringValue{StringValue: tenantID}},
	}
}

// valueFrom converts a Go value into a qdrant payload value. Nested maps and
// lists are preserved so metadata stays filterable via dotted paths.
func valueFrom(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case map[string]any:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, v := range val {
			fields[k] = valueFrom(v)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	case []any:
		values := make([]*qdrant.Value, len(val))
		for i, v := range val {
			values[i] = valueFrom(v)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		// Fallback to string representation
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

// anyFrom converts a qdrant payload value back into a Go value.
func anyFrom(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(val.StructValue.GetFields()))
		for k, f := range val.StructValue.GetFields() {
			out[k] = anyFrom(f)
		}
		return out
	case *qdrant.Value_ListValue:
		values := val.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = anyFrom(item)
		}
		return out
	default:
		return nil
	}
}

// pointFromPayload maps a backend payload plus id and vector to the domain
// Point.
func pointFromPayload(id string, vector []float32, payload map[string]*qdrant.Value) Point {
	p := Point{ID: id, Vector: vector}
	if v, ok := payload[payloadContentKey]; ok {
		if s, ok := anyFrom(v).(string); ok {
			p.Content = s
		}
	}
	if v, ok := payload[payloadMetadataKey]; ok {
		if m, ok := anyFrom(v).(map[string]any); ok {
			p.Metadata = m
		}
	}
	if v, ok := payload[payloadTenantKey]; ok {
		if s, ok := anyFrom(v).(string); ok {
			p.TenantID = s
		}
	}
	return p
}

func pointFromRetrieved(r *qdrant.RetrievedPoint) Point {
	return pointFromPayload(extractPointID(r.GetId()), extractVectorOutput(r.GetVectors()), r.GetPayload())
}

func pointFromScored(s *qdrant.ScoredPoint) RankedPoint {
	score := s.GetScore()
	return RankedPoint{
		Point: pointFromPayload(extractPointID(s.GetId()), extractVectorOutput(s.GetVectors()), s.GetPayload()),
		Score: &score,
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
	}
	return nil
}

package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// fakeBackend is an in-memory Backend that interprets the same filter
// protos the engine sends to a real Qdrant: Must/MustNot conjunctions,
// keyword/integer/boolean equality on dotted payload paths, text prefix
// matches, and id-list conditions. Scroll pages in insertion order with
// id cursors; Query ranks by cosine similarity.
type fakeBackend struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	aliases     map[string]string // alias -> collection
	snapshots   map[string][]string

	remote       bool
	maxPageSize  int // when set, caps Scroll page sizes to force pagination
	upsertStatus qdrant.UpdateStatus
	aliasErr     error
	snapshotErr  error
	snapshotBase string // base URL for SnapshotURL, set by snapshot tests

	calls int // backend round trips, for validate-before-I/O assertions
}

type fakeCollection struct {
	vectorSize uint64
	order      []string // insertion order of ids
	records    map[string]*fakeRecord
}

type fakeRecord struct {
	id      string
	vector  []float32
	payload map[string]*qdrant.Value
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		collections:  make(map[string]*fakeCollection),
		aliases:      make(map[string]string),
		snapshots:    make(map[string][]string),
		remote:       true,
		upsertStatus: qdrant.UpdateStatus_Completed,
	}
}

func (b *fakeBackend) CollectionExists(_ context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	_, ok := b.collections[name]
	return ok, nil
}

func (b *fakeBackend) CollectionVectorSize(_ context.Context, name string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	c, ok := b.collections[name]
	if !ok {
		return 0, ErrCollectionNotFound
	}
	return c.vectorSize, nil
}

func (b *fakeBackend) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.collections[req.GetCollectionName()] = &fakeCollection{
		vectorSize: req.GetVectorsConfig().GetParams().GetSize(),
		records:    make(map[string]*fakeRecord),
	}
	return nil
}

func (b *fakeBackend) DeleteCollection(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	delete(b.collections, name)
	for alias, target := range b.aliases {
		if target == name {
			delete(b.aliases, alias)
		}
	}
	return nil
}

func (b *fakeBackend) ListAliases(_ context.Context, collection string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	var out []string
	for alias, target := range b.aliases {
		if target == collection {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *fakeBackend) CreateAlias(_ context.Context, alias, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.aliasErr != nil {
		return b.aliasErr
	}
	b.aliases[alias] = collection
	return nil
}

func (b *fakeBackend) CreateKeywordIndex(_ context.Context, collection, field string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return nil
}

func (b *fakeBackend) Upsert(_ context.Context, collection string, points []*qdrant.PointStruct) (*qdrant.UpdateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	c, ok := b.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	if b.upsertStatus == qdrant.UpdateStatus_Completed {
		for _, p := range points {
			id := p.GetId().GetUuid()
			if _, exists := c.records[id]; !exists {
				c.order = append(c.order, id)
			}
			c.records[id] = &fakeRecord{
				id:      id,
				vector:  inputVector(p.GetVectors()),
				payload: p.GetPayload(),
			}
		}
	}
	return &qdrant.UpdateResult{Status: b.upsertStatus}, nil
}

func (b *fakeBackend) Delete(_ context.Context, collection string, selector *qdrant.PointsSelector) (*qdrant.UpdateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	c, ok := b.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	filter := selector.GetFilter()
	kept := c.order[:0]
	for _, id := range c.order {
		if matchesFilter(c.records[id], filter) {
			delete(c.records, id)
		} else {
			kept = append(kept, id)
		}
	}
	c.order = kept
	return &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}, nil
}

func (b *fakeBackend) Scroll(_ context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	c, ok := b.collections[req.GetCollectionName()]
	if !ok {
		return nil, nil, ErrCollectionNotFound
	}

	var matched []*fakeRecord
	for _, id := range c.order {
		if matchesFilter(c.records[id], req.GetFilter()) {
			matched = append(matched, c.records[id])
		}
	}

	start := 0
	if offset := req.GetOffset(); offset != nil {
		for i, r := range matched {
			if r.id == offset.GetUuid() {
				start = i
				break
			}
		}
	}

	limit := len(matched)
	if req.Limit != nil {
		limit = int(req.GetLimit())
	}
	if b.maxPageSize > 0 && limit > b.maxPageSize {
		limit = b.maxPageSize
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	withVectors := req.GetWithVectors().GetEnable()
	out := make([]*qdrant.RetrievedPoint, 0, end-start)
	for _, r := range matched[start:end] {
		rp := &qdrant.RetrievedPoint{
			Id:      qdrant.NewIDUUID(r.id),
			Payload: r.payload,
		}
		if withVectors {
			rp.Vectors = outputVectors(r.vector)
		}
		out = append(out, rp)
	}

	var next *qdrant.PointId
	if end < len(matched) {
		next = qdrant.NewIDUUID(matched[end].id)
	}
	return out, next, nil
}

func (b *fakeBackend) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	c, ok := b.collections[req.GetCollectionName()]
	if !ok {
		return nil, ErrCollectionNotFound
	}

	query := req.GetQuery().GetNearest().GetDense().GetData()

	var scored []*qdrant.ScoredPoint
	for _, id := range c.order {
		r := c.records[id]
		if !matchesFilter(r, req.GetFilter()) {
			continue
		}
		score := cosine(query, r.vector)
		if req.ScoreThreshold != nil && score < req.GetScoreThreshold() {
			continue
		}
		scored = append(scored, &qdrant.ScoredPoint{
			Id:      qdrant.NewIDUUID(r.id),
			Payload: r.payload,
			Score:   score,
			Vectors: outputVectors(r.vector),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].GetScore() > scored[j].GetScore() })

	if req.Limit != nil && uint64(len(scored)) > req.GetLimit() {
		scored = scored[:req.GetLimit()]
	}
	return scored, nil
}

func (b *fakeBackend) Count(_ context.Context, collection string, filter *qdrant.Filter) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	c, ok := b.collections[collection]
	if !ok {
		return 0, ErrCollectionNotFound
	}
	var n uint64
	for _, id := range c.order {
		if matchesFilter(c.records[id], filter) {
			n++
		}
	}
	return n, nil
}

func (b *fakeBackend) Remote() bool { return b.remote }

func (b *fakeBackend) CreateSnapshot(_ context.Context, collection string) (*qdrant.SnapshotDescription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.snapshotErr != nil {
		return nil, b.snapshotErr
	}
	name := fmt.Sprintf("%s-snap-%d", collection, len(b.snapshots[collection]))
	b.snapshots[collection] = append(b.snapshots[collection], name)
	return &qdrant.SnapshotDescription{Name: name}, nil
}

func (b *fakeBackend) ListSnapshots(_ context.Context, collection string) ([]*qdrant.SnapshotDescription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	out := make([]*qdrant.SnapshotDescription, 0, len(b.snapshots[collection]))
	for _, name := range b.snapshots[collection] {
		out = append(out, &qdrant.SnapshotDescription{Name: name})
	}
	return out, nil
}

func (b *fakeBackend) DeleteSnapshot(_ context.Context, collection, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	kept := b.snapshots[collection][:0]
	for _, n := range b.snapshots[collection] {
		if n != name {
			kept = append(kept, n)
		}
	}
	b.snapshots[collection] = kept
	return nil
}

func (b *fakeBackend) SnapshotURL(collection, name string) string {
	return fmt.Sprintf("%s/collections/%s/snapshots/%s", b.snapshotBase, collection, name)
}

func (b *fakeBackend) Health(context.Context) error { return nil }
func (b *fakeBackend) Close() error                 { return nil }

var _ Backend = (*fakeBackend)(nil)

// callCount returns the number of backend round trips so far.
func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// pointIDs returns the ids currently stored in a collection, insertion order.
func (b *fakeBackend) pointIDs(collection string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.collections[collection]
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Filter evaluation

func matchesFilter(r *fakeRecord, f *qdrant.Filter) bool {
	if f == nil {
		return true
	}
	for _, c := range f.GetMust() {
		if !matchesCondition(r, c) {
			return false
		}
	}
	for _, c := range f.GetMustNot() {
		if matchesCondition(r, c) {
			return false
		}
	}
	return true
}

func matchesCondition(r *fakeRecord, c *qdrant.Condition) bool {
	switch cond := c.GetConditionOneOf().(type) {
	case *qdrant.Condition_HasId:
		for _, id := range cond.HasId.GetHasId() {
			if id.GetUuid() == r.id {
				return true
			}
		}
		return false
	case *qdrant.Condition_Field:
		for _, v := range lookupValues(r.payload, cond.Field.GetKey()) {
			if matchesValue(v, cond.Field.GetMatch()) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// lookupValues resolves a dotted payload path to its leaf values, expanding
// lists at every step the way Qdrant matches array elements. A "[]" path
// segment suffix is the explicit list marker and is handled the same way.
func lookupValues(payload map[string]*qdrant.Value, key string) []*qdrant.Value {
	segments := strings.Split(key, ".")
	current := expandList(payload[strings.TrimSuffix(segments[0], "[]")])
	for _, segment := range segments[1:] {
		name := strings.TrimSuffix(segment, "[]")
		var next []*qdrant.Value
		for _, v := range current {
			if s := v.GetStructValue(); s != nil {
				next = append(next, expandList(s.GetFields()[name])...)
			}
		}
		current = next
	}
	return current
}

func expandList(v *qdrant.Value) []*qdrant.Value {
	if v == nil {
		return nil
	}
	if l := v.GetListValue(); l != nil {
		return l.GetValues()
	}
	return []*qdrant.Value{v}
}

func matchesValue(v *qdrant.Value, m *qdrant.Match) bool {
	switch match := m.GetMatchValue().(type) {
	case *qdrant.Match_Keyword:
		return v.GetStringValue() == match.Keyword
	case *qdrant.Match_Integer:
		return v.GetIntegerValue() == match.Integer
	case *qdrant.Match_Boolean:
		return v.GetBoolValue() == match.Boolean
	case *qdrant.Match_Text:
		return strings.HasPrefix(v.GetStringValue(), match.Text)
	default:
		return false
	}
}

// Vector helpers

func inputVector(v *qdrant.Vectors) []float32 {
	vec := v.GetVector()
	if vec == nil {
		return nil
	}
	if d := vec.GetDense(); d != nil {
		return d.GetData()
	}
	return vec.GetData()
}

func outputVectors(vec []float32) *qdrant.VectorsOutput {
	if vec == nil {
		return nil
	}
	return &qdrant.VectorsOutput{
		VectorsOptions: &qdrant.VectorsOutput_Vector{
			Vector: &qdrant.VectorOutput{
				Vector: &qdrant.VectorOutput_Dense{
					Dense: &qdrant.DenseVector{Data: vec},
				},
			},
		},
	}
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

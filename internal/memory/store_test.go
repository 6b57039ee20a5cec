package memory

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

const testVectorSize = 4

func newTestStore(t *testing.T) (*Store, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	require.NoError(t, backend.CreateCollection(context.Background(), &qdrant.CreateCollection{
		CollectionName: CollectionDeclarative,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     testVectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	}))
	return NewStore(backend, testVectorSize, nil), backend
}

func vec(values ...float32) []float32 { return values }

func TestStore_AddPoint(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	tn := tenant.Info{ID: "acme"}

	point, err := store.AddPoint(ctx, tn, CollectionDeclarative, "hello", vec(1, 0, 0, 0), map[string]any{"source": "chat"}, "")
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.NotEmpty(t, point.ID, "missing id should be generated")
	assert.Equal(t, "acme", point.TenantID)

	got, err := store.RetrievePoints(ctx, tn, CollectionDeclarative, []string{point.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "acme", got[0].TenantID)
	assert.Equal(t, map[string]any{"source": "chat"}, got[0].Metadata)
	assert.Equal(t, vec(1, 0, 0, 0), got[0].Vector)
}

func TestStore_AddPoint_IdempotentBySameID(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	tn := tenant.Info{ID: "acme"}

	_, err := store.AddPoint(ctx, tn, CollectionDeclarative, "v1", vec(1, 0, 0, 0), nil, "fixed-id")
	require.NoError(t, err)
	_, err = store.AddPoint(ctx, tn, CollectionDeclarative, "v2", vec(0, 1, 0, 0), nil, "fixed-id")
	require.NoError(t, err)

	assert.Equal(t, []string{"fixed-id"}, backend.pointIDs(CollectionDeclarative), "same id must overwrite, not duplicate")

	got, err := store.RetrievePoints(ctx, tn, CollectionDeclarative, []string{"fixed-id"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Content)
}

func TestStore_AddPoint_VectorSizeMismatch(t *testing.T) {
	store, backend := newTestStore(t)
	before := backend.callCount()

	_, err := store.AddPoint(context.Background(), tenant.Info{ID: "acme"}, CollectionDeclarative, "x", vec(1, 0), nil, "")
	require.ErrorIs(t, err, ErrVectorSizeMismatch)
	assert.Equal(t, before, backend.callCount(), "rejection must happen before any backend call")
}

func TestStore_AddPoint_InvalidTenant(t *testing.T) {
	store, backend := newTestStore(t)
	before := backend.callCount()

	_, err := store.AddPoint(context.Background(), tenant.Info{ID: "bad tenant!"}, CollectionDeclarative, "x", vec(1, 0, 0, 0), nil, "")
	require.ErrorIs(t, err, tenant.ErrInvalidTenant)
	assert.Equal(t, before, backend.callCount())
}

func TestStore_AddPoint_SoftFailure(t *testing.T) {
	store, backend := newTestStore(t)
	backend.upsertStatus = qdrant.UpdateStatus_Acknowledged

	point, err := store.AddPoint(context.Background(), tenant.Info{ID: "acme"}, CollectionDeclarative, "x", vec(1, 0, 0, 0), nil, "")
	require.NoError(t, err, "a non-applied write is not an error")
	assert.Nil(t, point, "a non-applied write returns no point")
}

func TestStore_AddPoints(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	tn := tenant.Info{ID: "acme"}

	payloads := []PointPayload{
		{Content: "one", Metadata: map[string]any{"n": 1}},
		{Content: "two", Metadata: map[string]any{"n": 2}},
		{Content: "three", Metadata: map[string]any{"n": 3}},
	}
	vectors := [][]float32{vec(1, 0, 0, 0), vec(0, 1, 0, 0), vec(0, 0, 1, 0)}

	before := backend.callCount()
	result, err := store.AddPoints(ctx, tn, CollectionDeclarative, payloads, vectors, nil)
	require.NoError(t, err)
	require.Len(t, result.IDs, 3)
	assert.True(t, result.Applied)
	assert.Equal(t, before+1, backend.callCount(), "a batch must be a single backend call")

	got, err := store.RetrievePoints(ctx, tn, CollectionDeclarative, result.IDs)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_AddPoints_LengthMismatch(t *testing.T) {
	store, backend := newTestStore(t)
	before := backend.callCount()

	_, err := store.AddPoints(context.Background(), tenant.Info{ID: "acme"}, CollectionDeclarative,
		[]PointPayload{{Content: "one"}},
		[][]float32{vec(1, 0, 0, 0)},
		[]string{"a", "b"},
	)
	require.ErrorIs(t, err, ErrBatchLengthMismatch)
	assert.Equal(t, before, backend.callCount(), "mismatch must be reported before any I/O")
}

func TestStore_AddPoints_VectorSizeMismatch(t *testing.T) {
	store, backend := newTestStore(t)
	before := backend.callCount()

	_, err := store.AddPoints(context.Background(), tenant.Info{ID: "acme"}, CollectionDeclarative,
		[]PointPayload{{Content: "one"}, {Content: "two"}},
		[][]float32{vec(1, 0, 0, 0), vec(1, 0)},
		nil,
	)
	require.ErrorIs(t, err, ErrVectorSizeMismatch)
	assert.Equal(t, before, backend.callCount())
}

func TestStore_AddPoints_SoftFailure(t *testing.T) {
	store, backend := newTestStore(t)
	backend.upsertStatus = qdrant.UpdateStatus_Acknowledged

	result, err := store.AddPoints(context.Background(), tenant.Info{ID: "acme"}, CollectionDeclarative,
		[]PointPayload{{Content: "one"}},
		[][]float32{vec(1, 0, 0, 0)},
		nil,
	)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Applied)
	assert.Len(t, result.IDs, 1, "ids are reported even when the batch was not applied")
}

func TestStore_DeletePoints_ScopedToTenant(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := tenant.Info{ID: "acme"}
	other := tenant.Info{ID: "globex"}

	p, err := store.AddPoint(ctx, owner, CollectionDeclarative, "mine", vec(1, 0, 0, 0), nil, "owned-id")
	require.NoError(t, err)

	// A different tenant deleting by the same id must be a silent no-op.
	require.NoError(t, store.DeletePoints(ctx, other, CollectionDeclarative, []string{p.ID}))
	got, err := store.RetrievePoints(ctx, owner, CollectionDeclarative, []string{p.ID})
	require.NoError(t, err)
	assert.Len(t, got, 1, "foreign delete must not remove the point")

	require.NoError(t, store.DeletePoints(ctx, owner, CollectionDeclarative, []string{p.ID}))
	got, err = store.RetrievePoints(ctx, owner, CollectionDeclarative, []string{p.ID})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_DeletePointsByMetadata(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	tn := tenant.Info{ID: "acme"}

	_, err := store.AddPoint(ctx, tn, CollectionDeclarative, "a", vec(1, 0, 0, 0), map[string]any{"source": "doc.pdf"}, "")
	require.NoError(t, err)
	_, err = store.AddPoint(ctx, tn, CollectionDeclarative, "b", vec(0, 1, 0, 0), map[string]any{"source": "chat"}, "")
	require.NoError(t, err)

	require.NoError(t, store.DeletePointsByMetadata(ctx, tn, CollectionDeclarative, map[string]any{"source": "doc.pdf"}))

	count, err := store.Count(ctx, tn, CollectionDeclarative)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestStore_DeletePointsByMetadata_EmptyDeletesAllOwned(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := tenant.Info{ID: "acme"}
	other := tenant.Info{ID: "globex"}

	_, err := store.AddPoint(ctx, owner, CollectionDeclarative, "a", vec(1, 0, 0, 0), nil, "")
	require.NoError(t, err)
	_, err = store.AddPoint(ctx, other, CollectionDeclarative, "b", vec(0, 1, 0, 0), nil, "")
	require.NoError(t, err)

	require.NoError(t, store.DeletePointsByMetadata(ctx, owner, CollectionDeclarative, map[string]any{}))

	ownerCount, err := store.Count(ctx, owner, CollectionDeclarative)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ownerCount)

	otherCount, err := store.Count(ctx, other, CollectionDeclarative)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), otherCount, "another tenant's points must survive")
}

func TestStore_RetrievePoints_ExcludesForeignIDs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := tenant.Info{ID: "acme"}
	other := tenant.Info{ID: "globex"}

	mine, err := store.AddPoint(ctx, owner, CollectionDeclarative, "mine", vec(1, 0, 0, 0), nil, "")
	require.NoError(t, err)
	theirs, err := store.AddPoint(ctx, other, CollectionDeclarative, "theirs", vec(0, 1, 0, 0), nil, "")
	require.NoError(t, err)

	got, err := store.RetrievePoints(ctx, owner, CollectionDeclarative, []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	require.Len(t, got, 1, "foreign ids are excluded, not errors")
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestStore_UpdateMetadata(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	tn := tenant.Info{ID: "acme"}

	p, err := store.AddPoint(ctx, tn, CollectionDeclarative, "doc", vec(1, 0, 0, 0), map[string]any{"source": "chat", "pinned": false}, "")
	require.NoError(t, err)

	updated, err := store.UpdateMetadata(ctx, tn, CollectionDeclarative, []Point{*p}, map[string]any{"pinned": true, "note": "kept"})
	require.NoError(t, err)
	require.Len(t, updated, 1)

	got, err := store.RetrievePoints(ctx, tn, CollectionDeclarative, []string{p.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "chat", got[0].Metadata["source"], "untouched keys survive")
	assert.Equal(t, true, got[0].Metadata["pinned"], "patch keys win")
	assert.Equal(t, "kept", got[0].Metadata["note"])
	assert.Equal(t, "doc", got[0].Content, "content and vector are preserved")
	assert.Equal(t, vec(1, 0, 0, 0), got[0].Vector)
}

func TestStore_Count(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	acme := tenant.Info{ID: "acme"}
	globex := tenant.Info{ID: "globex"}

	for i := 0; i < 3; i++ {
		_, err := store.AddPoint(ctx, acme, CollectionDeclarative, "a", vec(1, 0, 0, 0), nil, "")
		require.NoError(t, err)
	}
	_, err := store.AddPoint(ctx, globex, CollectionDeclarative, "b", vec(0, 1, 0, 0), nil, "")
	require.NoError(t, err)

	count, err := store.Count(ctx, acme, CollectionDeclarative)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestStore_DestroyTenantPoints(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	acme := tenant.Info{ID: "acme"}
	globex := tenant.Info{ID: "globex"}

	_, err := store.AddPoint(ctx, acme, CollectionDeclarative, "a", vec(1, 0, 0, 0), nil, "")
	require.NoError(t, err)
	_, err = store.AddPoint(ctx, globex, CollectionDeclarative, "b", vec(0, 1, 0, 0), nil, "")
	require.NoError(t, err)

	require.NoError(t, store.DestroyTenantPoints(ctx, acme, CollectionDeclarative))

	exists, err := backend.CollectionExists(ctx, CollectionDeclarative)
	require.NoError(t, err)
	assert.True(t, exists, "the shared collection itself must never be deleted")

	count, err := store.Count(ctx, globex, CollectionDeclarative)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

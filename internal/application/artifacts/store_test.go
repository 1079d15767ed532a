package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitci/conduit/pkg/domain"
)

func TestPutAndGet(t *testing.T) {
	store := NewStore()

	ref, err := store.Put("build", "image", "registry.example.com/app@sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, "image", ref.Name)
	assert.Equal(t, "build", ref.ProducedBy)
	assert.False(t, ref.CreatedAt.IsZero())

	got, err := store.Get("build", "image")
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestPutWriteOnce(t *testing.T) {
	store := NewStore()

	_, err := store.Put("build", "image", "first")
	require.NoError(t, err)

	_, err = store.Put("build", "image", "second")
	assert.ErrorIs(t, err, domain.ErrDuplicateArtifact)

	// The original reference survives the rejected write.
	got, err := store.Get("build", "image")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Reference)
}

func TestPutRequiresKey(t *testing.T) {
	store := NewStore()

	_, err := store.Put("", "image", "ref")
	assert.Error(t, err)
	_, err = store.Put("build", "", "ref")
	assert.Error(t, err)
}

func TestGetMissing(t *testing.T) {
	store := NewStore()

	_, err := store.Get("build", "image")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestSameNameDifferentStages(t *testing.T) {
	store := NewStore()

	_, err := store.Put("scan-fs", "report", "sha256:aaa")
	require.NoError(t, err)
	_, err = store.Put("scan-image", "report", "sha256:bbb")
	require.NoError(t, err)

	a, err := store.Get("scan-fs", "report")
	require.NoError(t, err)
	b, err := store.Get("scan-image", "report")
	require.NoError(t, err)
	assert.NotEqual(t, a.Reference, b.Reference)
}

func TestListOrdered(t *testing.T) {
	store := NewStore()

	_, err := store.Put("deploy", "deployment", "default/deployment/app")
	require.NoError(t, err)
	_, err = store.Put("build", "image", "sha256:abc")
	require.NoError(t, err)
	_, err = store.Put("build", "digest", "sha256:def")
	require.NoError(t, err)

	refs := store.List()
	require.Len(t, refs, 3)
	assert.Equal(t, 3, store.Len())

	assert.Equal(t, "digest", refs[0].Name)
	assert.Equal(t, "image", refs[1].Name)
	assert.Equal(t, "deployment", refs[2].Name)
}

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "construction-files", "http://localhost:8080/storage")
	require.NoError(t, err)

	require.NoError(t, store.Upload(ctx, "sub-1/b.jpg", []byte("bbb"), "image/jpeg", false))
	require.NoError(t, store.Upload(ctx, "sub-1/a.jpg", []byte("aa"), "image/jpeg", false))
	require.NoError(t, store.Upload(ctx, "sub-1/nested/c.jpg", []byte("c"), "image/jpeg", false))

	objects, err := store.List(ctx, "sub-1/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a.jpg", objects[0].Name)
	assert.Equal(t, "sub-1/a.jpg", objects[0].Key)
	assert.Equal(t, int64(2), objects[0].Size)

	data, err := store.Download(ctx, "sub-1/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), data)

	err = store.Upload(ctx, "sub-1/a.jpg", []byte("x"), "", false)
	assert.True(t, errors.Is(err, ErrObjectExists))
	require.NoError(t, store.Upload(ctx, "sub-1/a.jpg", []byte("x"), "", true))

	require.NoError(t, store.Delete(ctx, "sub-1/a.jpg", "sub-1/missing.jpg"))
	_, err = store.Download(ctx, "sub-1/a.jpg")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestLocalStoreListMissingPrefix(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "files", "http://localhost/storage")
	require.NoError(t, err)

	objects, err := store.List(context.Background(), "nobody/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "files", "http://localhost/storage")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "../secret")
	assert.True(t, errors.Is(err, ErrInvalidKey))
	err = store.Upload(context.Background(), "/abs", nil, "", true)
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

func TestLocalStorePublicURLRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "files", "http://localhost:8080/storage/")
	require.NoError(t, err)

	url := store.PublicURL("archives/Saint Etienne.zip")
	assert.Equal(t, "http://localhost:8080/storage/files/archives/Saint%20Etienne.zip", url)

	key, ok := store.KeyForURL(url + "?download=1")
	require.True(t, ok)
	assert.Equal(t, "archives/Saint Etienne.zip", key)

	_, ok = store.KeyForURL("https://elsewhere.example.com/files/a.jpg")
	assert.False(t, ok)
}

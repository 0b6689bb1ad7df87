package blob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	url, err := store.Put("tenant-1/documents/x/handbook.txt", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	data, err := store.Get("tenant-1/documents/x/handbook.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, store.Delete("tenant-1/documents/x/handbook.txt"))
	_, err = store.Get("tenant-1/documents/x/handbook.txt")
	require.Error(t, err)
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Delete("tenant-1/never/was.txt"))
}

func TestKeyMayNotEscapeRoot(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put("../outside.txt", []byte("x"))
	require.Error(t, err)
	_, err = store.Get("../../etc/passwd")
	require.Error(t, err)
	require.Error(t, store.Delete("../outside.txt"))
}

func TestEmptyKeyRejected(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put("", []byte("x"))
	require.Error(t, err)
}

func TestPutOverwrites(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put("k.txt", []byte("old"))
	require.NoError(t, err)
	_, err = store.Put("k.txt", []byte("new"))
	require.NoError(t, err)

	data, err := store.Get("k.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

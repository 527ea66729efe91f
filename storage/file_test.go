package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileObjectStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := NewFileObjectStore(fs, "/data", testLogger())
	require.NoError(t, err)
	return store, fs
}

func TestFileObjectStore_PutGetDelete(t *testing.T) {
	store, fs := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "bucket", "a/b/c", strings.NewReader("content")))

	exists, err := afero.Exists(fs, "/data/bucket/a/b/c")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.GetObject(ctx, "bucket", "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	require.NoError(t, store.PutObject(ctx, "bucket", "a/b/c", strings.NewReader("new")))
	data, err = store.GetObject(ctx, "bucket", "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data), "put must truncate the previous object")

	require.NoError(t, store.DeleteObject(ctx, "bucket", "a/b/c"))
	_, err = store.GetObject(ctx, "bucket", "a/b/c")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	assert.NoError(t, store.DeleteObject(ctx, "bucket", "a/b/c"), "deleting a missing object succeeds")
}

func TestFileObjectStore_ExistsAndSize(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutObject(ctx, "bucket", "dir/obj", strings.NewReader("12345")))

	ok, err := store.ObjectExists(ctx, "bucket", "dir/obj")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ObjectExists(ctx, "bucket", "dir")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")

	size, ok, err := store.ObjectSize(ctx, "bucket", "dir/obj")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), size)

	_, ok, err = store.ObjectSize(ctx, "bucket", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileObjectStore_GetObjectRange(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutObject(ctx, "bucket", "obj", strings.NewReader("0123456789")))

	tests := []struct {
		name      string
		byteRange interfaces.ByteRange
		expected  string
	}{
		{name: "whole object", byteRange: interfaces.WholeObject, expected: "0123456789"},
		{name: "prefix", byteRange: interfaces.ByteRange{Offset: 0, Length: 3}, expected: "012"},
		{name: "middle", byteRange: interfaces.ByteRange{Offset: 4, Length: 2}, expected: "45"},
		{name: "open ended", byteRange: interfaces.ByteRange{Offset: 7, Length: -1}, expected: "789"},
		{name: "past the end", byteRange: interfaces.ByteRange{Offset: 8, Length: 10}, expected: "89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := store.GetObjectRange(ctx, "bucket", "obj", tt.byteRange)
			require.NoError(t, err)
			defer rc.Close()

			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}

	_, err := store.GetObjectRange(ctx, "bucket", "missing", interfaces.WholeObject)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFileObjectStore_ListObjects(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	for _, key := range []string{"root/b", "root/a", "root/sub/c", "other/d"} {
		require.NoError(t, store.PutObject(ctx, "bucket", key, strings.NewReader(key)))
	}

	page, err := store.ListObjects(ctx, "bucket", "root", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"root/a", "root/b", "root/sub/c"}, page.Keys)
	assert.Empty(t, page.NextMarker)

	page, err = store.ListObjects(ctx, "bucket", "root", "root/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"root/b", "root/sub/c"}, page.Keys)

	page, err = store.ListObjects(ctx, "missing-bucket", "", "")
	require.NoError(t, err)
	assert.Empty(t, page.Keys)
}

func TestFileObjectStore_ListObjectsPaging(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	total := filePageSize + 5
	for i := 0; i < total; i++ {
		require.NoError(t, store.PutObject(ctx, "bucket", fmt.Sprintf("k/%05d", i), strings.NewReader("x")))
	}

	page, err := store.ListObjects(ctx, "bucket", "k", "")
	require.NoError(t, err)
	require.Len(t, page.Keys, filePageSize)
	assert.Equal(t, page.Keys[filePageSize-1], page.NextMarker)

	next, err := store.ListObjects(ctx, "bucket", "k", page.NextMarker)
	require.NoError(t, err)
	assert.Len(t, next.Keys, 5)
	assert.Empty(t, next.NextMarker)
}

func TestFileObjectStore_Name(t *testing.T) {
	store, _ := newTestFileStore(t)
	assert.Equal(t, "file-data", store.Name())
}

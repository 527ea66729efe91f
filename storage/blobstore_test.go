package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testBucket     = "registry-bucket"
	testStagingDir = "/staging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBlobStore(t *testing.T, store interfaces.ObjectStore) (*BlobStore, afero.Fs) {
	t.Helper()
	stagingFs := afero.NewMemMapFs()
	require.NoError(t, stagingFs.MkdirAll(testStagingDir, 0o755))

	return NewBlobStore(store, BlobStoreOptions{
		Bucket:           testBucket,
		RootPath:         "/registry",
		StagingFs:        stagingFs,
		StagingDir:       testStagingDir,
		ExistsRetryDelay: time.Millisecond,
	}, testLogger()), stagingFs
}

func newFileBackedBlobStore(t *testing.T) *BlobStore {
	t.Helper()
	fileStore, err := NewFileObjectStore(afero.NewMemMapFs(), "/objects", testLogger())
	require.NoError(t, err)
	blobs, _ := newTestBlobStore(t, fileStore)
	return blobs
}

func assertStagingEmpty(t *testing.T, fs afero.Fs) {
	t.Helper()
	entries, err := afero.ReadDir(fs, testStagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging files must be removed")
}

func TestBlobStore_Exists(t *testing.T) {
	testErr := errors.New("connection reset")

	tests := []struct {
		name      string
		setupMock func(m *MockObjectStore)
		expected  bool
		calls     int
	}{
		{
			name: "object present",
			setupMock: func(m *MockObjectStore) {
				m.On("ObjectExists", mock.Anything, testBucket, "registry/images/1/json").Return(true, nil).Once()
			},
			expected: true,
			calls:    1,
		},
		{
			name: "object absent",
			setupMock: func(m *MockObjectStore) {
				m.On("ObjectExists", mock.Anything, testBucket, "registry/images/1/json").Return(false, nil).Once()
			},
			expected: false,
			calls:    1,
		},
		{
			name: "transient failure then success",
			setupMock: func(m *MockObjectStore) {
				m.On("ObjectExists", mock.Anything, testBucket, "registry/images/1/json").Return(false, testErr).Twice()
				m.On("ObjectExists", mock.Anything, testBucket, "registry/images/1/json").Return(true, nil).Once()
			},
			expected: true,
			calls:    3,
		},
		{
			name: "persistent failure degrades to false",
			setupMock: func(m *MockObjectStore) {
				m.On("ObjectExists", mock.Anything, testBucket, "registry/images/1/json").Return(false, testErr)
			},
			expected: false,
			calls:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockObjectStore)
			tt.setupMock(store)
			blobs, _ := newTestBlobStore(t, store)

			result := blobs.Exists(context.Background(), "images/1/json")

			assert.Equal(t, tt.expected, result)
			store.AssertNumberOfCalls(t, "ObjectExists", tt.calls)
		})
	}
}

func TestBlobStore_Exists_CancelledContext(t *testing.T) {
	store := new(MockObjectStore)
	store.On("ObjectExists", mock.Anything, testBucket, mock.Anything).Return(false, errors.New("timeout"))
	blobs, _ := newTestBlobStore(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, blobs.Exists(ctx, "images/1/json"))
}

func TestBlobStore_GetContent(t *testing.T) {
	ctx := context.Background()
	key := "registry/images/1/layer"

	t.Run("missing object is NotFoundError", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ObjectExists", mock.Anything, testBucket, key).Return(false, nil)
		blobs, _ := newTestBlobStore(t, store)

		data, err := blobs.GetContent(ctx, "images/1/layer")

		assert.Nil(t, data)
		var notFound *interfaces.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, key, notFound.Path)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
		store.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unreachable backend is NotFoundError", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ObjectExists", mock.Anything, testBucket, key).Return(false, errors.New("down"))
		blobs, _ := newTestBlobStore(t, store)

		_, err := blobs.GetContent(ctx, "images/1/layer")

		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("existing object is fetched", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ObjectExists", mock.Anything, testBucket, key).Return(true, nil)
		store.On("GetObject", mock.Anything, testBucket, key).Return([]byte("layer data"), nil)
		blobs, _ := newTestBlobStore(t, store)

		data, err := blobs.GetContent(ctx, "images/1/layer")

		require.NoError(t, err)
		assert.Equal(t, []byte("layer data"), data)
	})

	t.Run("object deleted between check and fetch", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ObjectExists", mock.Anything, testBucket, key).Return(true, nil)
		store.On("GetObject", mock.Anything, testBucket, key).
			Return(nil, fmt.Errorf("%w: NoSuchKey", interfaces.ErrNotFound))
		blobs, _ := newTestBlobStore(t, store)

		_, err := blobs.GetContent(ctx, "images/1/layer")

		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("fetch failure is ConnectionError", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		store := new(MockObjectStore)
		store.On("ObjectExists", mock.Anything, testBucket, key).Return(true, nil)
		store.On("GetObject", mock.Anything, testBucket, key).Return(nil, cause)
		blobs, _ := newTestBlobStore(t, store)

		_, err := blobs.GetContent(ctx, "images/1/layer")

		assert.ErrorIs(t, err, interfaces.ErrConnection)
		assert.ErrorIs(t, err, cause)
	})
}

func TestBlobStore_PutContent(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads staged content under resolved key", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("PutObject", mock.Anything, testBucket, "registry/images/1/json", []byte(`{"id":"1"}`)).Return(nil)
		blobs, stagingFs := newTestBlobStore(t, store)

		key, err := blobs.PutContent(ctx, "images/1/json", []byte(`{"id":"1"}`))

		require.NoError(t, err)
		assert.Equal(t, "registry/images/1/json", key)
		store.AssertExpectations(t)
		assertStagingEmpty(t, stagingFs)
	})

	t.Run("upload failure is IOError wrapping the cause", func(t *testing.T) {
		cause := errors.New("403 AccessDenied")
		store := new(MockObjectStore)
		store.On("PutObject", mock.Anything, testBucket, "registry/images/1/json", mock.Anything).Return(cause)
		blobs, stagingFs := newTestBlobStore(t, store)

		key, err := blobs.PutContent(ctx, "images/1/json", []byte("data"))

		assert.Empty(t, key)
		var ioErr *interfaces.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "registry/images/1/json", ioErr.Path)
		assert.ErrorIs(t, err, interfaces.ErrIO)
		assert.ErrorIs(t, err, cause)
		assertStagingEmpty(t, stagingFs)
	})

	t.Run("staging failure is IOError", func(t *testing.T) {
		store := new(MockObjectStore)
		blobs := NewBlobStore(store, BlobStoreOptions{
			Bucket:    testBucket,
			StagingFs: afero.NewReadOnlyFs(afero.NewMemMapFs()),
		}, testLogger())

		_, err := blobs.PutContent(ctx, "images/1/json", []byte("data"))

		assert.ErrorIs(t, err, interfaces.ErrIO)
		store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty path is rejected", func(t *testing.T) {
		store := new(MockObjectStore)
		blobs, _ := newTestBlobStore(t, store)

		_, err := blobs.PutContent(ctx, "", []byte("data"))

		assert.ErrorIs(t, err, interfaces.ErrInvalidPath)
	})
}

func TestBlobStore_PutContent_ConcurrentStagingIsolated(t *testing.T) {
	blobs := newFileBackedBlobStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("images/%d/layer", i)
			_, err := blobs.PutContent(ctx, path, bytes.Repeat([]byte{byte(i)}, 4096))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 32; i++ {
		data, err := blobs.GetContent(ctx, fmt.Sprintf("images/%d/layer", i))
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 4096), data)
	}
	assertStagingEmpty(t, blobs.stagingFs)
}

func TestBlobStore_RoundTrip(t *testing.T) {
	blobs := newFileBackedBlobStore(t)
	ctx := context.Background()

	contents := [][]byte{
		[]byte("hello"),
		{},
		{0x00, 0xff, 0x10, 0x00},
		bytes.Repeat([]byte("abc"), 10000),
	}

	for i, content := range contents {
		path := fmt.Sprintf("repositories/lib/ubuntu/_index_%d", i)
		_, err := blobs.PutContent(ctx, path, content)
		require.NoError(t, err)

		data, err := blobs.GetContent(ctx, path)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(content, data), "content %d differs", i)
	}
}

func TestBlobStore_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object still calls delete", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("DeleteObject", mock.Anything, testBucket, "registry/images/none").Return(nil).Once()
		blobs, _ := newTestBlobStore(t, store)

		require.NoError(t, blobs.Remove(ctx, "images/none"))

		store.AssertExpectations(t)
		store.AssertNotCalled(t, "ObjectExists", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delete failure is ConnectionError", func(t *testing.T) {
		cause := errors.New("dial tcp: i/o timeout")
		store := new(MockObjectStore)
		store.On("DeleteObject", mock.Anything, testBucket, "registry/images/1").Return(cause)
		blobs, _ := newTestBlobStore(t, store)

		err := blobs.Remove(ctx, "images/1")

		var connErr *interfaces.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "remove", connErr.Op)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("empty path is rejected", func(t *testing.T) {
		store := new(MockObjectStore)
		blobs, _ := newTestBlobStore(t, store)

		assert.ErrorIs(t, blobs.Remove(ctx, ""), interfaces.ErrInvalidPath)
		store.AssertNotCalled(t, "DeleteObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("removed object is gone", func(t *testing.T) {
		blobs := newFileBackedBlobStore(t)
		_, err := blobs.PutContent(ctx, "images/1/json", []byte("{}"))
		require.NoError(t, err)

		require.NoError(t, blobs.Remove(ctx, "images/1/json"))

		assert.False(t, blobs.Exists(ctx, "images/1/json"))
		_, err = blobs.GetContent(ctx, "images/1/json")
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})
}

func TestBlobStore_GetSize(t *testing.T) {
	ctx := context.Background()
	key := "registry/images/1/layer"

	tests := []struct {
		name        string
		setupMock   func(m *MockObjectStore)
		expected    int64
		expectedErr error
	}{
		{
			name: "size reported",
			setupMock: func(m *MockObjectStore) {
				m.On("ObjectSize", mock.Anything, testBucket, key).Return(int64(1234), true, nil)
			},
			expected: 1234,
		},
		{
			name: "no size reported",
			setupMock: func(m *MockObjectStore) {
				m.On("ObjectSize", mock.Anything, testBucket, key).Return(int64(0), false, nil)
			},
			expectedErr: interfaces.ErrNotFound,
		},
		{
			name: "query failure",
			setupMock: func(m *MockObjectStore) {
				m.On("ObjectSize", mock.Anything, testBucket, key).Return(int64(0), false, errors.New("500"))
			},
			expectedErr: interfaces.ErrConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockObjectStore)
			tt.setupMock(store)
			blobs, _ := newTestBlobStore(t, store)

			size, err := blobs.GetSize(ctx, "images/1/layer")

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size)
		})
	}
}

func TestBlobStore_ListDirectory(t *testing.T) {
	ctx := context.Background()

	t.Run("pages are fetched lazily", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ListObjects", mock.Anything, testBucket, "registry/images", "").
			Return(interfaces.ObjectPage{Keys: []string{"registry/images/1", "registry/images/2"}, NextMarker: "registry/images/2"}, nil).Once()
		store.On("ListObjects", mock.Anything, testBucket, "registry/images", "registry/images/2").
			Return(interfaces.ObjectPage{Keys: []string{"registry/images/3"}}, nil).Once()
		blobs, _ := newTestBlobStore(t, store)

		seq := blobs.ListDirectory(ctx, "images")
		store.AssertNotCalled(t, "ListObjects", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		var keys []string
		for key, err := range seq {
			require.NoError(t, err)
			keys = append(keys, key)
		}
		assert.Equal(t, []string{"registry/images/1", "registry/images/2", "registry/images/3"}, keys)
		store.AssertExpectations(t)
	})

	t.Run("sequence is single pass", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ListObjects", mock.Anything, testBucket, "registry/images", "").
			Return(interfaces.ObjectPage{Keys: []string{"registry/images/1"}}, nil).Once()
		blobs, _ := newTestBlobStore(t, store)

		seq := blobs.ListDirectory(ctx, "images")
		first, second := 0, 0
		for range seq {
			first++
		}
		for range seq {
			second++
		}

		assert.Equal(t, 1, first)
		assert.Equal(t, 0, second)
		store.AssertNumberOfCalls(t, "ListObjects", 1)
	})

	t.Run("early break stops paging", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ListObjects", mock.Anything, testBucket, "registry/images", "").
			Return(interfaces.ObjectPage{Keys: []string{"registry/images/1", "registry/images/2"}, NextMarker: "registry/images/2"}, nil).Once()
		blobs, _ := newTestBlobStore(t, store)

		for range blobs.ListDirectory(ctx, "images") {
			break
		}

		store.AssertNumberOfCalls(t, "ListObjects", 1)
	})

	t.Run("empty listing", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ListObjects", mock.Anything, testBucket, "registry", "").Return(interfaces.ObjectPage{}, nil)
		blobs, _ := newTestBlobStore(t, store)

		count := 0
		for range blobs.ListDirectory(ctx, "") {
			count++
		}
		assert.Zero(t, count)
	})

	t.Run("listing failure ends the sequence", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("ListObjects", mock.Anything, testBucket, "registry/images", "").
			Return(interfaces.ObjectPage{}, errors.New("503 SlowDown"))
		blobs, _ := newTestBlobStore(t, store)

		var errs []error
		for key, err := range blobs.ListDirectory(ctx, "images") {
			assert.Empty(t, key)
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], interfaces.ErrConnection)
	})
}

func TestBlobStore_StreamRead(t *testing.T) {
	blobs := newFileBackedBlobStore(t)
	ctx := context.Background()

	_, err := blobs.PutContent(ctx, "images/1/layer", []byte("0123456789"))
	require.NoError(t, err)

	rc, err := blobs.StreamRead(ctx, "images/1/layer", interfaces.ByteRange{Offset: 2, Length: 5})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "23456", string(data))

	rc, err = blobs.StreamRead(ctx, "images/1/layer", interfaces.WholeObject)
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "0123456789", string(data))

	_, err = blobs.StreamRead(ctx, "images/2/layer", interfaces.WholeObject)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestBlobStore_StreamReadRejectsEmptyRange(t *testing.T) {
	store := new(MockObjectStore)
	blobs, _ := newTestBlobStore(t, store)

	for _, byteRange := range []interfaces.ByteRange{{Offset: 4, Length: 0}, {Offset: -1, Length: 2}} {
		_, err := blobs.StreamRead(context.Background(), "images/1/layer", byteRange)
		assert.ErrorIs(t, err, interfaces.ErrInvalidRange)
	}
	store.AssertNotCalled(t, "GetObjectRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBlobStore_StreamWrite(t *testing.T) {
	blobs := newFileBackedBlobStore(t)
	ctx := context.Background()

	n, err := blobs.StreamWrite(ctx, "images/1/layer", strings.NewReader("streamed layer"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("streamed layer")), n)

	data, err := blobs.GetContent(ctx, "images/1/layer")
	require.NoError(t, err)
	assert.Equal(t, "streamed layer", string(data))
	assertStagingEmpty(t, blobs.stagingFs)

	t.Run("source failure is IOError", func(t *testing.T) {
		_, err := blobs.StreamWrite(ctx, "images/2/layer", io.MultiReader(strings.NewReader("x"), failingReader{}))
		assert.ErrorIs(t, err, interfaces.ErrIO)
		assert.False(t, blobs.Exists(ctx, "images/2/layer"))
		assertStagingEmpty(t, blobs.stagingFs)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("source broke")
}

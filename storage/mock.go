package storage

import (
	"context"
	"io"
	"iter"

	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockObjectStore implements interfaces.ObjectStore for testing
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockObjectStore) GetObjectRange(ctx context.Context, bucket, key string, byteRange interfaces.ByteRange) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key, byteRange)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectStore) PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	args := m.Called(ctx, bucket, key, data)
	return args.Error(0)
}

func (m *MockObjectStore) DeleteObject(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockObjectStore) ListObjects(ctx context.Context, bucket, prefix, marker string) (interfaces.ObjectPage, error) {
	args := m.Called(ctx, bucket, prefix, marker)
	return args.Get(0).(interfaces.ObjectPage), args.Error(1)
}

func (m *MockObjectStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStore) ObjectSize(ctx context.Context, bucket, key string) (int64, bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockObjectStore) Name() string {
	return "mock"
}

// MockStorageDriver implements interfaces.StorageDriver for testing
type MockStorageDriver struct {
	mock.Mock
}

func (m *MockStorageDriver) GetContent(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageDriver) PutContent(ctx context.Context, path string, content []byte) (string, error) {
	args := m.Called(ctx, path, content)
	return args.String(0), args.Error(1)
}

func (m *MockStorageDriver) Exists(ctx context.Context, path string) bool {
	args := m.Called(ctx, path)
	return args.Bool(0)
}

func (m *MockStorageDriver) Remove(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockStorageDriver) GetSize(ctx context.Context, path string) (int64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorageDriver) ListDirectory(ctx context.Context, path string) iter.Seq2[string, error] {
	args := m.Called(ctx, path)
	return args.Get(0).(iter.Seq2[string, error])
}

func (m *MockStorageDriver) StreamRead(ctx context.Context, path string, byteRange interfaces.ByteRange) (io.ReadCloser, error) {
	args := m.Called(ctx, path, byteRange)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorageDriver) StreamWrite(ctx context.Context, path string, source io.Reader) (int64, error) {
	args := m.Called(ctx, path, source)
	return args.Get(0).(int64), args.Error(1)
}

package storage

import (
	"context"
	"io"
	"time"

	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/ruteri/mos-registry-driver/metrics"
)

// InstrumentedObjectStore records the duration and outcome of every call to
// the wrapped store.
type InstrumentedObjectStore struct {
	next    interfaces.ObjectStore
	metrics *metrics.StoreMetrics
}

func NewInstrumentedObjectStore(next interfaces.ObjectStore, m *metrics.StoreMetrics) *InstrumentedObjectStore {
	return &InstrumentedObjectStore{next: next, metrics: m}
}

func (s *InstrumentedObjectStore) GetObject(ctx context.Context, bucket, key string) (data []byte, err error) {
	defer s.observe("get", time.Now(), &err)
	return s.next.GetObject(ctx, bucket, key)
}

func (s *InstrumentedObjectStore) GetObjectRange(ctx context.Context, bucket, key string, byteRange interfaces.ByteRange) (rc io.ReadCloser, err error) {
	defer s.observe("get_range", time.Now(), &err)
	return s.next.GetObjectRange(ctx, bucket, key, byteRange)
}

func (s *InstrumentedObjectStore) PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker) (err error) {
	defer s.observe("put", time.Now(), &err)
	return s.next.PutObject(ctx, bucket, key, body)
}

func (s *InstrumentedObjectStore) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	defer s.observe("delete", time.Now(), &err)
	return s.next.DeleteObject(ctx, bucket, key)
}

func (s *InstrumentedObjectStore) ListObjects(ctx context.Context, bucket, prefix, marker string) (page interfaces.ObjectPage, err error) {
	defer s.observe("list", time.Now(), &err)
	return s.next.ListObjects(ctx, bucket, prefix, marker)
}

func (s *InstrumentedObjectStore) ObjectExists(ctx context.Context, bucket, key string) (ok bool, err error) {
	defer s.observe("exists", time.Now(), &err)
	return s.next.ObjectExists(ctx, bucket, key)
}

func (s *InstrumentedObjectStore) ObjectSize(ctx context.Context, bucket, key string) (size int64, ok bool, err error) {
	defer s.observe("size", time.Now(), &err)
	return s.next.ObjectSize(ctx, bucket, key)
}

func (s *InstrumentedObjectStore) Name() string {
	return s.next.Name()
}

func (s *InstrumentedObjectStore) observe(op string, start time.Time, err *error) {
	s.metrics.Observe(op, start, *err)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
)

const (
	// existsRetries is the number of retries after the first failed existence check.
	existsRetries = 2

	// DefaultExistsRetryDelay is the pause between existence check attempts.
	DefaultExistsRetryDelay = 100 * time.Millisecond

	stagingPattern = "mos-staging-*"
)

// BlobStoreOptions configures a BlobStore.
type BlobStoreOptions struct {
	Bucket   string
	RootPath string

	// StagingFs holds temporary upload files. Defaults to the OS file system.
	StagingFs afero.Fs
	// StagingDir defaults to the OS temp directory.
	StagingDir string

	ExistsRetryDelay time.Duration
}

// BlobStore implements interfaces.StorageDriver on top of an ObjectStore.
// It holds no state besides its configuration and is safe for concurrent use.
type BlobStore struct {
	store      interfaces.ObjectStore
	bucket     string
	resolver   PathResolver
	stagingFs  afero.Fs
	stagingDir string
	retryDelay time.Duration
	log        *slog.Logger
}

// NewBlobStore creates a blob store addressing opts.Bucket on store.
func NewBlobStore(store interfaces.ObjectStore, opts BlobStoreOptions, log *slog.Logger) *BlobStore {
	stagingFs := opts.StagingFs
	if stagingFs == nil {
		stagingFs = afero.NewOsFs()
	}
	retryDelay := opts.ExistsRetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultExistsRetryDelay
	}

	return &BlobStore{
		store:      store,
		bucket:     opts.Bucket,
		resolver:   NewPathResolver(opts.RootPath),
		stagingFs:  stagingFs,
		stagingDir: opts.StagingDir,
		retryDelay: retryDelay,
		log:        log,
	}
}

// Resolve returns the object key for a logical path.
func (s *BlobStore) Resolve(path string) string {
	return s.resolver.Resolve(path)
}

// Exists checks object presence. Failed checks are retried twice; if every
// attempt fails the object is reported as missing instead of returning an error.
func (s *BlobStore) Exists(ctx context.Context, path string) bool {
	return s.existsKey(ctx, s.resolver.Resolve(path))
}

func (s *BlobStore) existsKey(ctx context.Context, key string) bool {
	var found bool
	attempt := 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), existsRetries), ctx)

	err := backoff.Retry(func() error {
		attempt++
		ok, err := s.store.ObjectExists(ctx, s.bucket, key)
		if err != nil {
			s.log.Debug("Existence check failed",
				slog.String("key", key),
				slog.Int("attempt", attempt),
				"err", err)
			return err
		}
		found = ok
		return nil
	}, policy)
	if err != nil {
		s.log.Warn("Existence check gave up, reporting object as missing",
			slog.String("key", key),
			slog.Int("attempts", attempt),
			"err", err)
		return false
	}

	return found
}

// GetContent fetches the object at path. The existence check and the fetch
// are not atomic; an object deleted in between surfaces as NotFoundError.
func (s *BlobStore) GetContent(ctx context.Context, path string) ([]byte, error) {
	key := s.resolver.Resolve(path)

	if !s.existsKey(ctx, key) {
		return nil, &interfaces.NotFoundError{Op: "get", Path: key}
	}

	data, err := s.store.GetObject(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, &interfaces.NotFoundError{Op: "get", Path: key, Err: err}
		}
		return nil, &interfaces.ConnectionError{Op: "get", Path: key, Err: err}
	}
	return data, nil
}

// PutContent stages content in a private temporary file and uploads it,
// overwriting the object at path. Returns the resolved key.
func (s *BlobStore) PutContent(ctx context.Context, path string, content []byte) (string, error) {
	if path == "" {
		return "", interfaces.ErrInvalidPath
	}
	key := s.resolver.Resolve(path)

	s.log.Debug("Putting content",
		slog.String("key", key),
		slog.Int("size", len(content)))

	if _, err := s.stageAndUpload(ctx, key, func(w io.Writer) (int64, error) {
		n, err := w.Write(content)
		return int64(n), err
	}); err != nil {
		return "", &interfaces.IOError{Op: "put", Path: key, Err: err}
	}
	return key, nil
}

// StreamWrite copies source into a staging file and uploads it as the object at path.
func (s *BlobStore) StreamWrite(ctx context.Context, path string, source io.Reader) (int64, error) {
	if path == "" {
		return 0, interfaces.ErrInvalidPath
	}
	key := s.resolver.Resolve(path)

	n, err := s.stageAndUpload(ctx, key, func(w io.Writer) (int64, error) {
		return io.Copy(w, source)
	})
	if err != nil {
		return 0, &interfaces.IOError{Op: "stream write", Path: key, Err: err}
	}
	return n, nil
}

// stageAndUpload fills a uniquely named temp file through fill, rewinds it and
// uploads it under key. The file is removed on every return path.
func (s *BlobStore) stageAndUpload(ctx context.Context, key string, fill func(io.Writer) (int64, error)) (n int64, err error) {
	f, err := afero.TempFile(s.stagingFs, s.stagingDir, stagingPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		cerr := f.Close()
		if rerr := s.stagingFs.Remove(f.Name()); rerr != nil {
			cerr = multierror.Append(cerr, rerr).ErrorOrNil()
		}
		if cerr == nil {
			return
		}
		if err != nil {
			err = multierror.Append(err, cerr)
			return
		}
		s.log.Warn("Failed to clean up staging file",
			slog.String("file", f.Name()),
			"err", cerr)
	}()

	n, err = fill(f)
	if err != nil {
		return 0, fmt.Errorf("failed to write staging file: %w", err)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to rewind staging file: %w", err)
	}

	if err = s.store.PutObject(ctx, s.bucket, key, f); err != nil {
		return 0, err
	}
	return n, nil
}

// Remove deletes the object at path. Prior existence is never checked: any
// error from the delete call is reported as ConnectionError, and a delete of a
// missing object that the store accepts is a success.
func (s *BlobStore) Remove(ctx context.Context, path string) error {
	if path == "" {
		return interfaces.ErrInvalidPath
	}
	key := s.resolver.Resolve(path)

	if err := s.store.DeleteObject(ctx, s.bucket, key); err != nil {
		return &interfaces.ConnectionError{Op: "remove", Path: key, Err: err}
	}
	return nil
}

// GetSize returns the size of the object at path.
func (s *BlobStore) GetSize(ctx context.Context, path string) (int64, error) {
	key := s.resolver.Resolve(path)
	s.log.Debug("Getting size", slog.String("key", key))

	size, ok, err := s.store.ObjectSize(ctx, s.bucket, key)
	if err != nil {
		return 0, &interfaces.ConnectionError{Op: "size", Path: key, Err: err}
	}
	if !ok {
		return 0, &interfaces.NotFoundError{Op: "size", Path: key}
	}
	return size, nil
}

// ListDirectory lazily yields the keys under path, fetching pages on demand.
// The sequence can be ranged over once; later ranges yield nothing. A listing
// failure is yielded as a ConnectionError and ends the sequence.
func (s *BlobStore) ListDirectory(ctx context.Context, path string) iter.Seq2[string, error] {
	prefix := s.resolver.Resolve(path)
	var consumed atomic.Bool

	return func(yield func(string, error) bool) {
		if consumed.Swap(true) {
			return
		}

		marker := ""
		for {
			page, err := s.store.ListObjects(ctx, s.bucket, prefix, marker)
			if err != nil {
				yield("", &interfaces.ConnectionError{Op: "list", Path: prefix, Err: err})
				return
			}
			for _, key := range page.Keys {
				if !yield(key, nil) {
					return
				}
			}
			if page.NextMarker == "" {
				return
			}
			marker = page.NextMarker
		}
	}
}

// StreamRead opens a reader over byteRange of the object at path. Empty
// ranges are rejected with ErrInvalidRange before the store is called.
func (s *BlobStore) StreamRead(ctx context.Context, path string, byteRange interfaces.ByteRange) (io.ReadCloser, error) {
	if err := byteRange.Validate(); err != nil {
		return nil, err
	}
	key := s.resolver.Resolve(path)

	rc, err := s.store.GetObjectRange(ctx, s.bucket, key, byteRange)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, &interfaces.NotFoundError{Op: "stream read", Path: key, Err: err}
		}
		return nil, &interfaces.ConnectionError{Op: "stream read", Path: key, Err: err}
	}
	return rc, nil
}

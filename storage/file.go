package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/spf13/afero"
)

// filePageSize bounds the number of keys returned per ListObjects page.
const filePageSize = 1000

// FileObjectStore implements interfaces.ObjectStore on a file system.
// Objects are stored as files under <baseDir>/<bucket>/<key>.
type FileObjectStore struct {
	fs      afero.Fs
	baseDir string
	log     *slog.Logger
}

// NewFileObjectStore creates a store rooted at baseDir on fsys, creating the
// directory if it doesn't exist.
func NewFileObjectStore(fsys afero.Fs, baseDir string, log *slog.Logger) (*FileObjectStore, error) {
	if err := fsys.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileObjectStore{
		fs:      fsys,
		baseDir: baseDir,
		log:     log,
	}, nil
}

// GetObject reads an object file.
func (b *FileObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	filePath := b.objectPath(bucket, key)

	data, err := afero.ReadFile(b.fs, filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, filePath)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched object from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// GetObjectRange opens an object file positioned at the range offset.
func (b *FileObjectStore) GetObjectRange(ctx context.Context, bucket, key string, byteRange interfaces.ByteRange) (io.ReadCloser, error) {
	filePath := b.objectPath(bucket, key)

	f, err := b.fs.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, filePath)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	if _, err := f.Seek(byteRange.Offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek file: %w", err)
	}

	if byteRange.Length < 0 {
		return f, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(f, byteRange.Length), f}, nil
}

// PutObject writes body to the object file, replacing it.
func (b *FileObjectStore) PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker) error {
	filePath := b.objectPath(bucket, key)

	if err := b.fs.MkdirAll(path.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := b.fs.OpenFile(filePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	b.log.Debug("Stored object in file",
		slog.String("path", filePath),
		slog.Int64("size", n))

	return nil
}

// DeleteObject removes the object file. Missing files are not an error.
func (b *FileObjectStore) DeleteObject(ctx context.Context, bucket, key string) error {
	err := b.fs.Remove(b.objectPath(bucket, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// ListObjects walks the bucket directory and returns keys with the given
// prefix in lexical order, starting after marker.
func (b *FileObjectStore) ListObjects(ctx context.Context, bucket, prefix, marker string) (interfaces.ObjectPage, error) {
	bucketDir := path.Join(b.baseDir, bucket)

	var keys []string
	err := afero.Walk(b.fs, bucketDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		key := strings.TrimPrefix(p, bucketDir+"/")
		if strings.HasPrefix(key, prefix) && key > marker {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return interfaces.ObjectPage{}, fmt.Errorf("failed to walk bucket directory: %w", err)
	}

	sort.Strings(keys)

	page := interfaces.ObjectPage{Keys: keys}
	if len(keys) > filePageSize {
		page.Keys = keys[:filePageSize]
		page.NextMarker = page.Keys[filePageSize-1]
	}
	return page, nil
}

// ObjectExists checks whether the object file exists.
func (b *FileObjectStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	info, err := b.fs.Stat(b.objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return !info.IsDir(), nil
}

// ObjectSize returns the object file size.
func (b *FileObjectStore) ObjectSize(ctx context.Context, bucket, key string) (int64, bool, error) {
	info, err := b.fs.Stat(b.objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return 0, false, nil
	}
	return info.Size(), true, nil
}

// Name returns a unique identifier for this object store.
func (b *FileObjectStore) Name() string {
	return fmt.Sprintf("file-%s", path.Base(b.baseDir))
}

func (b *FileObjectStore) objectPath(bucket, key string) string {
	return path.Join(b.baseDir, bucket, key)
}

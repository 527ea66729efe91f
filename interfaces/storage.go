package interfaces

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("object not found")

	// ErrConnection is matched by every ConnectionError.
	// It covers transport and backend failures of remote calls.
	ErrConnection = errors.New("object store communication failed")

	// ErrIO is matched by every IOError.
	ErrIO = errors.New("object store i/o failed")

	// ErrInvalidPath is returned when a write or delete receives an empty path.
	ErrInvalidPath = errors.New("invalid blob path")

	// ErrInvalidRange is returned when a stream read asks for an empty or negative range.
	ErrInvalidRange = errors.New("invalid byte range")

	// ErrInvalidConfig is returned when driver configuration is malformed.
	ErrInvalidConfig = errors.New("invalid driver configuration")

	// ErrInvalidLocationURI is returned when an object store location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[/path][?params]
	ErrInvalidLocationURI = errors.New("invalid object store location URI")
)

// NotFoundError reports that no object exists at a resolved key.
type NotFoundError struct {
	Op   string
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: not found: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: not found", e.Op, e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConnectionError reports a failed remote call. Err holds the client error.
type ConnectionError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: communication with object store failed: %v", e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// IOError reports a failed local staging step or a failed upload.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: could not put path: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// ByteRange selects part of an object. A negative Length reads to the end.
type ByteRange struct {
	Offset int64
	Length int64
}

// Validate rejects negative offsets and zero-length ranges.
func (r ByteRange) Validate() error {
	if r.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidRange, r.Offset)
	}
	if r.Length == 0 {
		return fmt.Errorf("%w: zero length at offset %d", ErrInvalidRange, r.Offset)
	}
	return nil
}

// Header renders the range as an HTTP Range header value. A range reaching
// past the largest representable offset is rendered open ended.
func (r ByteRange) Header() string {
	if r.Length < 0 || r.Length > math.MaxInt64-r.Offset {
		return fmt.Sprintf("bytes=%d-", r.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
}

// WholeObject is the range covering an entire object.
var WholeObject = ByteRange{Offset: 0, Length: -1}

// StorageDriver is the blob storage capability consumed by the registry.
// Paths are logical, slash-delimited paths; implementations map them onto
// backend object keys.
type StorageDriver interface {
	// GetContent returns the full content stored at path.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent stores content at path, overwriting any previous object,
	// and returns the resolved object key.
	PutContent(ctx context.Context, path string, content []byte) (string, error)

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) bool

	// Remove deletes the object at path.
	Remove(ctx context.Context, path string) error

	// GetSize returns the size in bytes of the object at path.
	GetSize(ctx context.Context, path string) (int64, error)

	// ListDirectory lazily yields the object keys under path.
	ListDirectory(ctx context.Context, path string) iter.Seq2[string, error]

	// StreamRead opens a reader over a range of the object at path.
	StreamRead(ctx context.Context, path string, byteRange ByteRange) (io.ReadCloser, error)

	// StreamWrite stores everything read from source at path and returns the byte count.
	StreamWrite(ctx context.Context, path string, source io.Reader) (int64, error)
}

// ObjectPage is one page of a listing.
type ObjectPage struct {
	Keys []string

	// NextMarker is empty when the listing is complete.
	NextMarker string
}

// ObjectStore is the remote object storage service, addressed by (bucket, key).
type ObjectStore interface {
	// GetObject returns the object content. Missing objects yield an error matching ErrNotFound.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// GetObjectRange opens a reader over part of an object.
	GetObjectRange(ctx context.Context, bucket, key string, byteRange ByteRange) (io.ReadCloser, error)

	// PutObject uploads body as the object content.
	PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker) error

	// DeleteObject removes an object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, key string) error

	// ListObjects returns the page of keys starting after marker.
	ListObjects(ctx context.Context, bucket, prefix, marker string) (ObjectPage, error)

	// ObjectExists reports object presence.
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)

	// ObjectSize returns the object size; ok is false when the store reports no size.
	ObjectSize(ctx context.Context, bucket, key string) (size int64, ok bool, err error)

	// Name returns identifier for logging.
	Name() string
}

// ObjectStoreFactory creates object stores from location URIs.
type ObjectStoreFactory interface {
	// ObjectStoreFor creates a store from a location.
	// Supports s3:// and file://
	ObjectStoreFor(location ObjectStoreLocation) (ObjectStore, error)
}

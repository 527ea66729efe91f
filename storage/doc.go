// Package storage implements the container registry storage driver on top of
// bucket-addressed object storage.
//
// The driver is layered:
//
//   - ObjectStore implementations talk to one backend. S3ObjectStore serves
//     MOS and any other S3-compatible service; FileObjectStore keeps objects
//     under a local directory for development and tests.
//   - BlobStore maps logical registry paths onto object keys below a root
//     prefix and implements interfaces.StorageDriver with the driver's error
//     taxonomy, retrying existence checks and staging uploads in private
//     temporary files.
//   - CacheLayer fronts any StorageDriver with a fixed-capacity LRU content
//     cache (and an optional TTL cache of object sizes). Writes and removals
//     reach the wrapped driver first; the cache only changes once they succeed.
//
// # Path Resolution
//
// A root of "/docker" and a logical path "images/abc/json" resolve to the key
// "docker/images/abc/json". One leading and one trailing slash are stripped
// from the joined key; nothing else is normalized.
//
// # Location URI Format
//
// ObjectStoreFactory creates stores from location URIs:
//
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket[/root/path][?host=...&secure=true&region=...]
//	file:///base/dir[?bucket=registry&root=/]
//
// # Error Handling
//
//   - A missing object is reported as interfaces.NotFoundError
//   - A failed fetch, size query, listing or delete is interfaces.ConnectionError
//   - A failed staging step or upload is interfaces.IOError
//   - Exists never fails; after three failed checks it reports false
//
// # Concurrency
//
// All types are safe for concurrent use. Concurrent cache misses for the same
// key share one backend fetch, which no single caller's cancellation can abort;
// a fetch that started before a write to the same key never overwrites the
// cached result of that write.
package storage

// Package interfaces defines the contracts shared by the registry storage
// driver packages, separating interface definitions from their
// implementations.
//
// # Storage Interfaces
//
// StorageDriver: The capability a container image registry consumes. Logical
// slash-delimited paths are mapped onto object keys below a root prefix; all
// content is opaque bytes.
//
// ObjectStore: One bucket-addressed object storage backend (MOS or any other
// S3-compatible service, or a local directory for development).
//
// ObjectStoreFactory: Creates object stores from location URIs.
//
// # Errors
//
// Every failure reported through StorageDriver is one of NotFoundError,
// ConnectionError or IOError. Each matches its sentinel (ErrNotFound,
// ErrConnection, ErrIO) with errors.Is and unwraps to the client error that
// caused it.
package interfaces

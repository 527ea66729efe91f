package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/spf13/afero"
)

// ObjectStoreFactory creates object stores from location URIs.
type ObjectStoreFactory struct {
	log *slog.Logger
	fs  afero.Fs
}

// NewObjectStoreFactory creates a new factory instance. File locations are
// opened on fsys; nil means the OS file system.
func NewObjectStoreFactory(logger *slog.Logger, fsys afero.Fs) *ObjectStoreFactory {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &ObjectStoreFactory{
		log: logger,
		fs:  fsys,
	}
}

// ObjectStoreFor creates an object store from a location.
//
// Supported schemes:
//   - s3:// - MOS or any S3-compatible object storage
//   - file:// - Local filesystem storage for development
func (sf *ObjectStoreFactory) ObjectStoreFor(location interfaces.ObjectStoreLocation) (interfaces.ObjectStore, error) {
	switch {
	case location.IsS3():
		return sf.createS3ObjectStore(location)
	case location.IsFile():
		return sf.createFileObjectStore(location)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// createS3ObjectStore creates an S3-compatible object store.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket/root/?host=s3-hd1.hwclouds.com&secure=true&region=us-east-1
func (sf *ObjectStoreFactory) createS3ObjectStore(location interfaces.ObjectStoreLocation) (interfaces.ObjectStore, error) {
	sf.log.Debug("Creating S3 object store", slog.String("uri", location.String()))

	if location.Username != "" {
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, bucket assumed to be public, write operations may fail")
	}

	return NewS3ObjectStore(S3Options{
		AccessKeyID:     location.Username,
		SecretAccessKey: location.Password,
		Host:            location.GetParam("host"),
		Region:          location.GetParam("region"),
		Secure:          location.GetParamBool("secure"),
	}, sf.log)
}

// createFileObjectStore creates a file system object store.
// URI format: file:///absolute/path/?bucket=registry or file://./relative/path/
func (sf *ObjectStoreFactory) createFileObjectStore(location interfaces.ObjectStoreLocation) (interfaces.ObjectStore, error) {
	sf.log.Debug("Creating file object store", slog.String("uri", location.String()))

	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, location.String())
	}

	return NewFileObjectStore(sf.fs, path, sf.log)
}

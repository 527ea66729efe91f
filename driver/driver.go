// Package driver wires configuration into a ready-to-use registry storage
// driver: an object store client, the blob store on top of it and the LRU
// cache layer in front.
package driver

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/mos-registry-driver/common"
	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/ruteri/mos-registry-driver/metrics"
	"github.com/ruteri/mos-registry-driver/storage"
	"github.com/spf13/afero"
)

// Option customizes New.
type Option func(*options)

type options struct {
	log        *slog.Logger
	store      interfaces.ObjectStore
	registerer prometheus.Registerer
	stagingFs  afero.Fs
	fs         afero.Fs
}

// WithLogger injects a logger; the config's logging options are then ignored.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithObjectStore replaces the object store built from the config.
func WithObjectStore(store interfaces.ObjectStore) Option {
	return func(o *options) { o.store = store }
}

// WithRegisterer registers the driver metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithStagingFs sets the file system used for upload staging files.
func WithStagingFs(fsys afero.Fs) Option {
	return func(o *options) { o.stagingFs = fsys }
}

// WithFs sets the file system used by file:// locations.
func WithFs(fsys afero.Fs) Option {
	return func(o *options) { o.fs = fsys }
}

// Driver is the registry-facing storage capability. All calls go through
// the cache layer.
type Driver struct {
	interfaces.StorageDriver

	cfg       Config
	bucket    string
	rootPath  string
	store     interfaces.ObjectStore
	blobs     *storage.BlobStore
	cache     *storage.CacheLayer
	log       *slog.Logger
	logCloser io.Closer
}

// New validates cfg and builds a Driver. Configuration problems fail here
// rather than on first use.
func New(cfg Config, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	d := &Driver{cfg: cfg}
	d.log = o.log
	if d.log == nil {
		d.log, d.logCloser = common.SetupLogger(&cfg.Logging)
	}

	// Collectors are registered only once every fallible step succeeded, so a
	// failed New leaves the registerer untouched.
	var m *metrics.Metrics
	if o.registerer != nil {
		m = metrics.NewMetrics(common.PackageName)
	}

	store, err := d.buildObjectStore(o)
	if err != nil {
		d.closeLog()
		return nil, err
	}
	if m != nil {
		store = storage.NewInstrumentedObjectStore(store, m.Store)
	}
	d.store = store

	d.blobs = storage.NewBlobStore(store, storage.BlobStoreOptions{
		Bucket:           d.bucket,
		RootPath:         d.rootPath,
		StagingFs:        o.stagingFs,
		StagingDir:       cfg.StagingDir,
		ExistsRetryDelay: cfg.ExistsRetryDelay,
	}, d.log)

	cacheOpts := storage.CacheOptions{
		Capacity: cfg.CacheCapacity,
		SizeTTL:  cfg.SizeCacheTTL,
	}
	if m != nil {
		cacheOpts.Metrics = m.Cache
	}
	d.cache, err = storage.NewCacheLayer(d.blobs, d.blobs, cacheOpts, d.log)
	if err != nil {
		d.closeLog()
		return nil, err
	}
	d.StorageDriver = d.cache

	if m != nil {
		if err := m.RegisterMetrics(o.registerer); err != nil {
			d.cache.Close()
			d.closeLog()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	d.log.Info("Storage driver ready",
		slog.String("store", store.Name()),
		slog.String("bucket", d.bucket),
		slog.String("root", storage.NewPathResolver(d.rootPath).Root()),
		slog.Bool("secure", cfg.Secure),
		slog.Int("cache_capacity", cfg.CacheCapacity))

	return d, nil
}

func (d *Driver) buildObjectStore(o *options) (interfaces.ObjectStore, error) {
	if d.cfg.Location != "" {
		location, err := interfaces.NewObjectStoreLocation(d.cfg.Location)
		if err != nil {
			return nil, err
		}
		d.bucket = location.Bucket()
		d.rootPath = location.RootPath()
		if o.store != nil {
			return o.store, nil
		}
		return storage.NewObjectStoreFactory(d.log, o.fs).ObjectStoreFor(location)
	}

	d.bucket = d.cfg.Bucket
	d.rootPath = d.cfg.RootPath
	if o.store != nil {
		return o.store, nil
	}
	return storage.NewS3ObjectStore(storage.S3Options{
		AccessKeyID:     d.cfg.AccessKeyID,
		SecretAccessKey: d.cfg.SecretAccessKey,
		Host:            d.cfg.Host,
		Region:          d.cfg.Region,
		Secure:          d.cfg.Secure,
	}, d.log)
}

// Bucket returns the bucket the driver writes to.
func (d *Driver) Bucket() string {
	return d.bucket
}

// Resolve returns the object key for a logical path.
func (d *Driver) Resolve(path string) string {
	return d.blobs.Resolve(path)
}

// Log returns the driver's logger.
func (d *Driver) Log() *slog.Logger {
	return d.log
}

// Close releases the cache and the log file, if the driver opened one.
func (d *Driver) Close() error {
	d.cache.Close()
	if err := d.closeLog(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func (d *Driver) closeLog() error {
	if d.logCloser == nil {
		return nil
	}
	return d.logCloser.Close()
}

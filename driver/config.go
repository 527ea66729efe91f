package driver

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ruteri/mos-registry-driver/common"
	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/ruteri/mos-registry-driver/storage"
)

// Config holds everything needed to build a Driver. It is copied by New and
// never changed afterwards.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Secure          bool
	Host            string
	Region          string
	Bucket          string
	RootPath        string

	// Location overrides the fields above when set; see interfaces.NewObjectStoreLocation.
	Location string

	CacheCapacity    int
	SizeCacheTTL     time.Duration
	StagingDir       string
	ExistsRetryDelay time.Duration

	Logging common.LoggingOpts
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() Config {
	return Config{
		Host:             storage.DefaultHost,
		Region:           storage.DefaultRegion,
		RootPath:         "/",
		CacheCapacity:    storage.DefaultCacheCapacity,
		SizeCacheTTL:     storage.DefaultSizeCacheTTL,
		ExistsRetryDelay: storage.DefaultExistsRetryDelay,
		Logging: common.LoggingOpts{
			Service: "mos-registry-driver",
			Version: common.Version,
		},
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var err *multierror.Error

	if c.Location != "" {
		if _, lerr := interfaces.NewObjectStoreLocation(c.Location); lerr != nil {
			err = multierror.Append(err, lerr)
		}
	} else {
		if c.Bucket == "" {
			err = multierror.Append(err, fmt.Errorf("bucket has to be defined"))
		}
		if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
			err = multierror.Append(err, fmt.Errorf("access key id and secret access key must be set together"))
		}
	}
	if c.CacheCapacity <= 0 {
		err = multierror.Append(err, fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity))
	}
	if c.SizeCacheTTL < 0 {
		err = multierror.Append(err, fmt.Errorf("size cache ttl must not be negative, got %s", c.SizeCacheTTL))
	}
	if c.ExistsRetryDelay < 0 {
		err = multierror.Append(err, fmt.Errorf("exists retry delay must not be negative, got %s", c.ExistsRetryDelay))
	}

	if err.ErrorOrNil() != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}
	return nil
}

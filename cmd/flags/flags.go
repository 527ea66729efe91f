package flags

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/mos-registry-driver/common"
	"github.com/ruteri/mos-registry-driver/driver"
	"github.com/ruteri/mos-registry-driver/httpserver"
	"github.com/ruteri/mos-registry-driver/storage"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the process logger from the logging flags. The returned
// closer releases the log file, if one was requested.
func SetupLogger(cCtx *cli.Context) (*slog.Logger, io.Closer) {
	logger, closer := common.SetupLogger(LoggingOpts(cCtx))

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger, closer
}

func LoggingOpts(cCtx *cli.Context) *common.LoggingOpts {
	return &common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
		File:    cCtx.String(LogFileFlag.Name),
	}
}

// DriverConfig maps the driver flags onto a driver.Config.
func DriverConfig(cCtx *cli.Context) driver.Config {
	cfg := driver.DefaultConfig()

	cfg.AccessKeyID = cCtx.String(AccessKeyIDFlag.Name)
	cfg.SecretAccessKey = cCtx.String(SecretAccessKeyFlag.Name)
	cfg.Host = cCtx.String(HostFlag.Name)
	cfg.Region = cCtx.String(RegionFlag.Name)
	cfg.Secure = cCtx.Bool(SecureFlag.Name)
	cfg.Bucket = cCtx.String(BucketFlag.Name)
	cfg.RootPath = cCtx.String(RootPathFlag.Name)
	cfg.Location = cCtx.String(LocationFlag.Name)
	cfg.CacheCapacity = cCtx.Int(CacheSizeFlag.Name)
	cfg.SizeCacheTTL = cCtx.Duration(SizeCacheTTLFlag.Name)
	cfg.StagingDir = cCtx.String(StagingDirFlag.Name)
	cfg.Logging = *LoggingOpts(cCtx)

	return cfg
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             5 * time.Minute,
	}
}

var AccessKeyIDFlag = &cli.StringFlag{
	Name:    "access-key-id",
	EnvVars: []string{"MOS_ACCESS_KEY_ID"},
	Usage:   "object storage access key id; anonymous access if empty",
}
var SecretAccessKeyFlag = &cli.StringFlag{
	Name:    "secret-access-key",
	EnvVars: []string{"MOS_SECRET_ACCESS_KEY"},
	Usage:   "object storage secret access key",
}
var HostFlag = &cli.StringFlag{
	Name:    "host",
	Value:   storage.DefaultHost,
	EnvVars: []string{"MOS_HOST"},
	Usage:   "object storage endpoint host[:port]",
}
var RegionFlag = &cli.StringFlag{
	Name:    "region",
	Value:   storage.DefaultRegion,
	EnvVars: []string{"MOS_REGION"},
	Usage:   "region used for request signing",
}
var SecureFlag = &cli.BoolFlag{
	Name:    "secure",
	EnvVars: []string{"MOS_SECURE"},
	Usage:   "use https to reach the object storage endpoint",
}
var BucketFlag = &cli.StringFlag{
	Name:    "bucket",
	EnvVars: []string{"MOS_BUCKET"},
	Usage:   "bucket holding registry data",
}
var RootPathFlag = &cli.StringFlag{
	Name:    "root-path",
	Value:   "/",
	EnvVars: []string{"MOS_ROOT_PATH"},
	Usage:   "key prefix under which all registry paths are stored",
}
var LocationFlag = &cli.StringFlag{
	Name:    "location",
	EnvVars: []string{"MOS_LOCATION"},
	Usage:   "object store URI (s3://[ak:sk@]bucket/root?host=..&secure=true or file:///dir?bucket=..), overrides the flags above",
}
var CacheSizeFlag = &cli.IntFlag{
	Name:    "cache-size",
	Value:   storage.DefaultCacheCapacity,
	EnvVars: []string{"MOS_CACHE_SIZE"},
	Usage:   "number of blobs kept in the in-memory LRU cache",
}
var SizeCacheTTLFlag = &cli.DurationFlag{
	Name:    "size-cache-ttl",
	Value:   storage.DefaultSizeCacheTTL,
	EnvVars: []string{"MOS_SIZE_CACHE_TTL"},
	Usage:   "how long object sizes reported by the store are reused; 0 disables",
}
var StagingDirFlag = &cli.StringFlag{
	Name:    "staging-dir",
	EnvVars: []string{"MOS_STAGING_DIR"},
	Usage:   "directory for temporary upload files; system temp dir if empty",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "mos-registry-driver",
	Usage: "add 'service' tag to logs",
}
var LogFileFlag = &cli.StringFlag{
	Name:  "log-file",
	Usage: "also write JSON logs to this file, rotated at 30MB",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var DriverFlags = []cli.Flag{
	AccessKeyIDFlag,
	SecretAccessKeyFlag,
	HostFlag,
	RegionFlag,
	SecureFlag,
	BucketFlag,
	RootPathFlag,
	LocationFlag,
	CacheSizeFlag,
	SizeCacheTTLFlag,
	StagingDirFlag,
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	LogFileFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

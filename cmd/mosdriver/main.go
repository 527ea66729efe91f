package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/mos-registry-driver/cmd/flags"
	"github.com/ruteri/mos-registry-driver/common"
	"github.com/ruteri/mos-registry-driver/driver"
	"github.com/ruteri/mos-registry-driver/httpserver"
	"github.com/ruteri/mos-registry-driver/metrics"
	"github.com/urfave/cli/v2"
)

var errMissingPath = errors.New("missing <path> argument")

func main() {
	app := &cli.App{
		Name:    "mosdriver",
		Usage:   "Container registry storage on MOS / S3-compatible object storage",
		Version: common.Version,
		Flags:   append(append([]cli.Flag{}, flags.DriverFlags...), flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the blob HTTP API and metrics",
				Flags:  flags.ServerFlags,
				Action: runServe,
			},
			{
				Name:      "get",
				Usage:     "write the content at path to stdout",
				ArgsUsage: "<path>",
				Action:    withDriver(runGet),
			},
			{
				Name:      "put",
				Usage:     "store a file (or stdin) at path",
				ArgsUsage: "<path> [file]",
				Action:    withDriver(runPut),
			},
			{
				Name:      "ls",
				Usage:     "list object keys under path",
				ArgsUsage: "<path>",
				Action:    withDriver(runList),
			},
			{
				Name:      "rm",
				Usage:     "remove the object at path",
				ArgsUsage: "<path>",
				Action:    withDriver(runRemove),
			},
			{
				Name:      "stat",
				Usage:     "report whether path exists and its size",
				ArgsUsage: "<path>",
				Action:    withDriver(runStat),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServe(cCtx *cli.Context) error {
	logger, logCloser := flags.SetupLogger(cCtx)
	defer logCloser.Close()

	cfg := flags.ConfigureServer(cCtx, logger)

	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}

	d, err := driver.New(flags.DriverConfig(cCtx),
		driver.WithLogger(logger),
		driver.WithRegisterer(metricsSrv.Registry()))
	if err != nil {
		logger.Error("Failed to create storage driver", "err", err)
		return err
	}
	defer d.Close()

	server := httpserver.New(cfg, httpserver.NewHandler(d, logger), metricsSrv)
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// withDriver builds a driver from the global flags for a one-shot command
// and hands it the <path> argument.
func withDriver(fn func(cCtx *cli.Context, d *driver.Driver, path string) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		path := cCtx.Args().First()
		if path == "" {
			return errMissingPath
		}

		logger, logCloser := flags.SetupLogger(cCtx)
		defer logCloser.Close()

		d, err := driver.New(flags.DriverConfig(cCtx), driver.WithLogger(logger))
		if err != nil {
			return err
		}
		defer d.Close()

		return fn(cCtx, d, path)
	}
}

func runGet(cCtx *cli.Context, d *driver.Driver, path string) error {
	data, err := d.GetContent(cCtx.Context, path)
	if err != nil {
		return err
	}
	_, err = cCtx.App.Writer.Write(data)
	return err
}

func runPut(cCtx *cli.Context, d *driver.Driver, path string) error {
	var source io.Reader = os.Stdin
	if file := cCtx.Args().Get(1); file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		source = f
	}

	n, err := d.StreamWrite(cCtx.Context, path, source)
	if err != nil {
		return err
	}
	d.Log().Info("Stored object", slog.String("key", d.Resolve(path)), slog.Int64("size", n))
	return nil
}

func runList(cCtx *cli.Context, d *driver.Driver, path string) error {
	for key, err := range d.ListDirectory(cCtx.Context, path) {
		if err != nil {
			return err
		}
		fmt.Fprintln(cCtx.App.Writer, key)
	}
	return nil
}

func runRemove(cCtx *cli.Context, d *driver.Driver, path string) error {
	return d.Remove(cCtx.Context, path)
}

func runStat(cCtx *cli.Context, d *driver.Driver, path string) error {
	if !d.Exists(cCtx.Context, path) {
		return cli.Exit(fmt.Sprintf("%s: not found", d.Resolve(path)), 1)
	}
	size, err := d.GetSize(cCtx.Context, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "%s\t%d\n", d.Resolve(path), size)
	return nil
}

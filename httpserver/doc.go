/*
Package httpserver exposes the registry storage driver over HTTP.

It is an operational surface: it lets operators inspect and repair the bucket
behind a registry through the same driver (and cache) the registry uses.
Paths in URLs are the driver's logical paths; they are resolved under the
configured root before reaching the object store.

# Blob Endpoints

  - GET /blobs/{path} - Fetch content (404 if missing)
  - HEAD /blobs/{path} - Existence and Content-Length
  - PUT /blobs/{path} - Store the request body, replacing any previous content
  - DELETE /blobs/{path} - Remove the object; missing objects are not an error
  - GET /stream/{path}?offset=&length= - Ranged read
  - PUT /stream/{path} - Store an arbitrarily large body without buffering it
  - GET /list/{path} - JSON array of object keys under the path

Driver errors map onto status codes: not found 404, invalid path 400,
object store communication failure 502, any other failure 500.

# Operational Endpoints

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready
  - /debug/pprof/* - when EnablePprof is set

# Example Usage

	metricsSrv, err := metrics.New(common.PackageName, ":9090")
	if err != nil {
		return err
	}

	d, err := driver.New(cfg, driver.WithLogger(logger), driver.WithRegisterer(metricsSrv.Registry()))
	if err != nil {
		return err
	}
	defer d.Close()

	server := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
	}, httpserver.NewHandler(d, logger), metricsSrv)

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver

// Package main (cmd/mosdriver) is the command line front end of the registry
// storage driver.
//
// The serve subcommand runs the HTTP surface described in package httpserver
// together with the Prometheus metrics server. The remaining subcommands run a
// single driver operation against the configured bucket, which is handy for
// inspecting or repairing registry data by hand:
//
//	mosdriver get <path>            write content to stdout
//	mosdriver put <path> [file]     upload a file, or stdin when omitted
//	mosdriver ls <path>             list object keys under path
//	mosdriver rm <path>             remove an object
//	mosdriver stat <path>           report existence and size
//
// Connection settings come from flags or their MOS_* environment variables.
// A --location URI replaces the individual flags:
//
//	export MOS_ACCESS_KEY_ID=... MOS_SECRET_ACCESS_KEY=...
//	mosdriver --bucket=registry --root-path=/docker --secure serve \
//	    --listen-addr=0.0.0.0:8080 --metrics-addr=0.0.0.0:8090
//
//	mosdriver --location='file:///var/lib/registry?bucket=dev' ls repositories
package main

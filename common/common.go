// Package common holds process-level helpers shared by the commands.
package common

// PackageName is used as the metrics namespace.
const PackageName = "mos_registry_driver"

// Version is set at build time with -ldflags "-X github.com/ruteri/mos-registry-driver/common.Version=..."
var Version = "dev"

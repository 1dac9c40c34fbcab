// Package version holds the build version, overridable at link time.
package version

// Version is set via -ldflags "-X .../internal/version.Version=v1.2.3"
var Version = "dev"

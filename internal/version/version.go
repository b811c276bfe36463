// Package version exposes the build version of the binary.
package version

// Version is set during compile time via -ldflags. It holds the
// release the binary was cut from, or "dev" for local builds.
var Version = "dev"

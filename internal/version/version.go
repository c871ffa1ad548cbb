// Package version holds cosmic-connectd's build version, overridable at
// build time via -ldflags "-X .../internal/version.Version=...".
package version

// Version is the daemon and CLI's release version.
var Version = "dev"

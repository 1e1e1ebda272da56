package util

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/f5xc-exporter/pkg/util.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// UserAgent is sent with every upstream API request.
func UserAgent() string {
	return "f5xc-prom-exporter/" + Version
}

// VersionString is the one-line output of the version command.
func VersionString() string {
	return fmt.Sprintf("f5xc-exporter %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

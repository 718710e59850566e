package main

import (
	"fmt"
	"os"

	"github.com/darshan-rambhia/netutil/cmd/netutil/app"
)

// Version information set by build-time LDFLAGS
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	app.SetVersionInfo(Version, BuildTime, GoVersion)

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

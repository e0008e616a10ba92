package main

import (
	"os"

	"github.com/berrythewa/xclipper/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
	commit    = "none"
)

func main() {
	cli.SetVersionInfo(version, buildTime, commit)
	os.Exit(cli.Execute())
}

// Package cli is the thin shell around the command tree in cli/cmd.
package cli

import "github.com/berrythewa/xclipper/internal/cli/cmd"

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return cmd.Execute()
}

// SetVersionInfo passes build-time version information down to the command
// tree.
func SetVersionInfo(version, buildTime, commit string) {
	cmd.SetVersionInfo(version, buildTime, commit)
}

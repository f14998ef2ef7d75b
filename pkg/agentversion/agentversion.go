package agentversion

import "fmt"

// Set at build time via -ldflags.
var (
	version   string
	commit    string
	buildTime string
)

// Version returns the agent version string.
func Version() string {
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("version: %s, commit: %s, built: %s", version, commit, buildTime)
}

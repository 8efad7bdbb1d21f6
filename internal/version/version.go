// Package version holds build information set through -ldflags.
package version

var (
	// Version is the release version.
	Version = "dev"
	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// AgentCardVersion is the version advertised in served agent cards.
const AgentCardVersion = "0.1.0"

package common

// Version is set at build time via -ldflags.
var Version = "dev"

// GetVersion returns the application version string
func GetVersion() string {
	return Version
}

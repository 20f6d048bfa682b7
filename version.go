package livesync

import "runtime"

// Version is the current version of the live-sync library.
const Version = "v0.3.0"

// VersionInfo provides version information.
type VersionInfo struct {
	Version   string
	GoVersion string
}

// GetVersionInfo returns the current version information.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
	}
}

package version

import (
	"runtime/debug"
)

// Version can be set via:
// -ldflags="-X 'github.com/arcwatch/attribution-hub/pkg/version.Version=$TAG'"
var Version string

// CommitSHA can be set via:
// -ldflags="-X 'github.com/arcwatch/attribution-hub/pkg/version.CommitSHA=$SHA'"
var CommitSHA string

func init() {
	if Version == "" {
		i, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		Version = i.Main.Version
	}
}

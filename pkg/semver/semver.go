// Package semver gates optional subsystems on the artifact store's reported
// server version.
package semver

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MeetsMinimum reports whether version satisfies minimum. Both arguments must
// parse as semantic versions; a leading "v" and a missing patch segment are
// tolerated.
func MeetsMinimum(version, minimum string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid server version %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return false, fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}
	return constraint.Check(v), nil
}

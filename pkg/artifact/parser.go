// Package artifact parses deployed-artifact keys and maintains the
// per-repository artifact listing caches queried from the artifact store.
package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedKey is returned for artifact keys with fewer than two segments.
var ErrMalformedKey = errors.New("malformed artifact key")

// Key is a parsed artifact key: the repository prefix, the path between the
// prefix and the file name, and the file name itself.
type Key struct {
	Repo string
	Path string
	Name string
}

// ParseKey splits a vendor artifact key such as
// "repo-local/staging/service/<hash>/manifest.json" on "/". The first segment
// is the repository prefix, the last is the file name, the middle is the path.
func ParseKey(raw string) (Key, error) {
	parts := strings.Split(raw, "/")
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, raw)
	}
	return Key{
		Repo: parts[0],
		Path: strings.Join(parts[1:len(parts)-1], "/"),
		Name: parts[len(parts)-1],
	}, nil
}

// IsLocalRepo reports whether a repository name denotes a local repository,
// the only kind eligible for vulnerability attribution. A repository is local
// iff the substring after the last "-" contains "local"; remote and virtual
// mirrors are excluded so mirrored artifacts are not double counted.
func IsLocalRepo(name string) bool {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return false
	}
	return strings.Contains(name[idx+1:], "local")
}

package artifact

import "strings"

// Property keys carried on artifact records by the CI pipeline.
const (
	propBuildName      = "build.name"
	propBuildNumber    = "build.number"
	propBuildTimestamp = "build.timestamp"
	propSHA256         = "sha256"
)

// Record is one artifact row of a repository listing.
type Record struct {
	Repo       string     `json:"repo"`
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties,omitempty"`
}

// Property is a key/value pair attached to an artifact record.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Pair identifies an artifact within a repository by path and file name.
// It is the dedup key of the listing cache.
type Pair struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// BuildInfo is the build identity extracted from a record's properties.
// Fields are empty when the corresponding property is absent.
type BuildInfo struct {
	BuildName      string
	BuildNumber    string
	BuildTimestamp string
	SHA256         string
}

// Property returns the first value stored under key.
func (r *Record) Property(key string) (string, bool) {
	for _, p := range r.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// BuildInfo extracts the build identity from the record's properties. A
// compound "Namespace/service/tool" build.name collapses to its second
// segment; a bare name is used as-is.
func (r *Record) BuildInfo() BuildInfo {
	info := BuildInfo{}
	if v, ok := r.Property(propBuildName); ok {
		info.BuildName = normalizeBuildName(v)
	}
	if v, ok := r.Property(propBuildNumber); ok {
		info.BuildNumber = v
	}
	if v, ok := r.Property(propBuildTimestamp); ok {
		info.BuildTimestamp = v
	}
	if v, ok := r.Property(propSHA256); ok {
		info.SHA256 = v
	}
	return info
}

// normalizeBuildName collapses compound build.name values to their second
// segment.
func normalizeBuildName(value string) string {
	if !strings.Contains(value, "/") {
		return value
	}
	parts := strings.Split(value, "/")
	if len(parts) < 2 {
		return value
	}
	return parts[1]
}

package version

import (
	"fmt"
)

// Release types a workflow or an assessment may declare. The pre*
// forms come from the workflow specification; the *Revision forms from
// a completed AssessAction.
const (
	PreMajor = "premajor"
	PreMinor = "preminor"
	PrePatch = "prepatch"

	MajorRevision = "MajorRevision"
	MinorRevision = "MinorRevision"
	PatchRevision = "PatchRevision"
)

// Version is the four-component release version
// {major}.{minor}.{patch}-{revision}.
type Version struct {
	Major, Minor, Patch, Revision int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d-%d", v.Major, v.Minor, v.Patch, v.Revision)
}

// Zero is the version of the first release on a fresh Graph: 0.0.0-0.
func Zero() Version { return Version{} }

// Parse reads a version string produced by String.
func Parse(s string) (Version, error) {
	var v Version
	if _, err := fmt.Sscanf(s, "%d.%d.%d-%d", &v.Major, &v.Minor, &v.Patch, &v.Revision); err != nil {
		return v, fmt.Errorf("invalid release version %q: %w", s, err)
	}
	return v, nil
}

// Less orders versions component-wise.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	if v.Patch != o.Patch {
		return v.Patch < o.Patch
	}
	return v.Revision < o.Revision
}

// Bump advances v according to the declared release type. An unknown
// or empty release type advances only the revision component.
func Bump(v Version, releaseType string) Version {
	switch releaseType {
	case PreMajor, MajorRevision:
		return Version{Major: v.Major + 1}
	case PreMinor, MinorRevision:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	case PrePatch, PatchRevision:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch, Revision: v.Revision + 1}
	}
}

// ReleaseKey is the pinned-version document id for a release.
func ReleaseKey(graphID string, v Version) string {
	return fmt.Sprintf("%s?version=%s", graphID, v)
}

// LatestKey is the distinct id the latest release is reachable under.
func LatestKey(graphID string) string {
	return graphID + "?version=latest"
}

// NextCounter advances a Graph's release-worthy event counter. The
// draft itself starts at 1; the counter moves whenever a release is
// cut from it.
func NextCounter(current int) int {
	if current < 1 {
		return 1
	}
	return current + 1
}

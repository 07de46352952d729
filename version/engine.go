package version

import (
	"fmt"
	"strings"

	"github.com/apparentlymart/go-versions/versions"
)

// devEngineVersion is advertised when the build carries no semver.
var devEngineVersion = versions.MustParseVersion("0.0.0-dev")

// EngineVersion returns the engine version as a semantic version. Builds
// without a parseable Version report 0.0.0-dev.
func EngineVersion() versions.Version {
	v, err := versions.ParseVersion(strings.TrimPrefix(Version, "v"))
	if err != nil {
		return devEngineVersion
	}
	return v
}

// SatisfiesEngine reports whether the running engine meets a module's
// engine requirement. An empty requirement is always met. Development
// builds meet every requirement.
func SatisfiesEngine(requirement string) (bool, error) {
	if strings.TrimSpace(requirement) == "" {
		return true, nil
	}
	allowed, err := versions.MeetingConstraintsString(requirement)
	if err != nil {
		return false, fmt.Errorf("invalid engine requirement %q: %w", requirement, err)
	}
	v := EngineVersion()
	if v.Same(devEngineVersion) {
		return true, nil
	}
	return allowed.Has(v), nil
}

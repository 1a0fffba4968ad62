package version

import (
	goversion "github.com/hashicorp/go-version"

	"github.com/sidkik/cacs/pkg/errors"
)

// EmptyValue is the value we use when running a version that wasn't compiled
// by `make`. This is helpful for telling when we're running in a unit test.
const EmptyValue = "set-by-make"

// Version is the latest tag on git for releases. On non-release commits, it may
// include additional information such as the most recent commit hash.
var Version = EmptyValue

// IsDevBuild returns whether the binary was built without a release version.
func IsDevBuild() bool {
	return Version == EmptyValue
}

// Satisfies returns whether the running binary satisfies the given version
// constraint, e.g. ">= 0.2, < 1.0". Development builds satisfy every
// constraint.
func Satisfies(constraint string) (bool, error) {
	constraints, err := goversion.NewConstraint(constraint)
	if err != nil {
		return false, errors.WithContext(err, "parse constraint")
	}

	if IsDevBuild() {
		return true, nil
	}

	ownVersion, err := goversion.NewVersion(Version)
	if err != nil {
		return false, errors.WithContext(err, "parse version")
	}
	return constraints.Check(ownVersion), nil
}

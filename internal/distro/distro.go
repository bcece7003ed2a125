// Package distro identifies the target distribution of a build.
package distro

import (
	"fmt"

	"github.com/olavph/builds/internal/utils"
)

const (
	ErrMissingField = utils.ConstError("distribution is not fully specified")
)

var supportedArchitectures = map[string]bool{
	"ppc64le": true,
	"ppc64":   true,
	"x86_64":  true,
}

// Distro is the target distribution triple of a build.
type Distro struct {
	Name         string
	Version      string
	Architecture string
}

// Get validates and returns the distribution triple.
func Get(name string, version string, architecture string) (Distro, error) {
	if name == "" || version == "" || architecture == "" {
		return Distro{}, fmt.Errorf(
			"%w: name=%q version=%q architecture=%q",
			ErrMissingField, name, version, architecture)
	}
	if !supportedArchitectures[architecture] {
		return Distro{}, fmt.Errorf("unsupported architecture %q", architecture)
	}
	return Distro{Name: name, Version: version, Architecture: architecture}, nil
}

func (d Distro) String() string {
	return fmt.Sprintf("%s-%s-%s", d.Name, d.Version, d.Architecture)
}

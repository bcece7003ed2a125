package packages

import (
	"fmt"
	"sort"

	"github.com/olavph/builds/internal/utils"
	"github.com/olavph/builds/logging"
)

const (
	ErrUnknownPackage    = utils.ConstError("unknown package name")
	ErrDependencyCycle   = utils.ConstError("dependency cycle between packages")
	ErrUnknownDependency = utils.ConstError("package depends on an unknown package")
)

// MetadataSource resolves package names to their metadata directories.
type MetadataSource interface {
	DiscoverPackages() ([]string, error)
	PackageDir(name string) string
}

// Manager loads package metadata and resolves the order packages must be
// built in.
type Manager struct {
	source   MetadataSource
	packages map[string]*Package
}

func NewManager(source MetadataSource) *Manager {
	return &Manager{source: source, packages: make(map[string]*Package)}
}

// Packages returns all loaded packages, sorted by name.
func (m *Manager) Packages() []*Package {
	names := make([]string, 0, len(m.packages))
	for name := range m.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]*Package, 0, len(names))
	for _, name := range names {
		result = append(result, m.packages[name])
	}
	return result
}

// Prepare loads the metadata of the requested packages and of their
// transitive build dependencies. An empty request loads every discovered
// package.
func (m *Manager) Prepare(requested []string) error {
	discovered, err := m.source.DiscoverPackages()
	if err != nil {
		return err
	}
	available := make(map[string]bool, len(discovered))
	for _, name := range discovered {
		available[name] = true
	}
	if len(requested) == 0 {
		requested = discovered
	}

	pending := append([]string{}, requested...)
	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]
		if _, loaded := m.packages[name]; loaded {
			continue
		}
		if !available[name] {
			return fmt.Errorf("%w: %s", ErrUnknownPackage, name)
		}
		pkg, err := Load(m.source.PackageDir(name), name)
		if err != nil {
			return err
		}
		m.packages[name] = pkg
		pending = append(pending, pkg.Dependencies...)
	}
	logging.Logger.Infow("prepared packages", "count", len(m.packages))
	return nil
}

// BuildOrder returns the loaded packages sorted so that every package
// appears after all of its build dependencies. Among packages whose
// dependencies are all satisfied, names are taken in lexicographic order so
// that runs are reproducible.
func (m *Manager) BuildOrder() ([]*Package, error) {
	remainingDeps := make(map[string]int, len(m.packages))
	dependents := make(map[string][]string)
	for name, pkg := range m.packages {
		remainingDeps[name] = 0
		for _, dep := range pkg.Dependencies {
			if _, loaded := m.packages[dep]; !loaded {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, name, dep)
			}
			remainingDeps[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, count := range remainingDeps {
		if count == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]*Package, 0, len(m.packages))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, m.packages[name])
		released := false
		for _, dependent := range dependents[name] {
			remainingDeps[dependent]--
			if remainingDeps[dependent] == 0 {
				ready = append(ready, dependent)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(m.packages) {
		var blocked []string
		for name, count := range remainingDeps {
			if count > 0 {
				blocked = append(blocked, name)
			}
		}
		sort.Strings(blocked)
		return nil, fmt.Errorf("%w: %v", ErrDependencyCycle, blocked)
	}
	return order, nil
}

// DependencyPackages maps the dependency names of a package to their loaded
// packages.
func (m *Manager) DependencyPackages(pkg *Package) []*Package {
	deps := make([]*Package, 0, len(pkg.Dependencies))
	for _, name := range pkg.Dependencies {
		if dep, loaded := m.packages[name]; loaded {
			deps = append(deps, dep)
		}
	}
	return deps
}

// Package mock wraps the mock chroot build tool binary.
package mock

import (
	"context"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/olavph/builds/internal/command"
	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/logging"
)

const lockFileName = "mock.lock"

// Mock runs mock commands against one chroot configuration, isolated from
// other runs by a unique chroot directory name extension.
type Mock struct {
	binary          string
	configFile      string
	extraArgs       []string
	uniqueExtension string
	lockPath        string
	runner          command.Runner
}

// New creates a mock wrapper. uniqueExtension is appended to the chroot
// directory name so concurrent runs do not share build roots.
func New(cfg *config.MockConfig, workDir string, uniqueExtension string, runner command.Runner) *Mock {
	return &Mock{
		binary:          cfg.Binary,
		configFile:      cfg.ConfigFile,
		extraArgs:       cfg.ExtraArgs,
		uniqueExtension: uniqueExtension,
		lockPath:        filepath.Join(workDir, lockFileName),
		runner:          runner,
	}
}

// Run executes a mock command using the arguments passed to the constructor.
func (m *Mock) Run(ctx context.Context, args ...string) error {
	commonArgs := []string{"-r", m.configFile}
	commonArgs = append(commonArgs, m.extraArgs...)
	commonArgs = append(commonArgs, "--uniqueext", m.uniqueExtension)
	_, err := m.runner.Run(ctx, command.Command{
		Name: m.binary,
		Args: append(commonArgs, args...),
	})
	return err
}

// Init initializes the configured chroot by discarding previous caches and
// installing the essential packages. This setup needs to be done only once
// for a given configuration and is guarded by a file lock so concurrent
// builders sharing a work dir do not race chroot setup.
func (m *Mock) Init(ctx context.Context) error {
	lock := flock.New(m.lockPath)
	logging.Logger.Debugw("acquiring mock chroot lock", "path", m.lockPath)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := m.Run(ctx, "--scrub", "all"); err != nil {
		return err
	}
	return m.Run(ctx, "--init")
}

// Clean discards the chroot build environment.
func (m *Mock) Clean(ctx context.Context) error {
	return m.Run(ctx, "--clean")
}

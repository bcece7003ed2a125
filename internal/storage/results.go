package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gobwas/glob"

	"github.com/olavph/builds/internal/utils"
	"github.com/olavph/builds/logging"
)

const (
	ErrNotAnArchive = utils.ConstError("source file is not a gzip-compressed tarball")
)

var (
	rpmGlob    = glob.MustCompile("*.rpm")
	srcRPMGlob = glob.MustCompile("*.src.rpm")
	logGlob    = glob.MustCompile("*.log")
)

// ResultSet classifies the files left in a mock results directory.
type ResultSet struct {
	// RPMs are the binary (installable) RPM file paths.
	RPMs []string
	// SourceRPMs are the .src.rpm file paths.
	SourceRPMs []string
	// Logs are the mock build log file paths.
	Logs []string
}

// ScanResults walks a build results directory and classifies its regular
// files into binary RPMs, source RPMs and build logs.
func ScanResults(dir string) (*ResultSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan results directory: %w", err)
	}
	results := &ResultSet{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)
		switch {
		case srcRPMGlob.Match(name):
			results.SourceRPMs = append(results.SourceRPMs, path)
		case rpmGlob.Match(name):
			results.RPMs = append(results.RPMs, path)
		case logGlob.Match(name):
			results.Logs = append(results.Logs, path)
		default:
			logging.Logger.Debugw("skipping unclassified results entry", "path", path)
		}
	}
	return results, nil
}

// VerifySourceArchive checks that a fetched source file really is a
// gzip-compressed archive before it is handed to mock. Download endpoints
// frequently answer HTML error pages with a 200 status; detecting the
// content type early gives a much clearer failure.
func VerifySourceArchive(path string) error {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return err
	}
	if !detected.Is("application/gzip") && !detected.Is("application/x-tar") {
		return fmt.Errorf("%w: %s detected as %s", ErrNotAnArchive, path, detected.String())
	}
	return nil
}

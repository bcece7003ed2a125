// Package readme refreshes the package versions table kept in the versions
// repository README.
package readme

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/internal/packages"
	"github.com/olavph/builds/internal/releasenotes"
	"github.com/olavph/builds/internal/utils"
	"github.com/olavph/builds/internal/versions"
	"github.com/olavph/builds/logging"
)

const (
	readmeFileName = "README.md"

	tableHeader    = "| Package | Version |"
	tableSeparator = "| --- | --- |"

	ErrNoVersionsTable = utils.ConstError("versions table not found in README")
)

// Run rewrites the versions table in the versions repository README from
// the current package metadata, optionally committing and pushing the
// change.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Updates.CommitUpdates {
		if err := releasenotes.ValidateUpdateParameters(&cfg.Updates); err != nil {
			return err
		}
	}

	versionsRepo, err := versions.Setup(cfg)
	if err != nil {
		return err
	}
	manager := packages.NewManager(versionsRepo)
	if err := manager.Prepare(nil); err != nil {
		return err
	}

	readmePath := filepath.Join(versionsRepo.Path(), readmeFileName)
	content, err := os.ReadFile(readmePath)
	if err != nil {
		return err
	}
	updated, err := UpdateVersionsTable(string(content), manager.Packages())
	if err != nil {
		return err
	}
	logging.Logger.Infow("updating README versions table", "path", readmePath)
	if err := os.WriteFile(readmePath, []byte(updated), 0644); err != nil {
		return err
	}

	if !cfg.Updates.CommitUpdates {
		return nil
	}
	err = versionsRepo.CommitChanges("Update README versions table",
		cfg.Updates.UpdaterName, cfg.Updates.UpdaterEmail)
	if err != nil {
		return err
	}
	if cfg.Updates.PushUpdates {
		logging.Logger.Infow("pushing updated versions README")
		return versionsRepo.PushHeadCommits(
			cfg.Updates.PushRepoURL, cfg.Updates.PushRepoBranch)
	}
	return nil
}

// UpdateVersionsTable replaces the rows of the package versions markdown
// table with the current package versions, leaving the rest of the document
// untouched. The table is located by its header row.
func UpdateVersionsTable(content string, pkgs []*packages.Package) (string, error) {
	lines := strings.Split(content, "\n")
	headerIndex := -1
	for index, line := range lines {
		if strings.TrimSpace(line) == tableHeader {
			headerIndex = index
			break
		}
	}
	if headerIndex == -1 || headerIndex+1 >= len(lines) {
		return "", ErrNoVersionsTable
	}

	rowsEnd := headerIndex + 2
	for rowsEnd < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[rowsEnd]), "|") {
		rowsEnd++
	}

	updated := append([]string{}, lines[:headerIndex]...)
	updated = append(updated, tableHeader, tableSeparator)
	for _, pkg := range pkgs {
		updated = append(updated, fmt.Sprintf("| %s | %s |", pkg.Name, pkg.Version))
	}
	updated = append(updated, lines[rowsEnd:]...)
	return strings.Join(updated, "\n"), nil
}

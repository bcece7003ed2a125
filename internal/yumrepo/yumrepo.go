// Package yumrepo creates yum repositories from directories of RPMs and
// renders their client-side configuration files.
package yumrepo

import (
	"context"
	"strings"
	"text/template"

	"github.com/olavph/builds/internal/command"
)

// MainConfig is a minimal yum main section disabling the system repository
// directory, used when resolving packages exclusively from build results.
const MainConfig = `[main]
reposdir=/dev/null
plugins=1
`

var repoConfigTemplate = template.Must(template.New("repo").Parse(
	`[{{.ShortName}}]
name={{.LongName}}
{{.URLType}}={{.URL}}
failovermethod=priority
enabled=1
gpgcheck=0
{{if .Priority}}priority={{.Priority}}
{{end}}`))

// Config describes a yum repository configuration entry.
type Config struct {
	ShortName string
	LongName  string
	URL       string
	// URLType is the type of repository URL (baseurl or mirrorlist).
	URLType string
	// Priority is the repository priority; lower numbers have higher
	// priority. Zero omits the priority line.
	Priority int
}

// CreateRepository creates a yum repository in a directory containing RPM
// packages.
func CreateRepository(ctx context.Context, runner command.Runner, dirPath string) error {
	_, err := runner.Run(ctx, command.Command{
		Name: "createrepo",
		Args: []string{dirPath},
	})
	return err
}

// RenderConfig renders a repository configuration ready to be written to a
// yum config file.
func RenderConfig(cfg Config) string {
	if cfg.URLType == "" {
		cfg.URLType = "baseurl"
	}
	var builder strings.Builder
	// The template only references fields that always render
	_ = repoConfigTemplate.Execute(&builder, cfg)
	return builder.String()
}

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const systemConfigFile = "/etc/host-os/config.yaml"

type DistroConfig struct {
	Name         string `koanf:"name"`
	Version      string `koanf:"version"`
	Architecture string `koanf:"architecture"`
}

type DirectoriesConfig struct {
	WorkDir   string `koanf:"work-dir"`
	ResultDir string `koanf:"result-dir"`
}

type MetadataRepoConfig struct {
	URL      string   `koanf:"url"`
	Branch   string   `koanf:"branch"`
	Refspecs []string `koanf:"refspecs"`
}

type UpdatesConfig struct {
	ReleaseNotesRepoURL    string `koanf:"release-notes-repo-url"`
	ReleaseNotesRepoBranch string `koanf:"release-notes-repo-branch"`
	CommitUpdates          bool   `koanf:"commit-updates"`
	PushUpdates            bool   `koanf:"push-updates"`
	PushRepoURL            string `koanf:"push-repo-url"`
	PushRepoBranch         string `koanf:"push-repo-branch"`
	UpdaterName            string `koanf:"updater-name"`
	UpdaterEmail           string `koanf:"updater-email"`
}

type MockConfig struct {
	Binary       string   `koanf:"binary"`
	ConfigFile   string   `koanf:"config-file"`
	ExtraArgs    []string `koanf:"extra-args"`
	KeepBuildDir bool     `koanf:"keep-build-dir"`
}

type DatabaseConfig struct {
	Driver     string `koanf:"driver"`
	DataSource string `koanf:"datasource"`
}

type PublishConfig struct {
	BucketURL string `koanf:"bucket-url"`
	Workers   int    `koanf:"workers"`
}

type Config struct {
	Verbose      bool               `koanf:"verbose"`
	LogFile      string             `koanf:"log-file"`
	HTTPProxy    string             `koanf:"http-proxy"`
	Packages     []string           `koanf:"packages"`
	Distro       DistroConfig       `koanf:"distro"`
	Directories  DirectoriesConfig  `koanf:"directories"`
	MetadataRepo MetadataRepoConfig `koanf:"metadata-repo"`
	Updates      UpdatesConfig      `koanf:"updates"`
	Mock         MockConfig         `koanf:"mock"`
	Database     DatabaseConfig     `koanf:"database"`
	Publish      PublishConfig      `koanf:"publish"`
}

// flagKeys maps command line flag names to configuration keys. Flags not
// listed here map to the top level key with the same name.
var flagKeys = map[string]string{
	"distro-name":                     "distro.name",
	"distro-version":                  "distro.version",
	"architecture":                    "distro.architecture",
	"work-dir":                        "directories.work-dir",
	"result-dir":                      "directories.result-dir",
	"packages-metadata-repo-url":      "metadata-repo.url",
	"packages-metadata-repo-branch":   "metadata-repo.branch",
	"packages-metadata-repo-refspecs": "metadata-repo.refspecs",
	"release-notes-repo-url":          "updates.release-notes-repo-url",
	"release-notes-repo-branch":       "updates.release-notes-repo-branch",
	"commit-updates":                  "updates.commit-updates",
	"push-updates":                    "updates.push-updates",
	"push-repo-url":                   "updates.push-repo-url",
	"push-repo-branch":                "updates.push-repo-branch",
	"updater-name":                    "updates.updater-name",
	"updater-email":                   "updates.updater-email",
	"mock-args":                       "mock.extra-args",
	"mock-config":                     "mock.config-file",
	"keep-build-dir":                  "mock.keep-build-dir",
	"publish-bucket-url":              "publish.bucket-url",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log-file":               "/var/log/host-os/builds.log",
		"distro.architecture":    "ppc64le",
		"directories.work-dir":   "workspace",
		"directories.result-dir": "result",
		"metadata-repo.url":      "https://github.com/open-power-host-os/versions.git",
		"metadata-repo.branch":   "master",
		"mock.binary":            "/usr/bin/mock",
		"publish.workers":        4,
		"database.driver":        "postgres",
	}
}

// Configure assembles the configuration from built-in defaults, the YAML
// configuration file and command line flags, in increasing precedence.
func Configure(flags *pflag.FlagSet) (*Config, error) {
	koanfInstance := koanf.New(".")
	if err := koanfInstance.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, err
	}
	if err := loadConfigFile(koanfInstance, flags); err != nil {
		return nil, err
	}
	flagsProvider := posflag.ProviderWithFlag(flags, ".", koanfInstance,
		func(flag *pflag.Flag) (string, interface{}) {
			key, found := flagKeys[flag.Name]
			if !found {
				key = flag.Name
			}
			return key, posflag.FlagVal(flags, flag)
		})
	if err := koanfInstance.Load(flagsProvider, nil); err != nil {
		return nil, err
	}
	config := &Config{}
	if err := koanfInstance.Unmarshal("", config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadConfigFile(koanfInstance *koanf.Koanf, flags *pflag.FlagSet) error {
	configFile, err := flags.GetString("config-file")
	if err != nil {
		return err
	}
	if flags.Changed("config-file") {
		// An explicitly requested file must exist
		return koanfInstance.Load(file.Provider(configFile), yaml.Parser())
	}
	for _, location := range []string{configFile, systemConfigFile} {
		loadErr := koanfInstance.Load(file.Provider(location), yaml.Parser())
		if loadErr == nil {
			return nil
		}
		if !errors.Is(loadErr, os.ErrNotExist) {
			return fmt.Errorf("unable to load configuration from %s: %w", location, loadErr)
		}
	}
	// No configuration file found in the default locations; defaults and
	// command line flags still apply.
	return nil
}

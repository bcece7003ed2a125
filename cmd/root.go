package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/logging"
)

var rootCmd = &cobra.Command{
	Use:   "host-os",
	Short: "Build tooling for the OpenPOWER Host OS distribution",
	Long: `host-os orchestrates RPM package builds for the OpenPOWER Host OS
distribution: it checks out the packages metadata repository, builds the
selected packages inside mock chroots and assembles the results into a yum
repository.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config-file", "c", "config.yaml",
		"Path of the configuration file for build scripts")
	flags.BoolP("verbose", "v", false, "Set the scripts to be verbose")
	flags.StringP("log-file", "l", "/var/log/host-os/builds.log", "Log file")
	flags.StringP("work-dir", "w", "workspace",
		"Directory used to store repositories and build scratch files")
	flags.StringP("result-dir", "r", "result", "Directory to save the RPMs")
	flags.String("distro-name", "", "Target distribution name")
	flags.String("distro-version", "", "Target distribution version")
	flags.String("architecture", "ppc64le", "Target architecture")
	flags.StringSliceP("packages", "p", nil,
		"Packages to be processed (default: all discovered)")
}

// setup loads the configuration and initializes logging for a subcommand.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Configure(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.InitializeWithLogFile(cfg.Verbose, cfg.LogFile); err != nil {
		// The log file location may not be writable for unprivileged
		// runs; fall back to console-only logging.
		logging.Initialize(cfg.Verbose)
		logging.Logger.Warnw("unable to open log file, logging to console only",
			"logFile", cfg.LogFile, "err", err)
	}
	return cfg, nil
}

func addMetadataRepoFlags(cmd *cobra.Command) {
	cmd.Flags().String("packages-metadata-repo-url",
		"https://github.com/open-power-host-os/versions.git",
		"URL of the packages metadata git repository")
	cmd.Flags().String("packages-metadata-repo-branch", "master",
		"Branch of the packages metadata git repository")
	cmd.Flags().StringSlice("packages-metadata-repo-refspecs", nil,
		"Custom refspecs fetched from the packages metadata repository")
}

func addUpdateFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("commit-updates", false,
		"Commit the generated changes to the local repository")
	cmd.Flags().Bool("push-updates", false, "Push the committed changes")
	cmd.Flags().String("push-repo-url", "", "Remote repository URL to push to")
	cmd.Flags().String("push-repo-branch", "", "Remote repository branch to push to")
	cmd.Flags().String("updater-name", "", "Committer name")
	cmd.Flags().String("updater-email", "", "Committer email")
}

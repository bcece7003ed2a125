package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olavph/builds/internal/releasenotes"
	"github.com/olavph/builds/logging"
)

var buildReleaseNotesCmd = &cobra.Command{
	Use:   "build-release-notes",
	Short: "Generate a release notes post in the website repository",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup(cmd)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer logging.Release()

		if err := releasenotes.Run(cmd.Context(), cfg); err != nil {
			logging.Logger.Errorw("failed to build release notes", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(buildReleaseNotesCmd)
	addMetadataRepoFlags(buildReleaseNotesCmd)
	addUpdateFlags(buildReleaseNotesCmd)
	buildReleaseNotesCmd.Flags().String("release-notes-repo-url", "",
		"URL of the website git repository receiving the release post")
	buildReleaseNotesCmd.Flags().String("release-notes-repo-branch", "master",
		"Branch of the website git repository")
}

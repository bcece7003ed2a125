package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olavph/builds/internal/readme"
	"github.com/olavph/builds/logging"
)

var updateVersionsReadmeCmd = &cobra.Command{
	Use:   "update-versions-readme",
	Short: "Refresh the versions table in the metadata repository README",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup(cmd)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer logging.Release()

		if err := readme.Run(cmd.Context(), cfg); err != nil {
			logging.Logger.Errorw("failed to update versions README", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(updateVersionsReadmeCmd)
	addMetadataRepoFlags(updateVersionsReadmeCmd)
	addUpdateFlags(updateVersionsReadmeCmd)
}

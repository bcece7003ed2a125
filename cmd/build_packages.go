package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olavph/builds/internal/buildinfo"
	"github.com/olavph/builds/internal/builder"
	"github.com/olavph/builds/internal/command"
	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/internal/db"
	"github.com/olavph/builds/internal/distro"
	"github.com/olavph/builds/internal/models"
	"github.com/olavph/builds/internal/packages"
	"github.com/olavph/builds/internal/publish"
	"github.com/olavph/builds/internal/storage"
	"github.com/olavph/builds/internal/versions"
	"github.com/olavph/builds/logging"
)

var buildPackagesCmd = &cobra.Command{
	Use:   "build-packages",
	Short: "Build RPM packages in mock chroots",
	Long: `build-packages checks out the packages metadata repository, resolves the
build order of the selected packages, builds each one inside a mock chroot
and creates a yum repository from the results.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup(cmd)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer logging.Release()

		if err := buildPackages(cmd.Context(), cfg); err != nil {
			logging.Logger.Errorw("build failed", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(buildPackagesCmd)
	addMetadataRepoFlags(buildPackagesCmd)
	buildPackagesCmd.Flags().Bool("keep-build-dir", false,
		"Keep build directory and its logs and artifacts")
	buildPackagesCmd.Flags().StringSlice("mock-args", nil,
		"Extra arguments passed to every mock invocation")
	buildPackagesCmd.Flags().String("mock-config", "",
		"Mock chroot configuration file")
	buildPackagesCmd.Flags().String("publish-bucket-url", "",
		"Blob bucket URL receiving the resulting yum repository")
}

func buildPackages(ctx context.Context, cfg *config.Config) error {
	dist, err := distro.Get(cfg.Distro.Name, cfg.Distro.Version, cfg.Distro.Architecture)
	if err != nil {
		return err
	}
	logging.Logger.Infow("building packages", "distro", dist.String())

	storageManager, err := storage.NewManager(&cfg.Directories)
	if err != nil {
		return err
	}
	runner := command.NewRunner()

	versionsRepo, err := versions.Setup(cfg)
	if err != nil {
		return err
	}
	manager := packages.NewManager(versionsRepo)
	if err := manager.Prepare(cfg.Packages); err != nil {
		return err
	}
	buildOrder, err := manager.BuildOrder()
	if err != nil {
		return err
	}

	packageBuilder := builder.New(cfg, runner, storageManager)
	logging.Logger.Infow("initializing mock chroot", "timestamp", packageBuilder.Timestamp())
	if err := packageBuilder.InitChroot(ctx); err != nil {
		return err
	}

	history, run := openBuildHistory(cfg, packageBuilder.Timestamp(), dist)
	if history != nil {
		defer history.Close()
	}

	for _, pkg := range buildOrder {
		buildErr := packageBuilder.Build(ctx, pkg, manager.DependencyPackages(pkg))
		recordResult(history, run, pkg, buildErr == nil)
		if buildErr != nil {
			return fmt.Errorf("failed to build package %s: %w", pkg.Name, buildErr)
		}
		if err := packageBuilder.CopyResults(pkg); err != nil {
			return err
		}
	}

	if err := packageBuilder.CreateRepository(ctx); err != nil {
		return err
	}
	if err := packageBuilder.CreateLatestSymlinks(); err != nil {
		return err
	}
	if err := buildinfo.WriteBuiltPackagesInfo(storageManager.ResultDir(), manager.Packages()); err != nil {
		return err
	}
	if err := publishResults(ctx, cfg, storageManager, packageBuilder.Timestamp()); err != nil {
		return err
	}
	if history != nil && run != nil {
		if err := history.Runs().FinishRun(run.Id); err != nil {
			logging.Logger.Warnw("failed to finish build run record", "err", err)
		}
	}
	logging.Logger.Infow("build finished", "timestamp", packageBuilder.Timestamp())
	return nil
}

// openBuildHistory connects to the build history database when one is
// configured. History recording is best effort and never fails the build.
func openBuildHistory(cfg *config.Config, timestamp string, dist distro.Distro) (db.Database, *models.BuildRunModel) {
	if cfg.Database.DataSource == "" {
		return nil, nil
	}
	history, err := db.NewSQLDatabase(&cfg.Database)
	if err != nil {
		logging.Logger.Warnw("build history database unavailable", "err", err)
		return nil, nil
	}
	run, err := history.Runs().CreateRun(timestamp, dist.Name, dist.Version, dist.Architecture)
	if err != nil {
		logging.Logger.Warnw("failed to record build run", "err", err)
		history.Close()
		return nil, nil
	}
	return history, run
}

func recordResult(history db.Database, run *models.BuildRunModel, pkg *packages.Package, success bool) {
	if history == nil || run == nil {
		return
	}
	_, err := history.Runs().SaveResult(&models.BuildResultModel{
		RunId:    run.Id,
		Package:  pkg.Name,
		Version:  pkg.Version,
		Success:  success,
		RPMCount: len(pkg.CachedBuildResults),
	})
	if err != nil {
		logging.Logger.Warnw("failed to record build result",
			"package", pkg.Name, "err", err)
	}
}

func publishResults(ctx context.Context, cfg *config.Config, storageManager storage.Manager, timestamp string) error {
	if cfg.Publish.BucketURL == "" {
		return nil
	}
	resultsDir, err := storageManager.ResultPackagesDir(timestamp)
	if err != nil {
		return err
	}
	publisher := publish.NewPublisher(&cfg.Publish)
	return publisher.Publish(ctx, resultsDir, "packages/"+timestamp)
}

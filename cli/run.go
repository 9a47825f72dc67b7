package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/trajexplore/trajexplore/config"
	"github.com/trajexplore/trajexplore/environment"
	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/trajectory"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "explore a trajectory's parameter range, dispatching one run per index",
	RunE:  runRun,
}

// openArchive opens the configured archive and either loads an existing
// trajectory or seeds the demo one and stores it with StoreInit, so a
// fresh archive file and a resumed one both work from this one entry
// point.
func openArchive(cfg config.EnvironmentConfig) (*storage.Service, *trajectory.Trajectory, error) {
	name := cfg.TrajectoryName
	archivePath := cfg.ArchiveFilename
	if fi, err := os.Stat(archivePath); err == nil && fi.IsDir() {
		archivePath = filepath.Join(archivePath, name+".db")
	}
	svc, err := storage.OpenWithOptions(archivePath, storage.Options{
		CommentDedup:     cfg.CommentDedup,
		OverviewLarge:    cfg.OverviewTablesLarge,
		OverviewSmall:    cfg.OverviewTablesSmall,
		OverviewSummary:  cfg.OverviewTablesSumm,
		CompressionLevel: cfg.StorageCompression,
	})
	if err != nil {
		return nil, nil, err
	}
	traj, err := svc.LoadTrajectory(name, storage.LoadData)
	if err == nil {
		return svc, traj, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		svc.Finalize()
		return nil, nil, err
	}
	if cfg.AddTime {
		name += time.Now().Format("_2006_01_02_15h04m05s")
	}
	traj, err = seedDemoTrajectory(name)
	if err != nil {
		svc.Finalize()
		return nil, nil, err
	}
	traj.Comment = cfg.Comment
	if err := svc.StoreTrajectory(traj, storage.StoreInit); err != nil {
		svc.Finalize()
		return nil, nil, err
	}
	svc.AttachAutoLoader(traj)
	return svc, traj, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := environmentConfigFromViper()

	svc, traj, err := openArchive(cfg)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer svc.Finalize()

	env, err := environment.New(cfg, traj, svc)
	if err != nil {
		return fmt.Errorf("build environment: %w", err)
	}

	code, err := env.Run(demoRunFunc, demoPostprocFunc)
	ExitCode = code
	return err
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trajexplore/trajexplore/environment"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "resume a previously interrupted run, skipping indices already completed",
	RunE:  runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg := environmentConfigFromViper()
	cfg.Resumable = true
	if cfg.ResumeDir == "" {
		return fmt.Errorf("resume requires --resume-dir (or TRAJEXPLORE_RESUME_DIR)")
	}

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

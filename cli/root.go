// Package cli implements the trajexplore command line: run, resume and
// inspect subcommands over a trajectory archive. Configuration follows
// a viper-backed flag/env/config-file precedence chain.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trajexplore/trajexplore/config"
)

// cfgFile holds the path to the configuration file given via --config.
var cfgFile string

// RootCmd is the trajexplore entry point.
var RootCmd = &cobra.Command{
	Use:   "trajexplore",
	Short: "explore, resume and inspect parameter-exploration trajectories",
	Long: `trajexplore dispatches one run per explored index of a trajectory
to a worker pool, persists each run's results to a single archive
file as it completes, and runs post-processing once dispatch ends.

Configuration is read from flags, environment variables prefixed
TRAJEXPLORE_, and an optional .trajexplore.yaml config file, in that
order of precedence.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.trajexplore.yaml)")
	RootCmd.PersistentFlags().String("archive", "trajexplore.db", "archive file path")
	RootCmd.PersistentFlags().String("trajectory-name", "demo", "trajectory name")
	RootCmd.PersistentFlags().Bool("add-time", false, "append a timestamp suffix to a newly created trajectory name")
	RootCmd.PersistentFlags().String("comment", "", "comment attached to a newly created trajectory")
	RootCmd.PersistentFlags().Int("worker-count", 0, "number of workers (0 = number of CPUs)")
	RootCmd.PersistentFlags().Bool("pool", true, "reuse a fixed worker pool instead of one goroutine per run")
	RootCmd.PersistentFlags().String("wrap-mode", "none", "storage wrap mode: none|lock|queue|pipe")
	RootCmd.PersistentFlags().Float64("cpu-cap", 1.0, "admission control CPU fraction cap")
	RootCmd.PersistentFlags().Float64("mem-cap", 1.0, "admission control memory fraction cap")
	RootCmd.PersistentFlags().Float64("swap-cap", 1.0, "admission control swap fraction cap")
	RootCmd.PersistentFlags().Bool("immediate-postproc", false, "run post-processing per run instead of once at the end")
	RootCmd.PersistentFlags().Bool("fail-fast", false, "abort the experiment on the first failed run instead of recording it and continuing")
	RootCmd.PersistentFlags().Bool("graceful-exit", true, "drain in-flight runs on SIGINT/SIGTERM before exiting")
	RootCmd.PersistentFlags().Bool("resumable", false, "write resume markers and reconcile against them on restart")
	RootCmd.PersistentFlags().String("resume-dir", "", "directory for resume markers (required when --resumable)")
	RootCmd.PersistentFlags().Duration("run-timeout", 0, "per-run wall-clock deadline (0 = disabled)")
	RootCmd.PersistentFlags().String("redis-url", "", "redis URL backing the queue wrap mode")
	RootCmd.PersistentFlags().String("amqp-url", "", "AMQP URL backing the queue wrap mode, takes precedence over --redis-url")
	RootCmd.PersistentFlags().Bool("comment-dedup", true, "omit repeated per-run comments from the archive")
	RootCmd.PersistentFlags().Bool("overview-large", true, "maintain the per-run runs overview table")
	RootCmd.PersistentFlags().Bool("overview-small", true, "maintain the parameters/config/explored overview tables")
	RootCmd.PersistentFlags().Bool("overview-summary", true, "maintain the results/derived-parameters summary tables")
	RootCmd.PersistentFlags().Int("storage-compression-level", 0, "archive backend compression hint, 0-9")

	for _, name := range []string{
		"archive", "trajectory-name", "add-time", "comment", "worker-count", "pool", "wrap-mode",
		"cpu-cap", "mem-cap", "swap-cap", "immediate-postproc", "fail-fast", "graceful-exit",
		"resumable", "resume-dir", "run-timeout", "redis-url", "amqp-url",
		"comment-dedup", "overview-large", "overview-small", "overview-summary",
		"storage-compression-level",
	} {
		_ = viper.BindPFlag(name, RootCmd.PersistentFlags().Lookup(name))
	}

	RootCmd.AddCommand(runCmd, resumeCmd, inspectCmd, versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".trajexplore")
	}

	viper.SetEnvPrefix("TRAJEXPLORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// environmentConfigFromViper builds an EnvironmentConfig from bound
// flags/env/config-file values, overlaying config.DefaultEnvironmentConfig.
func environmentConfigFromViper() config.EnvironmentConfig {
	cfg := config.DefaultEnvironmentConfig()
	cfg.ArchiveFilename = viper.GetString("archive")
	cfg.TrajectoryName = viper.GetString("trajectory-name")
	cfg.AddTime = viper.GetBool("add-time")
	cfg.Comment = viper.GetString("comment")
	cfg.WorkerCount = viper.GetInt("worker-count")
	cfg.Pool = viper.GetBool("pool")
	cfg.WrapMode = config.WrapMode(viper.GetString("wrap-mode"))
	cfg.CPUCap = viper.GetFloat64("cpu-cap")
	cfg.MemCap = viper.GetFloat64("mem-cap")
	cfg.SwapCap = viper.GetFloat64("swap-cap")
	cfg.ImmediatePostproc = viper.GetBool("immediate-postproc")
	cfg.FailFast = viper.GetBool("fail-fast")
	cfg.GracefulExit = viper.GetBool("graceful-exit")
	cfg.Resumable = viper.GetBool("resumable")
	cfg.ResumeDir = viper.GetString("resume-dir")
	cfg.RunTimeout = viper.GetDuration("run-timeout")
	cfg.RedisURL = viper.GetString("redis-url")
	cfg.AMQPURL = viper.GetString("amqp-url")
	cfg.CommentDedup = viper.GetBool("comment-dedup")
	cfg.OverviewTablesLarge = viper.GetBool("overview-large")
	cfg.OverviewTablesSmall = viper.GetBool("overview-small")
	cfg.OverviewTablesSumm = viper.GetBool("overview-summary")
	cfg.StorageCompression = viper.GetInt("storage-compression-level")
	return cfg
}

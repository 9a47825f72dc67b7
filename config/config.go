// Package config provides environment-variable configuration loading and
// validation utilities, plus the concrete configuration shapes used by the
// trajectory environment and CLI.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/trajexplore/trajexplore/common"
	"github.com/trajexplore/trajexplore/errs"
)

// EnvConfig loads configuration values from environment variables under an
// optional prefix, delegating the parsing to the common env helpers.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a new environment configuration loader.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

// GetString retrieves a string value from environment with optional default.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	return common.GetEnv(ec.buildKey(key), defaultValue)
}

// GetInt retrieves an integer value from environment with optional default.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	return common.GetEnvInt(ec.buildKey(key), defaultValue)
}

// GetFloat retrieves a float value from environment with optional default.
func (ec *EnvConfig) GetFloat(key string, defaultValue float64) float64 {
	return common.GetEnvFloat(ec.buildKey(key), defaultValue)
}

// GetBool retrieves a boolean value from environment with optional default.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	return common.GetEnvBool(ec.buildKey(key), defaultValue)
}

// GetDuration retrieves a duration value from environment with optional default.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	return common.GetEnvDuration(ec.buildKey(key), defaultValue)
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// Validator accumulates configuration validation errors.
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireString validates that a string field is not empty.
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequireRange validates that an int field lies within [min, max].
func (v *Validator) RequireRange(field string, value, min, max int) {
	if value < min || value > max {
		v.errors = append(v.errors, fmt.Sprintf("%s must be between %d and %d", field, min, max))
	}
}

// RequireFraction validates that a float field lies within (0.0, 1.0].
func (v *Validator) RequireFraction(field string, value float64) {
	if value <= 0.0 || value > 1.0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be in (0.0, 1.0]", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options.
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []string {
	return v.errors
}

// Validate returns a single combined error if invalid, otherwise nil.
func (v *Validator) Validate() error {
	if v.IsValid() {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(v.errors, "; "))
}

// WrapMode selects the storage wrapper used to serialize multi-worker
// archive access.
type WrapMode string

const (
	WrapNone  WrapMode = "none"
	WrapLock  WrapMode = "lock"
	WrapQueue WrapMode = "queue"
	WrapPipe  WrapMode = "pipe"
)

// EnvironmentConfig is the full set of options accepted by an Environment
// constructor. Out-of-range values fail Validate with ConfigError;
// environment variables that name no field are not read and not reported.
type EnvironmentConfig struct {
	TrajectoryName       string
	AddTime              bool
	Comment              string
	ArchiveFilename      string
	WorkerCount          int
	Pool                 bool
	FreezeInput          bool
	WrapMode             WrapMode
	CPUCap               float64
	MemCap               float64
	SwapCap              float64
	Resumable            bool
	ResumeDir            string
	RunTimeout           time.Duration
	RedisURL             string
	AMQPURL              string
	GracefulExit         bool
	ImmediatePostproc    bool
	FailFast             bool
	CommentDedup         bool
	StorageCompression   int
	OverviewTablesLarge  bool
	OverviewTablesSmall  bool
	OverviewTablesSumm   bool
}

// DefaultEnvironmentConfig returns a conservative baseline: a worker
// pool sized to the CPU count (WorkerCount 0), no admission caps
// exercised (caps at 1.0), comment dedup and graceful exit on,
// queue-free direct storage access.
func DefaultEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		WorkerCount:         0,
		Pool:                true,
		WrapMode:            WrapNone,
		CPUCap:              1.0,
		MemCap:              1.0,
		SwapCap:             1.0,
		GracefulExit:        true,
		CommentDedup:        true,
		OverviewTablesLarge: true,
		OverviewTablesSmall: true,
		OverviewTablesSumm:  true,
	}
}

// LoadEnvironmentConfig overlays environment-variable overrides (under
// prefix, typically "TRAJEXPLORE") onto DefaultEnvironmentConfig and
// validates the result.
func LoadEnvironmentConfig(prefix string) (EnvironmentConfig, error) {
	env := NewEnvConfig(prefix)
	cfg := DefaultEnvironmentConfig()

	cfg.TrajectoryName = env.GetString("TRAJECTORY_NAME", cfg.TrajectoryName)
	cfg.AddTime = env.GetBool("ADD_TIME", cfg.AddTime)
	cfg.Comment = env.GetString("COMMENT", cfg.Comment)
	cfg.ArchiveFilename = env.GetString("ARCHIVE_FILENAME", cfg.ArchiveFilename)
	cfg.WorkerCount = env.GetInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.Pool = env.GetBool("POOL", cfg.Pool)
	cfg.FreezeInput = env.GetBool("FREEZE_INPUT", cfg.FreezeInput)
	cfg.WrapMode = WrapMode(env.GetString("WRAP_MODE", string(cfg.WrapMode)))
	cfg.CPUCap = env.GetFloat("CPU_CAP", cfg.CPUCap)
	cfg.MemCap = env.GetFloat("MEM_CAP", cfg.MemCap)
	cfg.SwapCap = env.GetFloat("SWAP_CAP", cfg.SwapCap)
	cfg.Resumable = env.GetBool("RESUMABLE", cfg.Resumable)
	cfg.ResumeDir = env.GetString("RESUME_DIR", cfg.ResumeDir)
	cfg.RunTimeout = env.GetDuration("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.RedisURL = env.GetString("REDIS_URL", cfg.RedisURL)
	cfg.AMQPURL = env.GetString("AMQP_URL", cfg.AMQPURL)
	cfg.GracefulExit = env.GetBool("GRACEFUL_EXIT", cfg.GracefulExit)
	cfg.ImmediatePostproc = env.GetBool("IMMEDIATE_POSTPROC", cfg.ImmediatePostproc)
	cfg.FailFast = env.GetBool("FAIL_FAST", cfg.FailFast)
	cfg.CommentDedup = env.GetBool("COMMENT_DEDUP", cfg.CommentDedup)
	cfg.OverviewTablesLarge = env.GetBool("OVERVIEW_LARGE", cfg.OverviewTablesLarge)
	cfg.OverviewTablesSmall = env.GetBool("OVERVIEW_SMALL", cfg.OverviewTablesSmall)
	cfg.OverviewTablesSumm = env.GetBool("OVERVIEW_SUMMARY", cfg.OverviewTablesSumm)
	cfg.StorageCompression = env.GetInt("STORAGE_COMPRESSION_LEVEL", cfg.StorageCompression)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration's value ranges, failing with
// ErrConfigError so callers can errors.Is against it.
func (cfg EnvironmentConfig) Validate() error {
	if err := validateEnvironmentConfig(cfg); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfigError, err)
	}
	return nil
}

func validateEnvironmentConfig(cfg EnvironmentConfig) error {
	v := NewValidator()
	v.RequireFraction("CPUCap", cfg.CPUCap)
	v.RequireFraction("MemCap", cfg.MemCap)
	v.RequireFraction("SwapCap", cfg.SwapCap)
	if cfg.WrapMode != "" {
		v.RequireOneOf("WrapMode", string(cfg.WrapMode),
			[]string{string(WrapNone), string(WrapLock), string(WrapQueue), string(WrapPipe)})
	}
	if cfg.StorageCompression < 0 || cfg.StorageCompression > 9 {
		v.RequireRange("StorageCompressionLevel", cfg.StorageCompression, 0, 9)
	}
	return v.Validate()
}

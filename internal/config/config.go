// Package config loads the miner's configuration from a TOML file, with a
// narrow set of environment-variable overrides for values an operator
// should not want to leave sitting in a file on disk (the secret phrase).
//
// The env-overlay-on-top-of-a-file idiom is kept from the teacher's
// internal/config.LoadDeviceConfig, generalized from a single .env file of
// three device fields into a full TOML schema covering every option
// enumerated by the miner.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"scavenge/internal/errs"
)

// Config mirrors every enumerated option of the mining client.
type Config struct {
	PlotDirs []string `toml:"plot_dirs"`

	URL                  string `toml:"url"`
	SecretPhrase         string `toml:"secret_phrase"`
	TargetDeadline       uint64 `toml:"target_deadline"`
	GetMiningInfoInterval int   `toml:"get_mining_info_interval"` // milliseconds
	Timeout              int    `toml:"timeout"`                  // milliseconds

	HDDReaderThreadCount int  `toml:"hdd_reader_thread_count"`
	CPUWorkerThreadCount int  `toml:"cpu_worker_thread_count"`
	HDDUseDirectIO       bool `toml:"hdd_use_direct_io"`
	HDDWakeupAfter       int  `toml:"hdd_wakeup_after"` // seconds

	ConsoleLogLevel string `toml:"console_log_level"`
	LogfileLogLevel string `toml:"logfile_log_level"`
	LogfileMaxCount int    `toml:"logfile_max_count"`
	LogfileMaxSize  int    `toml:"logfile_max_size"` // megabytes
}

// secretPhraseEnvVar overrides Config.SecretPhrase when set, so an operator
// never has to commit a pool passphrase to a config file on disk.
const secretPhraseEnvVar = "SCAVENGE_SECRET_PHRASE"

// Defaults returns a Config with sane defaults for every optional field.
func Defaults() Config {
	return Config{
		TargetDeadline:        ^uint64(0),
		GetMiningInfoInterval: 3000,
		Timeout:               5000,
		HDDReaderThreadCount:  1,
		CPUWorkerThreadCount:  1,
		HDDWakeupAfter:        240,
		ConsoleLogLevel:       "info",
		LogfileLogLevel:       "info",
		LogfileMaxCount:       5,
		LogfileMaxSize:        20,
	}
}

// Load reads a TOML config file at path, applies it on top of Defaults, and
// overlays the secret-phrase environment variable when present.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.ConfigError, "failed to parse config file", err, map[string]interface{}{
			"path": path,
		})
	}

	if secret := os.Getenv(secretPhraseEnvVar); secret != "" {
		cfg.SecretPhrase = secret
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the invariants the rest of the pipeline assumes hold.
func (c Config) Validate() error {
	if len(c.PlotDirs) == 0 {
		return errs.New(errs.ConfigError, "at least one plot_dirs entry is required", nil)
	}
	if c.URL == "" {
		return errs.New(errs.ConfigError, "url must be set", nil)
	}
	if c.HDDReaderThreadCount < 1 {
		return errs.New(errs.ConfigError, "hdd_reader_thread_count must be at least 1", nil)
	}
	if c.CPUWorkerThreadCount < 1 {
		return errs.New(errs.ConfigError, "cpu_worker_thread_count must be at least 1", nil)
	}
	return nil
}

// PollInterval returns get_mining_info_interval as a time.Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.GetMiningInfoInterval) * time.Millisecond
}

// RequestTimeout returns timeout as a time.Duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// WakeupAfter returns hdd_wakeup_after as a time.Duration.
func (c Config) WakeupAfter() time.Duration {
	return time.Duration(c.HDDWakeupAfter) * time.Second
}

// PoolMode reports whether the miner is configured for pool submission
// (empty secret phrase) as opposed to solo mining.
func (c Config) PoolMode() bool {
	return c.SecretPhrase == ""
}

func (c Config) String() string {
	return fmt.Sprintf("Config{plots=%d url=%s pool=%v readers=%d workers=%d directio=%v}",
		len(c.PlotDirs), c.URL, c.PoolMode(), c.HDDReaderThreadCount, c.CPUWorkerThreadCount, c.HDDUseDirectIO)
}

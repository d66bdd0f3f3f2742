package repocache

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/utilitywarehouse/git-cache/auth"
)

const (
	// MinAllowedStaleAfter is the lowest accepted freshness window,
	// anything shorter turns every prepare into a remote sync.
	MinAllowedStaleAfter = time.Minute

	defaultStaleAfter   = 24 * time.Hour
	defaultIdleTTL      = 7 * 24 * time.Hour
	defaultSizeBudget   = 10 << 30 // 10 GiB
	defaultRetries      = 2
	defaultRetryBackoff = 500 * time.Millisecond
)

// Config is the configuration of the cache manager
type Config struct {
	// Root is the absolute path to the root dir where repository
	// directories will be created
	Root string `yaml:"root"`

	// StaleAfter is how long a cached repository is served without a
	// remote sync. a repository last fetched longer ago is re-synced
	// before being served
	StaleAfter time.Duration `yaml:"stale_after"`

	// IdleTTL is how long an unused repository is kept on disk.
	// repositories not served for longer are removed
	IdleTTL time.Duration `yaml:"idle_ttl"`

	// SizeBudgetBytes is the rough disk budget for the cache root.
	// least recently used repositories are removed until the total is
	// under budget
	SizeBudgetBytes int64 `yaml:"size_budget_bytes"`

	// Retries is the number of extra attempts per remote url on
	// transient network failures
	Retries int `yaml:"retries"`

	// RetryBackoff is the initial delay between retries, doubled on
	// each attempt
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Auth config to fetch remote repos
	Auth auth.Config `yaml:"auth"`
}

// ValidateAndApplyDefaults will verify the config and fill defaults
func (conf *Config) ValidateAndApplyDefaults() error {
	var errs []error

	if conf.Root == "" {
		errs = append(errs, fmt.Errorf("cache root is required"))
	} else if !filepath.IsAbs(conf.Root) {
		errs = append(errs, fmt.Errorf("cache root '%s' must be absolute", conf.Root))
	}

	if conf.StaleAfter != 0 && conf.StaleAfter < MinAllowedStaleAfter {
		errs = append(errs, fmt.Errorf("provided stale_after is too short (%s), must be > %s", conf.StaleAfter, MinAllowedStaleAfter))
	}

	if conf.IdleTTL < 0 {
		errs = append(errs, fmt.Errorf("idle_ttl cannot be negative"))
	}

	if conf.SizeBudgetBytes < 0 {
		errs = append(errs, fmt.Errorf("size_budget_bytes cannot be negative"))
	}

	if conf.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries cannot be negative"))
	}

	// if any of the github app config is set all should be set
	if conf.Auth.GithubAppID != "" ||
		conf.Auth.GithubAppInstallationID != "" ||
		conf.Auth.GithubAppPrivateKeyPath != "" {
		if conf.Auth.GithubAppID == "" ||
			conf.Auth.GithubAppInstallationID == "" ||
			conf.Auth.GithubAppPrivateKeyPath == "" {
			errs = append(errs, fmt.Errorf("all of the Github app attribute is required"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", errs)
	}

	if conf.StaleAfter == 0 {
		conf.StaleAfter = defaultStaleAfter
	}
	if conf.IdleTTL == 0 {
		conf.IdleTTL = defaultIdleTTL
	}
	if conf.SizeBudgetBytes == 0 {
		conf.SizeBudgetBytes = defaultSizeBudget
	}
	if conf.Retries == 0 {
		conf.Retries = defaultRetries
	}
	if conf.RetryBackoff == 0 {
		conf.RetryBackoff = defaultRetryBackoff
	}

	return nil
}

// reposRoot returns path of the dir where all repository clones live
func (conf *Config) reposRoot() string {
	return filepath.Join(conf.Root, "repos")
}

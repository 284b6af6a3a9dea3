// Package config loads server configuration from file and environment.
//
// Precedence: environment variables (MORTGAGE_*) override the optional
// config.yaml, which overrides the built-in defaults. Everything has a
// working default so `go run ./cmd/server` starts with zero setup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Delinquency DelinquencyConfig `mapstructure:"delinquency"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Sweep       SweepConfig       `mapstructure:"sweep"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type DelinquencyConfig struct {
	// ConsecutiveMissLimit is the number of consecutive fully-missed
	// installments that opens a default record.
	ConsecutiveMissLimit int `mapstructure:"consecutive_miss_limit"`

	// DailyPenaltyRate is applied to overdue amounts, as a decimal string
	// (e.g. "0.0005" for 5 basis points per day). Empty means no penalty.
	DailyPenaltyRate string `mapstructure:"daily_penalty_rate"`
}

type EligibilityConfig struct {
	MinMonthlyIncome         string  `mapstructure:"min_monthly_income"`
	MaxDebtToIncomeRatio     float64 `mapstructure:"max_debt_to_income_ratio"`
	RequireNHFContribution   bool    `mapstructure:"require_nhf_contribution"`
	MinNHFContributionMonths int     `mapstructure:"min_nhf_contribution_months"`
	MinEmploymentMonths      int     `mapstructure:"min_employment_months"`
}

type SweepConfig struct {
	// Interval between delinquency sweeps over active accounts.
	Interval time.Duration `mapstructure:"interval"`

	// Concurrency bounds how many accounts refresh in parallel.
	Concurrency int `mapstructure:"concurrency"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads config.yaml (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("MORTGAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/mortgage.db")

	v.SetDefault("delinquency.consecutive_miss_limit", 3)
	v.SetDefault("delinquency.daily_penalty_rate", "")

	v.SetDefault("eligibility.min_monthly_income", "200000")
	v.SetDefault("eligibility.max_debt_to_income_ratio", 0.4)
	v.SetDefault("eligibility.require_nhf_contribution", true)
	v.SetDefault("eligibility.min_nhf_contribution_months", 6)
	v.SetDefault("eligibility.min_employment_months", 12)

	v.SetDefault("sweep.interval", 24*time.Hour)
	v.SetDefault("sweep.concurrency", 8)

	v.SetDefault("logging.level", "info")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required for the sqlite driver")
	}
	if cfg.Delinquency.ConsecutiveMissLimit <= 0 {
		return fmt.Errorf("delinquency.consecutive_miss_limit must be positive")
	}
	if cfg.Sweep.Concurrency <= 0 {
		return fmt.Errorf("sweep.concurrency must be positive")
	}
	return nil
}

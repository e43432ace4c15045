package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds batch, fetch and store configuration.
type Config struct {
	ProfileURL       string        `koanf:"profile_url"`
	LinkBaseURL      string        `koanf:"link_base_url"`
	Parallelism      int           `koanf:"parallelism"`
	Workers          int           `koanf:"workers"`
	Delay            time.Duration `koanf:"delay"`
	RandomDelay      time.Duration `koanf:"random_delay"`
	Timeout          time.Duration `koanf:"timeout"`
	BatchTimeout     time.Duration `koanf:"batch_timeout"`
	ProgressEvery    int           `koanf:"progress_every"`
	UserAgent        string        `koanf:"user_agent"`
	RespectRobotsTxt bool          `koanf:"respect_robots_txt"`
	DedupeMaxSize    int           `koanf:"dedupe_max_size"`
	BatchSize        int           `koanf:"batch_size"`

	OutputFile   string `koanf:"output_file"`
	OutputFormat string `koanf:"output_format"` // csv, json, dual, or empty to disable

	DatabasePath    string `koanf:"database_path"`
	GraphQLEndpoint string `koanf:"graphql_endpoint"`
	GraphQLAPIKey   string `koanf:"graphql_api_key"`
	DiveTablePath   string `koanf:"dive_table_path"`

	MetricsAddr      string `koanf:"metrics_addr"`
	MetricsNamespace string `koanf:"metrics_namespace"`

	MinFinaAge  int `koanf:"min_fina_age"`
	MaxFinaAge  int `koanf:"max_fina_age"`
	MinGradYear int `koanf:"min_grad_year"`
	MaxGradYear int `koanf:"max_grad_year"`

	StaleAfter time.Duration `koanf:"stale_after"`
	Verbose    bool          `koanf:"verbose"`
}

// DefaultConfig returns conservative defaults for the DiveMeets profile site.
func DefaultConfig() *Config {
	return &Config{
		ProfileURL:       "https://secure.meetcontrol.com/divemeets/system/profile.php",
		LinkBaseURL:      "https://secure.meetcontrol.com/divemeets/system/",
		Parallelism:      32,
		Workers:          8,
		Delay:            0,
		RandomDelay:      0,
		Timeout:          5 * time.Second,
		BatchTimeout:     6 * time.Hour,
		ProgressEvery:    100,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		DedupeMaxSize:    500_000,
		BatchSize:        64,
		OutputFile:       "",
		OutputFormat:     "",
		DatabasePath:     "divers.db",
		MetricsNamespace: "UpdateDiveMeetsDiverTable",
		MinFinaAge:       14,
		MaxFinaAge:       18,
		MinGradYear:      2024,
		MaxGradYear:      2028,
		StaleAfter:       24 * time.Hour,
		Verbose:          false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("profile URL", c.ProfileURL); err != nil {
		return err
	}
	if err := validateURL("link base URL", c.LinkBaseURL); err != nil {
		return err
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("batch timeout cannot be negative")
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	switch c.OutputFormat {
	case "":
	case "csv", "json", "dual":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty when output format is %s", c.OutputFormat)
		}
	default:
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.GraphQLEndpoint != "" {
		if err := validateURL("graphql endpoint", c.GraphQLEndpoint); err != nil {
			return err
		}
	}
	if c.MinFinaAge > c.MaxFinaAge {
		return fmt.Errorf("min FINA age (%d) cannot exceed max FINA age (%d)", c.MinFinaAge, c.MaxFinaAge)
	}
	if c.MinGradYear > c.MaxGradYear {
		return fmt.Errorf("min grad year (%d) cannot exceed max grad year (%d)", c.MinGradYear, c.MaxGradYear)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale after must be positive")
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

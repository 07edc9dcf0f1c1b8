package config

import (
	"fmt"
	"time"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Output    OutputConfig    `mapstructure:"output"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgent          string        `mapstructure:"user_agent"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	FollowRedirects    bool          `mapstructure:"follow_redirects"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	Cookies            bool          `mapstructure:"cookies"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
}

type CrawlerConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
	// MaxPages caps the visited set; 0 means unlimited.
	MaxPages int `mapstructure:"max_pages"`
}

type WorkerConfig struct {
	Count int `mapstructure:"count"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type OutputConfig struct {
	File     string `mapstructure:"file"`
	Format   string `mapstructure:"format"`
	Progress bool   `mapstructure:"progress"`
}

// Validate rejects values the scanner cannot run with.
func (c *Config) Validate() error {
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0, got %d", c.Crawler.MaxDepth)
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0, got %d", c.Crawler.MaxPages)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1, got %d", c.Worker.Count)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive, got %d", c.HTTP.MaxBodyBytes)
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive, got %v", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.BurstSize < 1 {
		return fmt.Errorf("rate_limit.burst_size must be >= 1, got %d", c.RateLimit.BurstSize)
	}
	switch c.Output.Format {
	case "", "json", "yaml":
	default:
		return fmt.Errorf("output.format must be json or yaml, got %q", c.Output.Format)
	}
	return nil
}

// DefaultConfig mirrors the viper defaults registered in cmd/root.go
func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "warn",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		HTTP: HTTPConfig{
			Timeout:            10 * time.Second,
			InsecureSkipVerify: true,
			UserAgent:          "siteprobe/1.0",
			MaxBodyBytes:       10 * 1024 * 1024, // 10MB
			FollowRedirects:    true,
			MaxRedirects:       10,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			BurstSize:         10,
			MinDelay:          0,
		},
		Crawler: CrawlerConfig{
			MaxDepth: 3,
			MaxPages: 0,
		},
		Worker: WorkerConfig{
			Count: 5,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "siteprobe",
			Endpoint:    "localhost:4318",
			SampleRate:  1.0,
		},
		Output: OutputConfig{
			Format: "json",
		},
	}
}

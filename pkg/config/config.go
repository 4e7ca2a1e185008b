package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"SqueezeScan/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Scanner struct {
		Workers          int           `yaml:"workers"`           // concurrent series fetchers
		MinFetchInterval time.Duration `yaml:"min_fetch_interval"` // pacing between dispatches
		FetchJitter      time.Duration `yaml:"fetch_jitter"`       // random extra per dispatch
		LookbackDays     int           `yaml:"lookback_days"`
		MaxRetries       int           `yaml:"max_retries"`
		RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
		DefaultSectors   int           `yaml:"default_sectors"`
		DefaultMinDays   int           `yaml:"default_min_days"`
		DefaultPeriod    int           `yaml:"default_period"`
	} `yaml:"scanner"`
	DataSource struct {
		BoardURL     string        `yaml:"board_url"`
		KlineURL     string        `yaml:"kline_url"`
		Timeout      time.Duration `yaml:"timeout"`
		UserAgent    string        `yaml:"user_agent"`
		PageSize     int           `yaml:"page_size"`
	} `yaml:"datasource"`
	Cache struct {
		MemoryMaxSize   int `yaml:"memory_max_size"`
		SeriesMaxAgeHrs int `yaml:"series_max_age_hours"` // detail path only; scans use day freshness
		Redis           struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		MaxAttempts  int      `yaml:"max_attempts"`
	} `yaml:"kafka"`
	LLM struct {
		Endpoint    string        `yaml:"endpoint"`
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
	} `yaml:"llm"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p := util.ParseIntDefault(v, 0); p > 0 {
			c.Server.Port = p
		}
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Scanner.Workers == 0 {
		c.Scanner.Workers = 4
	}
	if c.Scanner.MinFetchInterval == 0 {
		c.Scanner.MinFetchInterval = 200 * time.Millisecond
	}
	if c.Scanner.FetchJitter == 0 {
		c.Scanner.FetchJitter = 150 * time.Millisecond
	}
	if c.Scanner.LookbackDays == 0 {
		c.Scanner.LookbackDays = 120
	}
	if c.Scanner.MaxRetries == 0 {
		c.Scanner.MaxRetries = 5
	}
	if c.Scanner.RetryBaseDelay == 0 {
		c.Scanner.RetryBaseDelay = time.Second
	}
	if c.Scanner.DefaultSectors == 0 {
		c.Scanner.DefaultSectors = 5
	}
	if c.Scanner.DefaultMinDays == 0 {
		c.Scanner.DefaultMinDays = 3
	}
	if c.Scanner.DefaultPeriod == 0 {
		c.Scanner.DefaultPeriod = 20
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 15 * time.Second
	}
	if c.DataSource.PageSize == 0 {
		c.DataSource.PageSize = 100
	}
	if c.Cache.MemoryMaxSize == 0 {
		c.Cache.MemoryMaxSize = 5000
	}
	if c.Cache.SeriesMaxAgeHrs == 0 {
		c.Cache.SeriesMaxAgeHrs = 4
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Scanner.Workers < 1 || c.Scanner.Workers > 16 {
		return fmt.Errorf("scanner.workers must be between 1 and 16, got %d", c.Scanner.Workers)
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.DataSource.BoardURL == "" {
		return fmt.Errorf("datasource.board_url is required")
	}
	if c.DataSource.KlineURL == "" {
		return fmt.Errorf("datasource.kline_url is required")
	}
	return nil
}

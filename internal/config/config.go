package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig            `yaml:"app"`
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	RabbitMQ  RabbitMQConfig       `yaml:"rabbitmq"`
	Logging   LoggingConfig        `yaml:"logging"`
	Worker    WorkerConfig         `yaml:"worker"`
	Upstream  UpstreamConfig       `yaml:"upstream"`
	Scheduler SchedulerConfig      `yaml:"scheduler"`
	Jobs      map[string]JobPolicy `yaml:"jobs"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig holds configuration for the external legislative data service
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Term           string        `yaml:"term"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// VoteDelay is the pause between consecutive per-vote calls, so the
	// upstream service is never hammered inside a single job.
	VoteDelay    time.Duration `yaml:"vote_delay"`
	SittingLimit int           `yaml:"sitting_limit"`
}

// SchedulerConfig holds ingestion trigger cadences and queue sweeps
type SchedulerConfig struct {
	VotesInterval      time.Duration `yaml:"votes_interval"`
	BillsInterval      time.Duration `yaml:"bills_interval"`
	ScoresInterval     time.Duration `yaml:"scores_interval"`
	StallTimeout       time.Duration `yaml:"stall_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	CompletedRetention time.Duration `yaml:"completed_retention"`
	FailedKeep         int           `yaml:"failed_keep"`
}

// JobPolicy holds per-job-type retry and concurrency settings
type JobPolicy struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Concurrency    int           `yaml:"concurrency"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the configuration needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	// the API service hosts the scheduler
	if c.Scheduler.VotesInterval <= 0 {
		return fmt.Errorf("scheduler votes_interval must be greater than 0")
	}

	if c.Scheduler.StallTimeout <= 0 {
		return fmt.Errorf("scheduler stall_timeout must be greater than 0")
	}

	return c.validateShared()
}

// ValidateWorkerConfig checks the configuration needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base_url is required")
	}

	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("upstream request_timeout must be greater than 0")
	}

	for name, policy := range c.Jobs {
		if policy.MaxAttempts < 0 {
			return fmt.Errorf("job %s: max_attempts must not be negative", name)
		}
		if policy.Concurrency < 0 {
			return fmt.Errorf("job %s: concurrency must not be negative", name)
		}
	}

	return c.validateShared()
}

// validateShared checks the configuration both services depend on
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Redis       RedisConfig   `yaml:"redis"`
	Backend     BackendConfig `yaml:"backend"`
	Worker      WorkerConfig  `yaml:"worker"`
	Logging     LoggingConfig `yaml:"logging"`
	Server      ServerConfig  `yaml:"server"`
	Events      EventsConfig  `yaml:"events"`
}

// RedisConfig describes the connection each worker opens to the shared store.
type RedisConfig struct {
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	PoolSize     int           `yaml:"pool_size" default:"1" validate:"gte=1"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"3s"`
}

// BackendConfig holds settings written to the store at startup. Zero leaves
// the store's own value in place.
type BackendConfig struct {
	Heartbeat time.Duration `yaml:"heartbeat" validate:"gte=0"`
}

type WorkerConfig struct {
	Name      string        `yaml:"name"`
	Queues    []string      `yaml:"queues" validate:"required,min=1,dive,required"`
	Strategy  string        `yaml:"strategy" default:"ordered" validate:"oneof=ordered round-robin random"`
	Interval  time.Duration `yaml:"interval" default:"5s" validate:"gt=0"`
	Processes int           `yaml:"processes" default:"1" validate:"gte=1,lte=256"`
	// Handler, when set, performs every job regardless of its klass.
	Handler string `yaml:"handler"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	TimeFormat string `yaml:"time_format"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type EventsConfig struct {
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic        string        `yaml:"topic" default:"qless-job-events"`
	RequiredAcks int           `yaml:"required_acks" default:"1" validate:"oneof=-1 0 1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd none"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
	Async        bool          `yaml:"async"`
}

type ClickHouseConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"9000" validate:"gte=1,lte=65535"`
	Database    string        `yaml:"database" default:"qless"`
	User        string        `yaml:"user" default:"default"`
	Password    string        `yaml:"password"`
	Table       string        `yaml:"table" default:"job_runs" validate:"required"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
}

// Load reads a YAML configuration file, fills unset fields with defaults and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables, then validates again.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("QLESS_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("QLESS_QUEUES"); v != "" {
		c.Worker.Queues = splitList(v)
	}
	if v := os.Getenv("QLESS_WORKER_NAME"); v != "" {
		c.Worker.Name = v
	}
	if v := os.Getenv("QLESS_STRATEGY"); v != "" {
		c.Worker.Strategy = v
	}
	if v := os.Getenv("QLESS_PROCESSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("QLESS_PROCESSES: %w", err)
		}
		c.Worker.Processes = n
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Events.Kafka.Brokers = splitList(v)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration against its struct rules.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

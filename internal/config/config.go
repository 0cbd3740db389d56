package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Auth         AuthConfig         `yaml:"auth"`
	Log          LogConfig          `yaml:"log"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
	Notification NotificationConfig `yaml:"notification"`
}

type HTTPConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`

	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DSN is the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	StateTTL time.Duration `yaml:"state_ttl"`
}

type PipelineConfig struct {
	FrameChannelSize int `yaml:"frame_channel_size"`
	StateChannelSize int `yaml:"state_channel_size"`
	AlertChannelSize int `yaml:"alert_channel_size"`

	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	FrameWriters int `yaml:"frame_writers"`
	StateWriters int `yaml:"state_writers"`
	AlertWorkers int `yaml:"alert_workers"`
}

type AuthConfig struct {
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	StaticKeys []string      `yaml:"static_keys"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MaintenanceConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	GraceDays         int           `yaml:"grace_days"`
	FirstOffsetDays   int           `yaml:"first_offset_days"`
	IntervalMonths    int           `yaml:"interval_months"`
	DeploymentWindows int           `yaml:"deployment_windows"`
	Workers           int           `yaml:"workers"`
}

type NotificationConfig struct {
	// Push is one of redis, mqtt, ws.
	Push string `yaml:"push"`

	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`

	EmailBaseURL string `yaml:"email_base_url"`
	EmailAPIKey  string `yaml:"email_api_key"`
	EmailSender  string `yaml:"email_sender"`

	SendTimeout time.Duration `yaml:"send_timeout"`
	DedupTTL    time.Duration `yaml:"dedup_ttl"`
}

// Load builds the configuration from defaults, then the optional YAML file
// at path, then environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setString(&c.HTTP.Port, "8001")

	setString(&c.Database.Host, "localhost")
	setString(&c.Database.Port, "5432")
	setString(&c.Database.User, "axle_user")
	setString(&c.Database.Password, "axle_password")
	setString(&c.Database.Name, "axle_monitor")
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 15
	}
	setDuration(&c.Database.QueryTimeout, 10*time.Second)

	setString(&c.Redis.Addr, "localhost:6379")
	setDuration(&c.Redis.StateTTL, 24*time.Hour)

	setInt(&c.Pipeline.FrameChannelSize, 10000)
	setInt(&c.Pipeline.StateChannelSize, 50000)
	setInt(&c.Pipeline.AlertChannelSize, 10000)
	setInt(&c.Pipeline.BatchSize, 500)
	setDuration(&c.Pipeline.FlushInterval, 100*time.Millisecond)
	setInt(&c.Pipeline.FrameWriters, 4)
	setInt(&c.Pipeline.StateWriters, 2)
	setInt(&c.Pipeline.AlertWorkers, 2)

	setDuration(&c.Auth.CacheTTL, 5*time.Minute)

	setString(&c.Log.Level, "info")
	setString(&c.Log.Format, "json")

	setDuration(&c.Maintenance.TickInterval, time.Minute)
	setInt(&c.Maintenance.GraceDays, 21)
	setInt(&c.Maintenance.FirstOffsetDays, 30)
	setInt(&c.Maintenance.IntervalMonths, 1)
	setInt(&c.Maintenance.DeploymentWindows, 12)
	setInt(&c.Maintenance.Workers, 4)

	setString(&c.Notification.Push, "redis")
	setString(&c.Notification.MQTTClientID, "axle-monitor")
	setString(&c.Notification.EmailSender, "alerts@axle-monitor.local")
	setDuration(&c.Notification.SendTimeout, 5*time.Second)
	setDuration(&c.Notification.DedupTTL, 7*24*time.Hour)
}

func (c *Config) applyEnv() {
	c.HTTP.Port = getEnv("HTTP_PORT", c.HTTP.Port)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(c.Database.MaxConns)))
	c.Database.QueryTimeout = getEnvDuration("DB_QUERY_TIMEOUT", c.Database.QueryTimeout)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Pipeline.FrameChannelSize = getEnvInt("FRAME_CHANNEL_SIZE", c.Pipeline.FrameChannelSize)
	c.Pipeline.StateChannelSize = getEnvInt("STATE_CHANNEL_SIZE", c.Pipeline.StateChannelSize)
	c.Pipeline.AlertChannelSize = getEnvInt("ALERT_CHANNEL_SIZE", c.Pipeline.AlertChannelSize)
	c.Pipeline.BatchSize = getEnvInt("DB_BATCH_SIZE", c.Pipeline.BatchSize)
	c.Pipeline.FlushInterval = getEnvDuration("DB_FLUSH_INTERVAL", c.Pipeline.FlushInterval)
	c.Pipeline.FrameWriters = getEnvInt("FRAME_WRITERS", c.Pipeline.FrameWriters)
	c.Pipeline.StateWriters = getEnvInt("STATE_WRITERS", c.Pipeline.StateWriters)
	c.Pipeline.AlertWorkers = getEnvInt("ALERT_WORKERS", c.Pipeline.AlertWorkers)

	c.Auth.CacheTTL = getEnvDuration("AUTH_CACHE_TTL", c.Auth.CacheTTL)
	if keys := getEnv("VALID_API_KEYS", ""); keys != "" {
		c.Auth.StaticKeys = splitList(keys)
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Maintenance.TickInterval = getEnvDuration("MAINTENANCE_TICK_INTERVAL", c.Maintenance.TickInterval)
	c.Maintenance.GraceDays = getEnvInt("MAINTENANCE_GRACE_DAYS", c.Maintenance.GraceDays)
	c.Maintenance.Workers = getEnvInt("MAINTENANCE_WORKERS", c.Maintenance.Workers)

	c.Notification.Push = getEnv("NOTIFY_PUSH", c.Notification.Push)
	c.Notification.MQTTBroker = getEnv("MQTT_BROKER", c.Notification.MQTTBroker)
	c.Notification.MQTTClientID = getEnv("MQTT_CLIENT_ID", c.Notification.MQTTClientID)
	c.Notification.EmailBaseURL = getEnv("EMAIL_BASE_URL", c.Notification.EmailBaseURL)
	c.Notification.EmailAPIKey = getEnv("EMAIL_API_KEY", c.Notification.EmailAPIKey)
	c.Notification.EmailSender = getEnv("EMAIL_SENDER", c.Notification.EmailSender)
	c.Notification.SendTimeout = getEnvDuration("NOTIFY_SEND_TIMEOUT", c.Notification.SendTimeout)
}

func (c *Config) validate() error {
	var errs []error
	if c.Maintenance.GraceDays < 0 {
		errs = append(errs, fmt.Errorf("maintenance.grace_days must not be negative"))
	}
	if c.Maintenance.IntervalMonths <= 0 {
		errs = append(errs, fmt.Errorf("maintenance.interval_months must be positive"))
	}
	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be positive"))
	}
	switch c.Notification.Push {
	case "redis", "ws":
	case "mqtt":
		if c.Notification.MQTTBroker == "" {
			errs = append(errs, fmt.Errorf("notification.mqtt_broker is required for mqtt push"))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.push %q is not one of redis, mqtt, ws", c.Notification.Push))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

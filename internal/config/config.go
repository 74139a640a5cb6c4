package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// EnvPrefix is prepended to every environment override, e.g. MQTTBRIDGE_MQTT_BROKERS.
const EnvPrefix = "MQTTBRIDGE"

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	MQTT       MQTTConfig      `mapstructure:"mqtt"`
	Bridge     BridgeConfig    `mapstructure:"bridge"`
	Relay      RelayConfig     `mapstructure:"relay"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	BodyLimit       string        `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // json | console
}

type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CAFile             string `mapstructure:"ca_file"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	ServerName         string `mapstructure:"server_name"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type MQTTConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AutoReconnect  bool          `mapstructure:"auto_reconnect"`
	ConnectRetry   bool          `mapstructure:"connect_retry"`
	TLS            TLSConfig     `mapstructure:"tls"`
}

type RouteLogConfig struct {
	Verbosity string `mapstructure:"verbosity"` // off | minimal | full
	Multiline bool   `mapstructure:"multiline"`
}

type RouteConfig struct {
	Name      string         `mapstructure:"name"`
	Method    string         `mapstructure:"method"`
	Path      string         `mapstructure:"path"`
	Topic     string         `mapstructure:"topic"`
	QoS       int            `mapstructure:"qos"`
	Retained  bool           `mapstructure:"retained"`
	ClearBody bool           `mapstructure:"clear_body"`
	Log       RouteLogConfig `mapstructure:"log"`
}

type BridgeConfig struct {
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	Routes         []RouteConfig `mapstructure:"routes"`
	// Twins adds a POST /twins/<name> route publishing to <name>-to-real for each entry.
	Twins []string `mapstructure:"twins"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type SinkConfig struct {
	Name      string        `mapstructure:"name"`
	Enabled   bool          `mapstructure:"enabled"`
	URL       string        `mapstructure:"url"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type RelayConfig struct {
	Topic       string         `mapstructure:"topic"`
	QoS         int            `mapstructure:"qos"`
	EventType   string         `mapstructure:"event_type"`
	EventSource string         `mapstructure:"event_source"`
	MaxAttempts int            `mapstructure:"max_attempts"`
	Buffer      int            `mapstructure:"buffer"`
	Workers     int            `mapstructure:"workers"`
	Log         RouteLogConfig `mapstructure:"log"`
	Sinks       []SinkConfig   `mapstructure:"sinks"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	Route          string   `mapstructure:"route"` // bridge route name records are fed through
	Workers        int      `mapstructure:"workers"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

// Enabled reports whether a DSN was configured.
func (d DatabaseConfig) Enabled() bool { return strings.TrimSpace(d.DSN) != "" }

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

type RateLimitConfig struct {
	RPS    int           `mapstructure:"rps"`
	Window time.Duration `mapstructure:"window"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (MQTTBRIDGE_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return Config{}, fmt.Errorf("merge %s: %w", path, err)
			}
		}
	}

	// env override (MQTTBRIDGE_MQTT_BROKERS, MQTTBRIDGE_HTTP_ADDR, ...)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	if len(c.MQTT.Brokers) == 0 {
		return errors.New("mqtt.brokers: at least one broker is required")
	}
	if len(c.Bridge.Routes) == 0 && len(c.Bridge.Twins) == 0 {
		return errors.New("bridge.routes: at least one route is required")
	}
	if c.Bridge.PublishTimeout <= 0 {
		return fmt.Errorf("bridge.publish_timeout: must be positive, got %s", c.Bridge.PublishTimeout)
	}
	for i, r := range c.Bridge.Routes {
		if r.QoS < 0 || r.QoS > 2 {
			return fmt.Errorf("bridge.routes[%d].qos: must be 0, 1 or 2", i)
		}
	}
	return nil
}

// a missing --config file is fine, defaults and env still apply
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env                    string   `mapstructure:"env"`
	Port                   int      `mapstructure:"port"`
	NodeID                 string   `mapstructure:"node_id"`
	Store                  string   `mapstructure:"store"` // mongo | memory
	SeedUsers              []string `mapstructure:"seed_users"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Addr               string `mapstructure:"addr"`
	Password           string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	Prefix             string `mapstructure:"prefix"`
	PresenceTTLSeconds int    `mapstructure:"presence_ttl_seconds"`
}

type EventsConfig struct {
	Broker string `mapstructure:"broker"` // kafka | nats | none
}

type KafkaConfig struct {
	Brokers            []string `mapstructure:"brokers"`
	TopicEvents        string   `mapstructure:"topic_events"`
	TopicNotifications string   `mapstructure:"topic_notifications"`
	GroupID            string   `mapstructure:"group_id"`
	DLQTopic           string   `mapstructure:"dlq_topic"`
	MaxRetries         int      `mapstructure:"max_retries"`
	RetryBackoffMs     int      `mapstructure:"retry_backoff_ms"`
	ConsumeRequests    bool     `mapstructure:"consume_requests"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	RateLimitPerSec      int   `mapstructure:"rate_limit_per_sec"`
	SendQueueSize        int   `mapstructure:"send_queue_size"`
}

type HTTPConfig struct {
	RateLimitPerMin int `mapstructure:"rate_limit_per_min"`
}

type ChatConfig struct {
	MaxBodyLength int `mapstructure:"max_body_length"`
}

type BreakerConfig struct {
	MaxFailures     uint32 `mapstructure:"max_failures"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

type ConsulConfig struct {
	Addr        string `mapstructure:"addr"`
	ServiceName string `mapstructure:"service_name"`
	ServiceHost string `mapstructure:"service_host"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Log     LogConfig     `mapstructure:"log"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Events  EventsConfig  `mapstructure:"events"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	NATS    NATSConfig    `mapstructure:"nats"`
	WS      WSConfig      `mapstructure:"ws"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Consul  ConsulConfig  `mapstructure:"consul"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// derived values
	ShutdownTimeout time.Duration
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	PongWait        time.Duration
	PresenceTTL     time.Duration
	RetryBackoff    time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8085)
	v.SetDefault("app.node_id", "")
	v.SetDefault("app.store", "mongo")
	v.SetDefault("app.seed_users", []string{})
	v.SetDefault("app.shutdown_timeout_seconds", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.hs_secret", "")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "gigmarket")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "rt")
	v.SetDefault("redis.presence_ttl_seconds", 60)
	v.SetDefault("events.broker", "none")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_events", "chat.events")
	v.SetDefault("kafka.topic_notifications", "notifications.requested")
	v.SetDefault("kafka.group_id", "realtime-service")
	v.SetDefault("kafka.dlq_topic", "notifications.dlq")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff_ms", 200)
	v.SetDefault("kafka.consume_requests", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "chat")
	v.SetDefault("ws.ping_interval_seconds", 30)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 64*1024)
	v.SetDefault("ws.rate_limit_per_sec", 20)
	v.SetDefault("ws.send_queue_size", 256)
	v.SetDefault("http.rate_limit_per_min", 120)
	v.SetDefault("chat.max_body_length", 1000)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_seconds", 60)
	v.SetDefault("breaker.timeout_seconds", 30)
	v.SetDefault("consul.addr", "")
	v.SetDefault("consul.service_name", "realtime-service")
	v.SetDefault("consul.service_host", "")
	v.SetDefault("metrics.enabled", true)
}

// Load reads .env, then the optional config file at path, then environment
// variables (APP_PORT, MONGO_URI, ...) over built-in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// legacy variable names used by the rest of the platform
	_ = v.BindEnv("jwt.hs_secret", "JWT_HS_SECRET", "JWT_SECRET")
	_ = v.BindEnv("app.port", "APP_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.derive()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) derive() {
	if c.App.NodeID == "" {
		c.App.NodeID = uuid.NewString()
	}
	c.JWT.Alg = strings.ToUpper(c.JWT.Alg)
	c.Events.Broker = strings.ToLower(c.Events.Broker)
	c.ShutdownTimeout = time.Duration(c.App.ShutdownTimeoutSeconds) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	// a peer that misses two pings is gone
	c.PongWait = 2 * c.PingInterval
	c.PresenceTTL = time.Duration(c.Redis.PresenceTTLSeconds) * time.Second
	c.RetryBackoff = time.Duration(c.Kafka.RetryBackoffMs) * time.Millisecond
}

func (c *Config) validate() error {
	var errs []error
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port out of range: %d", c.App.Port))
	}
	switch c.App.Store {
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database are required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown app.store %q", c.App.Store))
	}
	switch c.JWT.Alg {
	case "HS256":
		if c.JWT.HSSecret == "" {
			errs = append(errs, errors.New("jwt.hs_secret (JWT_SECRET) is required for HS256"))
		}
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			errs = append(errs, errors.New("jwt.public_key_path is required for RS256"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported jwt.alg %q", c.JWT.Alg))
	}
	switch c.Events.Broker {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.TopicEvents == "" {
			errs = append(errs, errors.New("kafka.brokers and kafka.topic_events are required"))
		}
	case "nats":
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is required"))
		}
	case "none", "":
	default:
		errs = append(errs, fmt.Errorf("unknown events.broker %q", c.Events.Broker))
	}
	if c.Kafka.ConsumeRequests && (len(c.Kafka.Brokers) == 0 || c.Kafka.TopicNotifications == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic_notifications are required to consume notification requests"))
	}
	if c.PingInterval <= 0 || c.WriteDeadline <= 0 {
		errs = append(errs, errors.New("ws ping interval and write deadline must be positive"))
	}
	// presence is refreshed once per ping
	if c.PingInterval > 0 && c.PresenceTTL < 2*c.PingInterval {
		errs = append(errs, fmt.Errorf("redis.presence_ttl_seconds must be at least twice ws.ping_interval_seconds (%s)", 2*c.PingInterval))
	}
	if c.WS.RateLimitPerSec <= 0 {
		errs = append(errs, errors.New("ws.rate_limit_per_sec must be positive"))
	}
	return errors.Join(errs...)
}

// Dev reports whether the service runs with development logging.
func (c *Config) Dev() bool {
	return c.App.Env == "development" || c.App.Env == "dev"
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/lumivid/messaging/pkg/config"
	"github.com/lumivid/messaging/pkg/pubsub"
	"github.com/lumivid/messaging/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Gateway   GatewayConfig
	Presence  PresenceConfig
	Chat      ChatConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     pubsub.RedisConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type GatewayConfig struct {
	GlobalCap     int           `mapstructure:"global_cap"`
	PerUserCap    int           `mapstructure:"per_user_cap"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type PresenceConfig struct {
	IdleThreshold     time.Duration `mapstructure:"idle_threshold"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
}

type ChatConfig struct {
	RecallWindow      time.Duration `mapstructure:"recall_window"`
	MaxPageSize       int           `mapstructure:"max_page_size"`
	MaxAttachmentSize int64         `mapstructure:"max_attachment_size"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"db_name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type KafkaConfig struct {
	Enabled bool
	Brokers string
	Topic   string
}

type StorageConfig struct {
	Driver string // local, s3
	Local  storage.LocalConfig
	S3     storage.S3Config
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("gateway.global_cap", 500)
	v.SetDefault("gateway.per_user_cap", 3)
	v.SetDefault("gateway.idle_timeout", "180s")
	v.SetDefault("gateway.sweep_interval", "30s")
	v.SetDefault("presence.idle_threshold", "60s")
	v.SetDefault("presence.cleanup_interval", "30s")
	v.SetDefault("presence.broadcast_interval", "30s")
	v.SetDefault("chat.recall_window", "120s")
	v.SetDefault("chat.max_page_size", 100)
	v.SetDefault("chat.max_attachment_size", 52428800)
	v.SetDefault("auth.jwt_secret", "dev-secret-change-me")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "lumivid-messaging")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "messaging.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-notifications")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./uploads")
	v.SetDefault("log.level", "info")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Gateway.IdleTimeout = parseDuration(v, "gateway.idle_timeout", 180*time.Second)
	cfg.Gateway.SweepInterval = parseDuration(v, "gateway.sweep_interval", 30*time.Second)
	cfg.Presence.IdleThreshold = parseDuration(v, "presence.idle_threshold", 60*time.Second)
	cfg.Presence.CleanupInterval = parseDuration(v, "presence.cleanup_interval", 30*time.Second)
	cfg.Presence.BroadcastInterval = parseDuration(v, "presence.broadcast_interval", 30*time.Second)
	cfg.Chat.RecallWindow = parseDuration(v, "chat.recall_window", 120*time.Second)
	cfg.Auth.TokenTTL = parseDuration(v, "auth.token_ttl", 24*time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}

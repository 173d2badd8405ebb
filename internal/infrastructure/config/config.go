package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Dispatcher   DispatcherConfig
	Housekeeping HousekeepingConfig
	Confirmation ConfirmationConfig
	Linking      LinkingConfig
	Secrets      SecretsConfig
	Telegram     TelegramConfig
	Messenger    MessengerConfig
	WhatsApp     WhatsAppConfig
	Viber        ViberConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. An empty host disables Redis;
// webhook dedup and dashboard fan-out then stay in-process.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis host is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for tenant API tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	HandlerTimeout    time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	TrustedProxies    []string
}

// DispatcherConfig controls the outbound message worker
type DispatcherConfig struct {
	Enabled              bool
	Interval             time.Duration // tick interval, floor 5s
	BatchSize            int           // rows claimed per tick
	RetryDelay           time.Duration // reschedule delay for waiting/transient messages
	MaxTransientAttempts int           // give up after this many; 0 takes the default of 12
	SendTimeout          time.Duration // per provider call
	Lease                time.Duration // per-message lease, renewed before each send; at least 2x SendTimeout
	DistributedLock      bool          // take a redsync lock per tick (requires Redis)
	SendRatePerSecond    float64       // per credential
	SendBurst            int
}

// HousekeepingConfig controls periodic purges
type HousekeepingConfig struct {
	Enabled              bool
	Schedule             string // cron spec with seconds
	TokenRetention       time.Duration
	LinkRetention        time.Duration
	SentMessageRetention time.Duration
}

// ConfirmationConfig holds confirmation link settings
type ConfirmationConfig struct {
	LinkTTL       time.Duration
	SigningSecret string
	PublicBaseURL string // e.g. https://shop.example.com
}

// LinkingConfig holds identity linking settings
type LinkingConfig struct {
	TokenTTL     time.Duration
	SharedWindow time.Duration
}

// SecretsConfig holds the key tenant channel secrets are sealed with
type SecretsConfig struct {
	EncryptionKey string // 32 bytes, hex or raw
}

// TelegramConfig holds the platform-shared bot and webhook settings
type TelegramConfig struct {
	SharedBotToken    string
	SharedBotUsername string
	WebhookSecretSalt string
	WebhookURL        string // public URL of POST /channel/telegram/webhook; empty skips setWebhook
	APIBaseURL        string
}

// MessengerConfig holds the platform-shared page and app settings
type MessengerConfig struct {
	SharedPageID    string
	SharedPageToken string
	AppSecret       string
	VerifyToken     string
	GraphBaseURL    string
}

// WhatsAppConfig holds Cloud API settings and the platform Twilio fallback
type WhatsAppConfig struct {
	CloudBaseURL     string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioBaseURL    string
}

// ViberConfig holds the platform-shared Viber bot
type ViberConfig struct {
	SharedToken      string
	SharedSenderName string
	SharedBotURI     string
	BaseURL          string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	LogsEnabled       bool
	DBTraceEnabled    bool // Enable database query tracing (otelgorm)
	ProfilingEnabled  bool
	PyroscopeAddress  string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ORDERBOT_ prefix (e.g., ORDERBOT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ORDERBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true must be registered so GetBool can tell
	// "unset" from "false".
	v.SetDefault("dispatcher.enabled", true)
	v.SetDefault("housekeeping.enabled", true)
	v.SetDefault("http.rate_limit_enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			HandlerTimeout:    v.GetDuration("http.handler_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Dispatcher: DispatcherConfig{
			Enabled:              v.GetBool("dispatcher.enabled"),
			Interval:             v.GetDuration("dispatcher.interval"),
			BatchSize:            v.GetInt("dispatcher.batch_size"),
			RetryDelay:           v.GetDuration("dispatcher.retry_delay"),
			MaxTransientAttempts: v.GetInt("dispatcher.max_transient_attempts"),
			SendTimeout:          v.GetDuration("dispatcher.send_timeout"),
			Lease:                v.GetDuration("dispatcher.lease"),
			DistributedLock:      v.GetBool("dispatcher.distributed_lock"),
			SendRatePerSecond:    v.GetFloat64("dispatcher.send_rate_per_second"),
			SendBurst:            v.GetInt("dispatcher.send_burst"),
		},
		Housekeeping: HousekeepingConfig{
			Enabled:              v.GetBool("housekeeping.enabled"),
			Schedule:             v.GetString("housekeeping.schedule"),
			TokenRetention:       v.GetDuration("housekeeping.token_retention"),
			LinkRetention:        v.GetDuration("housekeeping.link_retention"),
			SentMessageRetention: v.GetDuration("housekeeping.sent_message_retention"),
		},
		Confirmation: ConfirmationConfig{
			LinkTTL:       v.GetDuration("confirmation.link_ttl"),
			SigningSecret: v.GetString("confirmation.signing_secret"),
			PublicBaseURL: v.GetString("confirmation.public_base_url"),
		},
		Linking: LinkingConfig{
			TokenTTL:     v.GetDuration("linking.token_ttl"),
			SharedWindow: v.GetDuration("linking.shared_window"),
		},
		Secrets: SecretsConfig{
			EncryptionKey: v.GetString("secrets.encryption_key"),
		},
		Telegram: TelegramConfig{
			SharedBotToken:    v.GetString("telegram.shared_bot_token"),
			SharedBotUsername: v.GetString("telegram.shared_bot_username"),
			WebhookSecretSalt: v.GetString("telegram.webhook_secret_salt"),
			WebhookURL:        v.GetString("telegram.webhook_url"),
			APIBaseURL:        v.GetString("telegram.api_base_url"),
		},
		Messenger: MessengerConfig{
			SharedPageID:    v.GetString("messenger.shared_page_id"),
			SharedPageToken: v.GetString("messenger.shared_page_token"),
			AppSecret:       v.GetString("messenger.app_secret"),
			VerifyToken:     v.GetString("messenger.verify_token"),
			GraphBaseURL:    v.GetString("messenger.graph_base_url"),
		},
		WhatsApp: WhatsAppConfig{
			CloudBaseURL:     v.GetString("whatsapp.cloud_base_url"),
			TwilioAccountSID: v.GetString("whatsapp.twilio_account_sid"),
			TwilioAuthToken:  v.GetString("whatsapp.twilio_auth_token"),
			TwilioFrom:       v.GetString("whatsapp.twilio_from"),
			TwilioBaseURL:    v.GetString("whatsapp.twilio_base_url"),
		},
		Viber: ViberConfig{
			SharedToken:      v.GetString("viber.shared_token"),
			SharedSenderName: v.GetString("viber.shared_sender_name"),
			SharedBotURI:     v.GetString("viber.shared_bot_uri"),
			BaseURL:          v.GetString("viber.base_url"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// MinDispatchInterval is the floor for the dispatcher tick
const MinDispatchInterval = 5 * time.Second

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "orderbot"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "orderbot"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 10
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "orderbot"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.HandlerTimeout == 0 {
		cfg.HTTP.HandlerTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 60
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Dispatcher.Interval == 0 {
		cfg.Dispatcher.Interval = 30 * time.Second
	}
	if cfg.Dispatcher.Interval < MinDispatchInterval {
		cfg.Dispatcher.Interval = MinDispatchInterval
	}
	if cfg.Dispatcher.BatchSize == 0 {
		cfg.Dispatcher.BatchSize = 50
	}
	if cfg.Dispatcher.RetryDelay == 0 {
		cfg.Dispatcher.RetryDelay = 5 * time.Minute
	}
	if cfg.Dispatcher.MaxTransientAttempts == 0 {
		cfg.Dispatcher.MaxTransientAttempts = 12
	}
	if cfg.Dispatcher.SendTimeout == 0 {
		cfg.Dispatcher.SendTimeout = 15 * time.Second
	}
	if cfg.Dispatcher.Lease == 0 {
		cfg.Dispatcher.Lease = 2 * time.Minute
	}
	if cfg.Dispatcher.SendRatePerSecond == 0 {
		cfg.Dispatcher.SendRatePerSecond = 25
	}
	if cfg.Dispatcher.SendBurst == 0 {
		cfg.Dispatcher.SendBurst = 5
	}
	if cfg.Housekeeping.Schedule == "" {
		cfg.Housekeeping.Schedule = "0 15 * * * *"
	}
	if cfg.Housekeeping.TokenRetention == 0 {
		cfg.Housekeeping.TokenRetention = 7 * 24 * time.Hour
	}
	if cfg.Housekeeping.LinkRetention == 0 {
		cfg.Housekeeping.LinkRetention = 30 * 24 * time.Hour
	}
	if cfg.Housekeeping.SentMessageRetention == 0 {
		cfg.Housekeeping.SentMessageRetention = 90 * 24 * time.Hour
	}
	if cfg.Confirmation.LinkTTL == 0 {
		cfg.Confirmation.LinkTTL = 48 * time.Hour
	}
	if cfg.Confirmation.PublicBaseURL == "" {
		cfg.Confirmation.PublicBaseURL = "http://localhost:" + cfg.App.Port
	}
	if cfg.Linking.TokenTTL == 0 {
		cfg.Linking.TokenTTL = 24 * time.Hour
	}
	if cfg.Linking.SharedWindow == 0 {
		cfg.Linking.SharedWindow = 30 * time.Minute
	}
	if cfg.Telegram.APIBaseURL == "" {
		cfg.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if cfg.Messenger.GraphBaseURL == "" {
		cfg.Messenger.GraphBaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.WhatsApp.CloudBaseURL == "" {
		cfg.WhatsApp.CloudBaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.WhatsApp.TwilioBaseURL == "" {
		cfg.WhatsApp.TwilioBaseURL = "https://api.twilio.com"
	}
	if cfg.Viber.BaseURL == "" {
		cfg.Viber.BaseURL = "https://chatapi.viber.com/pa"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "orderbot"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
}

func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Dispatcher.BatchSize <= 0 {
		return fmt.Errorf("dispatcher.batch_size must be positive")
	}
	if c.Dispatcher.MaxTransientAttempts < 0 {
		return fmt.Errorf("dispatcher.max_transient_attempts cannot be negative")
	}
	if c.Dispatcher.Lease < 2*c.Dispatcher.SendTimeout {
		return fmt.Errorf("dispatcher.lease (%s) must be at least twice dispatcher.send_timeout (%s)",
			c.Dispatcher.Lease, c.Dispatcher.SendTimeout)
	}
	if c.Dispatcher.DistributedLock && !c.Redis.Enabled() {
		return fmt.Errorf("dispatcher.distributed_lock requires redis.host")
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if len(c.Confirmation.SigningSecret) < 32 {
			return fmt.Errorf("confirmation.signing_secret must be at least 32 characters in production")
		}
		if c.Secrets.EncryptionKey == "" {
			return fmt.Errorf("secrets.encryption_key is required in production")
		}
		if c.Telegram.WebhookSecretSalt == "" {
			return fmt.Errorf("telegram.webhook_secret_salt is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

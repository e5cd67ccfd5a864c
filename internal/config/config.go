package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Push     PushConfig
	SMS      SMSConfig
	Redis    RedisConfig
	S3       S3Config
}

type AppConfig struct {
	Env string
}

// Development reports whether raw internal error messages may be returned to clients.
func (c AppConfig) Development() bool {
	return c.Env == "development"
}

type LogConfig struct {
	Level  string
	Format string
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// AllowedOrigins are websocket origin patterns. Empty accepts any origin.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Path string
}

type AuthConfig struct {
	JWTSecret              string
	TokenTTL               time.Duration
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	BootstrapAdminName     string
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

type SMSConfig struct {
	BaseURL  string
	APIKey   string
	Template string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type S3Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("database.path", "brts.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.bootstrap_admin_email", "")
	v.SetDefault("auth.bootstrap_admin_password", "")
	v.SetDefault("auth.bootstrap_admin_name", "Administrator")
	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "mailto:noreply@suratbrts.in")
	v.SetDefault("sms.base_url", "")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.template", "OTP1")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "brts:realtime")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "ap-south-1")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.passphrase", "")
}

// Load reads config.yaml from the working directory or ./configs when present,
// then applies BRTS_* environment overrides (BRTS_HTTP_PORT, BRTS_DATABASE_PATH, ...).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("BRTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{Env: v.GetString("app.env")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		HTTP: HTTPConfig{
			Port:           v.GetString("http.port"),
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			AllowedOrigins: v.GetStringSlice("http.allowed_origins"),
		},
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Auth: AuthConfig{
			JWTSecret:              v.GetString("auth.jwt_secret"),
			TokenTTL:               v.GetDuration("auth.token_ttl"),
			BootstrapAdminEmail:    v.GetString("auth.bootstrap_admin_email"),
			BootstrapAdminPassword: v.GetString("auth.bootstrap_admin_password"),
			BootstrapAdminName:     v.GetString("auth.bootstrap_admin_name"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  v.GetString("push.vapid_public_key"),
			VAPIDPrivateKey: v.GetString("push.vapid_private_key"),
			Subscriber:      v.GetString("push.subscriber"),
		},
		SMS: SMSConfig{
			BaseURL:  v.GetString("sms.base_url"),
			APIKey:   v.GetString("sms.api_key"),
			Template: v.GetString("sms.template"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		S3: S3Config{
			Endpoint:   v.GetString("s3.endpoint"),
			Bucket:     v.GetString("s3.bucket"),
			Region:     v.GetString("s3.region"),
			AccessKey:  v.GetString("s3.access_key"),
			SecretKey:  v.GetString("s3.secret_key"),
			Passphrase: v.GetString("s3.passphrase"),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		if !cfg.App.Development() {
			return nil, errors.New("auth.jwt_secret is required outside development")
		}
		cfg.Auth.JWTSecret = "development-only-secret"
	}
	return cfg, nil
}

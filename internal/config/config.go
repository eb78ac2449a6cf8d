package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the web service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string
	Locale  string

	CORSAllowOrigins string

	APIBaseURL     string
	RequestTimeout time.Duration

	UploadMaxBytes       int64
	UploadMaxRetries     int
	UploadAttemptTimeout time.Duration

	DashboardPassword   string
	DashboardLockSecret string
	DashboardSessionTTL time.Duration
	UnlockRateLimit     int

	DatabaseURL       string
	RedisURL          string
	NATSURL           string
	EventChannelBase  string
	PublicCacheTTL    time.Duration
	TempUploadTTL     time.Duration
	TempSweepInterval time.Duration

	CloudinaryCloudName      string
	CloudinaryAPIKey         string
	CloudinaryAPISecret      string
	CloudinaryTransformation string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("VOLUNTEER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Volunteer Hub Web")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.locale", "vi")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("api.base_url", "http://localhost:3001/api")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.max_retries", 2)
	v.SetDefault("upload.attempt_timeout", "120s")
	v.SetDefault("dashboard.session_ttl", "2h")
	v.SetDefault("dashboard.unlock_rate_limit", 5)
	v.SetDefault("database.url", "sqlite://volunteer-hub.db")
	v.SetDefault("events.channel", "volunteer")
	v.SetDefault("public.cache_ttl", "5m")
	v.SetDefault("temp_upload.ttl", "24h")
	v.SetDefault("temp_upload.sweep_interval", "15m")

	durations := map[string]time.Duration{}
	for _, key := range []string{"api.timeout", "upload.attempt_timeout", "dashboard.session_ttl", "public.cache_ttl", "temp_upload.ttl", "temp_upload.sweep_interval"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                  v.GetString("app.name"),
		AppEnv:                   v.GetString("app.env"),
		AppPort:                  v.GetString("app.port"),
		Locale:                   strings.ToLower(v.GetString("app.locale")),
		CORSAllowOrigins:         v.GetString("cors.allow_origins"),
		APIBaseURL:               strings.TrimRight(v.GetString("api.base_url"), "/"),
		RequestTimeout:           durations["api.timeout"],
		UploadMaxBytes:           v.GetInt64("upload.max_bytes"),
		UploadMaxRetries:         v.GetInt("upload.max_retries"),
		UploadAttemptTimeout:     durations["upload.attempt_timeout"],
		DashboardPassword:        v.GetString("dashboard.password"),
		DashboardLockSecret:      v.GetString("dashboard.lock_secret"),
		DashboardSessionTTL:      durations["dashboard.session_ttl"],
		UnlockRateLimit:          v.GetInt("dashboard.unlock_rate_limit"),
		DatabaseURL:              v.GetString("database.url"),
		RedisURL:                 v.GetString("redis.url"),
		NATSURL:                  v.GetString("nats.url"),
		EventChannelBase:         v.GetString("events.channel"),
		PublicCacheTTL:           durations["public.cache_ttl"],
		TempUploadTTL:            durations["temp_upload.ttl"],
		TempSweepInterval:        durations["temp_upload.sweep_interval"],
		CloudinaryCloudName:      v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:         v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:      v.GetString("cloudinary.api_secret"),
		CloudinaryTransformation: v.GetString("cloudinary.transformation"),
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("api base url must be provided")
	}

	if cfg.DashboardPassword == "" || cfg.DashboardLockSecret == "" {
		return Config{}, fmt.Errorf("dashboard password and lock secret must be provided")
	}

	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 10 * 1024 * 1024
	}

	if cfg.UploadMaxRetries < 0 {
		cfg.UploadMaxRetries = 0
	}

	if cfg.UnlockRateLimit <= 0 {
		cfg.UnlockRateLimit = 5
	}

	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and its vendors.
type Config struct {
	ListenAddr         string   `env:"LISTEN_ADDR" envDefault:":8080"`
	MySQLDSN           string   `env:"MYSQL_DSN"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RequestTimeout     time.Duration
	HTTPTimeoutSeconds int `env:"HTTP_TIMEOUT_SECONDS" envDefault:"60"`

	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`
	CookieSecure      bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain      string `env:"COOKIE_DOMAIN"`

	RazorpayKeyID         string `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
	RazorpayBaseURL       string `env:"RAZORPAY_BASE_URL" envDefault:"https://api.razorpay.com"`
	PaymentCurrency       string `env:"PAYMENT_CURRENCY" envDefault:"INR"`
	OrderExpiryHours      int    `env:"ORDER_EXPIRY_HOURS" envDefault:"24"`

	PerplexityAPIKey       string `env:"PERPLEXITY_API_KEY"`
	PerplexityBaseURL      string `env:"PERPLEXITY_BASE_URL" envDefault:"https://api.perplexity.ai"`
	PerplexityDefaultModel string `env:"PERPLEXITY_DEFAULT_MODEL" envDefault:"sonar"`
	StreamMaxParseErrors   int    `env:"STREAM_MAX_PARSE_ERRORS" envDefault:"3"`
	ChatHistoryLimit       int    `env:"CHAT_HISTORY_LIMIT" envDefault:"20"`

	QuotaResetCron string `env:"QUOTA_RESET_CRON" envDefault:"0 0 1 * *"`

	AdminListenAddr   string `env:"ADMIN_LISTEN_ADDR" envDefault:":8081"`
	AdminUsername     string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3Region       string `env:"S3_REGION"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	S3Prefix       string `env:"S3_PREFIX" envDefault:"transcripts"`
	S3LinkTTLHours int    `env:"S3_LINK_TTL_HOURS" envDefault:"24"`

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID int64  `env:"TELEGRAM_ADMIN_CHAT_ID"`
}

// ExportEnabled reports whether transcript export to object storage is configured.
func (c Config) ExportEnabled() bool {
	return c.S3Bucket != ""
}

func (c Config) AdminEnabled() bool {
	return c.AdminPasswordHash != ""
}

func (c Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAdminChatID != 0
}

// Load reads configuration from an optional env file and the process environment.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.RequestTimeout = time.Second * time.Duration(cfg.HTTPTimeoutSeconds)
	cfg.SupabaseURL = normalizeBaseURL(cfg.SupabaseURL)
	cfg.PerplexityBaseURL = normalizeBaseURL(cfg.PerplexityBaseURL)
	cfg.RazorpayBaseURL = normalizeBaseURL(cfg.RazorpayBaseURL)
	if cfg.StreamMaxParseErrors <= 0 {
		cfg.StreamMaxParseErrors = 3
	}
	if cfg.ChatHistoryLimit <= 0 {
		cfg.ChatHistoryLimit = 20
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"MYSQL_DSN", c.MySQLDSN},
		{"SUPABASE_URL", c.SupabaseURL},
		{"SUPABASE_ANON_KEY", c.SupabaseAnonKey},
		{"SUPABASE_JWT_SECRET", c.SupabaseJWTSecret},
		{"RAZORPAY_KEY_ID", c.RazorpayKeyID},
		{"RAZORPAY_KEY_SECRET", c.RazorpayKeySecret},
		{"PERPLEXITY_API_KEY", c.PerplexityAPIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}

	// Export is optional, but a bucket without credentials is a misconfiguration.
	if c.ExportEnabled() {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// normalizeBaseURL adds a scheme when missing and strips the trailing slash.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return strings.TrimRight(raw, "/")
		}
	}
	return strings.TrimRight(parsed.String(), "/")
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		// Load keeps variables that are already set in the process environment.
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

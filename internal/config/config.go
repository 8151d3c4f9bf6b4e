package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type LLMEndpoint struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	ServerPort string `yaml:"server_port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabaseDSN    string `yaml:"database_dsn"`

	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
	JWTSecret     string `yaml:"jwt_secret"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	JWTAudience   string `yaml:"jwt_audience"`

	CORSAllowedOrigins string  `yaml:"cors_allowed_origins"`
	RateLimitAuthRPS   float64 `yaml:"rate_limit_auth_rps"`
	RateLimitChatRPS   float64 `yaml:"rate_limit_chat_rps"`

	SessionStore         string `yaml:"session_store"`
	SessionEncryptionKey string `yaml:"session_encryption_key"`

	Chat     LLMEndpoint `yaml:"chat"`
	Research LLMEndpoint `yaml:"research"`

	StripeSecretKey     string `yaml:"stripe_secret_key"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`
	StripePriceMonthly  string `yaml:"stripe_price_monthly"`
	StripePriceOneTime  string `yaml:"stripe_price_one_time"`
	FrontendURL         string `yaml:"frontend_url"`

	MonthlyDocumentLimit int `yaml:"monthly_document_limit"`
	OneTimeDocumentLimit int `yaml:"one_time_document_limit"`
}

var cfg *Config

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and finally the environment.
func Load() *Config {
	c := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(c, path); err != nil {
			log.Warnf("config: ignoring %s: %v", path, err)
		}
	}

	applyEnv(c)
	cfg = c
	return cfg
}

func Get() *Config {
	if cfg == nil {
		return Load()
	}
	return cfg
}

// Set replaces the active configuration. Tests use it to avoid touching the
// process environment.
func Set(c *Config) {
	cfg = c
}

func defaults() *Config {
	return &Config{
		ServerPort:           "8080",
		LogLevel:             "info",
		LogFormat:            "text",
		DatabaseDriver:       "sqlite",
		DatabaseDSN:          "./data/asklegal.db",
		AdminUsername:        "admin",
		AdminPassword:        "admin123",
		JWTSecret:            "asklegal-default-secret-change-in-production",
		JWTIssuer:            "asklegal",
		JWTAudience:          "asklegal-web",
		CORSAllowedOrigins:   "*",
		RateLimitAuthRPS:     1,
		RateLimitChatRPS:     2,
		SessionStore:         "sql",
		Chat: LLMEndpoint{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Research: LLMEndpoint{
			BaseURL: "https://api.perplexity.ai",
			Model:   "sonar",
			Timeout: 15 * time.Second,
		},
		FrontendURL:          "http://localhost:3000",
		MonthlyDocumentLimit: 10,
		OneTimeDocumentLimit: 1,
	}
}

func loadFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func applyEnv(c *Config) {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", c.DatabaseDriver))
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)

	c.AdminUsername = getEnv("ADMIN_USERNAME", c.AdminUsername)
	c.AdminPassword = getEnv("ADMIN_PASSWORD", c.AdminPassword)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)

	c.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.RateLimitAuthRPS = getEnvFloat("RATE_LIMIT_AUTH_RPS", c.RateLimitAuthRPS)
	c.RateLimitChatRPS = getEnvFloat("RATE_LIMIT_CHAT_RPS", c.RateLimitChatRPS)

	c.SessionStore = strings.ToLower(getEnv("SESSION_STORE", c.SessionStore))
	c.SessionEncryptionKey = getEnv("SESSION_ENCRYPTION_KEY", c.SessionEncryptionKey)

	c.Chat.BaseURL = getEnv("LLM_BASE_URL", c.Chat.BaseURL)
	c.Chat.APIKey = getEnv("LLM_API_KEY", c.Chat.APIKey)
	c.Chat.Model = getEnv("LLM_MODEL", c.Chat.Model)
	c.Chat.Timeout = getEnvDuration("LLM_TIMEOUT", c.Chat.Timeout)
	c.Research.BaseURL = getEnv("RESEARCH_BASE_URL", c.Research.BaseURL)
	c.Research.APIKey = getEnv("RESEARCH_API_KEY", c.Research.APIKey)
	c.Research.Model = getEnv("RESEARCH_MODEL", c.Research.Model)
	c.Research.Timeout = getEnvDuration("RESEARCH_TIMEOUT", c.Research.Timeout)

	c.StripeSecretKey = getEnv("STRIPE_SECRET_KEY", c.StripeSecretKey)
	c.StripeWebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret)
	c.StripePriceMonthly = getEnv("STRIPE_PRICE_MONTHLY", c.StripePriceMonthly)
	c.StripePriceOneTime = getEnv("STRIPE_PRICE_ONE_TIME", c.StripePriceOneTime)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)

	c.MonthlyDocumentLimit = getEnvInt("MONTHLY_DOCUMENT_LIMIT", c.MonthlyDocumentLimit)
	c.OneTimeDocumentLimit = getEnvInt("ONE_TIME_DOCUMENT_LIMIT", c.OneTimeDocumentLimit)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("config: %s=%q is not an integer, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warnf("config: %s=%q is not a number, using %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warnf("config: %s=%q is not a duration, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

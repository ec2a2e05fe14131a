package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Config holds everything the API process reads from the environment.
type Config struct {
	Port        string
	BaseURL     string
	FrontendURL string
	CORSOrigins []string

	DatabaseURL string
	RedisURL    string

	JWTSecret string

	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	S3Bucket     string
	EmailFrom    string
	UploadDir    string

	FirebaseServiceAccountPath string

	StripeSecretKey    string
	PaymentCurrency    string
	PlatformFeePercent float64

	LogLevel string
	LogFile  string

	RateLimitRPS   float64
	OTLPEndpoint   string
	ServiceVersion string
}

// Load reads .env (if present) and the process environment.
// A missing .env is not an error; a missing JWT_SECRET is.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                       getEnv("PORT", "8080"),
		BaseURL:                    getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:                getEnv("FRONTEND_URL", "http://localhost:5173"),
		CORSOrigins:                splitList(getEnv("CORS_ORIGINS", "*")),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisURL:                   os.Getenv("REDIS_URL"),
		JWTSecret:                  os.Getenv("JWT_SECRET"),
		GoogleClientID:             os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:         os.Getenv("GOOGLE_CLIENT_SECRET"),
		OAuthRedirectURL:           os.Getenv("OAUTH_REDIRECT_URL"),
		AWSRegion:                  os.Getenv("AWS_REGION"),
		AWSAccessKey:               os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:               os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Bucket:                   os.Getenv("AWS_S3_BUCKET"),
		EmailFrom:                  os.Getenv("EMAIL_FROM"),
		UploadDir:                  getEnv("UPLOAD_DIR", "./uploads"),
		FirebaseServiceAccountPath: os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"),
		StripeSecretKey:            os.Getenv("STRIPE_SECRET_KEY"),
		PaymentCurrency:            strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFile:                    getEnv("LOG_FILE", "server.log"),
		OTLPEndpoint:               os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceVersion:             getEnv("SERVICE_VERSION", "dev"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			getEnv("DB_NAME", "dinewithlocals"),
			getEnv("DB_PORT", "5432"),
		)
	}

	var err error
	if cfg.PlatformFeePercent, err = getFloat("PLATFORM_FEE_PERCENT", 0); err != nil {
		return nil, err
	}
	if cfg.PlatformFeePercent < 0 || cfg.PlatformFeePercent > 100 {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %v", cfg.PlatformFeePercent)
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	return cfg, nil
}

// GoogleOAuth returns the OAuth2 code-flow config, or nil when Google
// sign-in is not configured.
func (c *Config) GoogleOAuth() *oauth2.Config {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return nil
	}
	redirect := c.OAuthRedirectURL
	if redirect == "" {
		redirect = c.BaseURL
	}
	return &oauth2.Config{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  strings.TrimRight(redirect, "/") + "/api/auth/google/callback",
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     google.Endpoint,
	}
}

// S3Enabled reports whether uploads should go to S3.
func (c *Config) S3Enabled() bool {
	return c.AWSRegion != "" && c.AWSAccessKey != "" && c.AWSSecretKey != "" && c.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

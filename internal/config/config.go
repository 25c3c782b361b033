package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/javajoker/digistore-backend/internal/commission"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Email       EmailConfig
	Reconciler  ReconcilerConfig
	Log         LogConfig
	Frontend    FrontendConfig

	// AdminPassword seeds the default administrator on an empty database.
	AdminPassword string
}

type FrontendConfig struct {
	BaseURL        string
	AllowedOrigins []string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

const defaultAdminPassword = "ChangeMe123!"

// Provider names accepted by PAYMENT_PROVIDER.
const (
	ProviderFlutterwave = "flutterwave"
	ProviderStripe      = "stripe"
)

type PaymentConfig struct {
	Provider string
	Currency string

	FlutterwaveSecretKey   string
	FlutterwaveBaseURL     string
	FlutterwaveWebhookHash string

	StripeSecretKey     string
	StripeWebhookSecret string

	// CommissionRate is the platform's share of every sale, between 0 and 1.
	CommissionRate decimal.Decimal
	// MinimumWithdrawal is in minor currency units.
	MinimumWithdrawal int64

	RedirectURL         string
	TransferCallbackURL string

	DownloadLimit      int
	DownloadExpiryDays int
	PaymentExpiry      time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type ReconcilerConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		AdminPassword: getEnv("ADMIN_PASSWORD", defaultAdminPassword),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "digistore"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "eu-west-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "digistore-files"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Payment: PaymentConfig{
			Provider:               strings.ToLower(getEnv("PAYMENT_PROVIDER", ProviderFlutterwave)),
			Currency:               strings.ToUpper(getEnv("PAYMENT_CURRENCY", "NGN")),
			FlutterwaveSecretKey:   getEnv("FLUTTERWAVE_SECRET_KEY", ""),
			FlutterwaveBaseURL:     getEnv("FLUTTERWAVE_BASE_URL", "https://api.flutterwave.com/v3"),
			FlutterwaveWebhookHash: getEnv("FLUTTERWAVE_WEBHOOK_HASH", ""),
			StripeSecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
			CommissionRate:         getEnvAsDecimal("PLATFORM_COMMISSION_RATE", decimal.NewFromFloat(0.05)),
			MinimumWithdrawal:      getEnvAsInt64("MINIMUM_WITHDRAWAL", 100000), // 1,000.00 NGN
			RedirectURL:            getEnv("PAYMENT_REDIRECT_URL", "http://localhost:3000/payments/callback"),
			TransferCallbackURL:    getEnv("TRANSFER_CALLBACK_URL", ""),
			DownloadLimit:          getEnvAsInt("DOWNLOAD_LIMIT", 5),
			DownloadExpiryDays:     getEnvAsInt("DOWNLOAD_EXPIRY_DAYS", 30),
			PaymentExpiry:          getEnvAsDuration("PAYMENT_EXPIRY", 24*time.Hour),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@digistore.ng"),
			FromName:     getEnv("FROM_NAME", "DigiStore"),
		},
		Reconciler: ReconcilerConfig{
			Enabled:    getEnvAsBool("RECONCILE_ENABLED", true),
			Interval:   getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
			StaleAfter: getEnvAsDuration("RECONCILE_STALE_AFTER", 10*time.Minute),
			BatchSize:  getEnvAsInt("RECONCILE_BATCH_SIZE", 100),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
		Frontend: FrontendConfig{
			BaseURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.AdminPassword == defaultAdminPassword && c.Environment == "production" {
		return fmt.Errorf("ADMIN_PASSWORD must be set in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if err := commission.ValidateRate(c.Payment.CommissionRate); err != nil {
		return fmt.Errorf("invalid PLATFORM_COMMISSION_RATE %s: %w", c.Payment.CommissionRate, err)
	}

	if c.Payment.MinimumWithdrawal <= 0 {
		return fmt.Errorf("minimum withdrawal must be positive")
	}

	switch c.Payment.Provider {
	case ProviderFlutterwave:
		if c.Environment == "production" && (c.Payment.FlutterwaveSecretKey == "" || c.Payment.FlutterwaveWebhookHash == "") {
			return fmt.Errorf("flutterwave secret key and webhook hash are required in production")
		}
	case ProviderStripe:
		if c.Environment == "production" && (c.Payment.StripeSecretKey == "" || c.Payment.StripeWebhookSecret == "") {
			return fmt.Errorf("stripe secret key and webhook secret are required in production")
		}
	default:
		return fmt.Errorf("unsupported payment provider %q", c.Payment.Provider)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"15"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"30"`
	CorsOrigins     string `envconfig:"CORS_ORIGINS"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	MongoURI      string `envconfig:"MONGODB_URI"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"spotsort"`

	RedisAddress  string `envconfig:"REDIS_ADDRESS" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret   string        `envconfig:"JWT_SECRET"`
	JWTLifetime time.Duration `envconfig:"JWT_LIFETIME" default:"72h"`

	// OTP hashing; an empty key selects bcrypt
	OtpHMACKey    string        `envconfig:"OTP_HMAC_KEY"`
	OtpBcryptCost int           `envconfig:"OTP_BCRYPT_COST" default:"10"`
	ReportOtpTTL  time.Duration `envconfig:"REPORT_OTP_TTL" default:"15m"`
	SignupOtpTTL  time.Duration `envconfig:"SIGNUP_OTP_TTL" default:"10m"`
	OtpRateLimit  int           `envconfig:"OTP_RATE_LIMIT" default:"10"`
	OtpRateWindow time.Duration `envconfig:"OTP_RATE_WINDOW" default:"15m"`
	MaxImageBytes int64         `envconfig:"MAX_IMAGE_BYTES" default:"5242880"`

	// Mail; with no SMTP host, messages are only logged
	SMTPHost      string `envconfig:"SMTP_HOST"`
	SMTPPort      int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername  string `envconfig:"SMTP_USERNAME"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	MailFrom      string `envconfig:"MAIL_FROM"`
	MailWorkers   int    `envconfig:"MAIL_WORKERS" default:"2"`
	MailQueueSize int    `envconfig:"MAIL_QUEUE_SIZE" default:"256"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"spotsort-evidence"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if c.MongoURI == "" {
		return nil, errors.New("set MONGODB_URI")
	}
	return c, nil
}

// ValidateServe checks the settings only the HTTP server needs.
func (c *Config) ValidateServe() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("set JWT_SECRET"))
	}
	if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
		errs = append(errs, errors.New("set MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY"))
	}
	if c.SMTPHost != "" && c.MailFrom == "" {
		errs = append(errs, errors.New("set MAIL_FROM when SMTP_HOST is set"))
	}
	if c.OtpRateLimit <= 0 {
		errs = append(errs, errors.New("OTP_RATE_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CorsOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

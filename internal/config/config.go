package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App struct {
		Name      string     `envconfig:"APP_NAME" default:"Klubb"`
		Port      int        `envconfig:"PORT" default:"8080"`
		LogLevel  slog.Level `envconfig:"LOG_LEVEL" default:"info"`
		PublicURL string     `envconfig:"APP_PUBLIC_URL" default:"http://localhost:5173"`
	}

	DB struct {
		// Driver is "postgres" or "memory". The memory store is for local development only.
		Driver       string `envconfig:"DB_DRIVER" default:"postgres"`
		Host         string `envconfig:"DB_HOST" default:"localhost"`
		Port         int    `envconfig:"DB_PORT" default:"5432"`
		User         string `envconfig:"DB_USER" default:"postgres"`
		Password     string `envconfig:"DB_PASSWORD" default:""`
		Name         string `envconfig:"DB_NAME" default:"klubb"`
		MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	}

	Server struct {
		Timeout       time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		ShutdownGrace time.Duration `envconfig:"SERVER_SHUTDOWN_GRACE" default:"20s"`
		AllowedOrigin []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	}

	Auth struct {
		Secret   string `envconfig:"AUTH_JWT_SECRET"`
		Issuer   string `envconfig:"AUTH_JWT_ISSUER"`
		Audience string `envconfig:"AUTH_JWT_AUDIENCE"`
	}

	Fees struct {
		// Fallback is charged when a membership type has no configured fee.
		Fallback decimal.Decimal `envconfig:"FEE_FALLBACK" default:"300"`
	}

	Cloudinary struct {
		CloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
		APIKey    string `envconfig:"CLOUDINARY_API_KEY"`
		APISecret string `envconfig:"CLOUDINARY_API_SECRET"`
		Folder    string `envconfig:"CLOUDINARY_FOLDER" default:"receipts"`
	}

	Email struct {
		APIURL string `envconfig:"EMAIL_API_URL"`
		APIKey string `envconfig:"EMAIL_API_KEY"`
		From   string `envconfig:"EMAIL_FROM"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// ReceiptsEnabled reports whether Cloudinary credentials are present.
func (c *Config) ReceiptsEnabled() bool {
	return c.Cloudinary.CloudName != "" && c.Cloudinary.APIKey != "" && c.Cloudinary.APISecret != ""
}

// EmailEnabled reports whether outgoing email is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.APIURL != "" && c.Email.APIKey != "" && c.Email.From != ""
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.DB.Driver != "postgres" && cfg.DB.Driver != "memory" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	if cfg.Fees.Fallback.IsNegative() {
		return nil, fmt.Errorf("FEE_FALLBACK must not be negative")
	}

	return &cfg, nil
}

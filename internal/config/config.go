package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
		// пусто - любые origin
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"` // минуты
	} `yaml:"jwt"`

	Auth struct {
		LoginMaxAttempts   int           `yaml:"login_max_attempts"`
		LoginWindow        time.Duration `yaml:"login_window"`
		FirstAdminEmail    string        `yaml:"first_admin_email"`
		FirstAdminPassword string        `yaml:"first_admin_password"`
	} `yaml:"auth"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
	} `yaml:"email"`

	Payments PaymentsConfig `yaml:"payments"`

	Sweep SweepConfig `yaml:"sweep"`

	Storage StorageConfig `yaml:"storage"`
}

// PaymentsConfig передается адаптерам явно при старте
type PaymentsConfig struct {
	Currency        string        `yaml:"currency"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	// DisableDemo запрещает демо-токены при отсутствии ключей провайдера
	DisableDemo bool `yaml:"disable_demo"`

	Mpesa  MpesaConfig  `yaml:"mpesa"`
	Stripe StripeConfig `yaml:"stripe"`
}

// MpesaConfig - ключи Daraja (STK push)
type MpesaConfig struct {
	BaseURL        string `yaml:"base_url"`
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	ShortCode      string `yaml:"short_code"`
	Passkey        string `yaml:"passkey"`
	CallbackURL    string `yaml:"callback_url"`
}

// Configured - заданы ли ключи; иначе адаптер работает в демо-режиме
func (c MpesaConfig) Configured() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.ShortCode != "" && c.Passkey != ""
}

type StripeConfig struct {
	// BackendURL переопределяет адрес API (тесты, прокси)
	BackendURL    string `yaml:"backend_url"`
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

func (c StripeConfig) Configured() bool {
	return c.SecretKey != ""
}

type SweepConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	StaleAfter  time.Duration `yaml:"stale_after"`
	ExpireAfter time.Duration `yaml:"expire_after"`
	BatchSize   int           `yaml:"batch_size"`
	Workers     int           `yaml:"workers"`
}

// StorageConfig - архив квитанций: local или cloudflare_r2, пусто - выключен
type StorageConfig struct {
	Type      string `yaml:"type"`
	BasePath  string `yaml:"base_path"`
	BaseURL   string `yaml:"base_url"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// Default возвращает конфиг со значениями по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 4000
	cfg.Server.Env = "development"

	cfg.JWT.TTL = 60

	cfg.Auth.LoginMaxAttempts = 5
	cfg.Auth.LoginWindow = 15 * time.Minute

	cfg.Email.SMTPPort = 587

	cfg.Payments.Currency = "KES"
	cfg.Payments.ProviderTimeout = 8 * time.Second
	cfg.Payments.Mpesa.BaseURL = "https://sandbox.safaricom.co.ke"

	cfg.Sweep.Enabled = true
	cfg.Sweep.Interval = time.Minute
	cfg.Sweep.StaleAfter = 2 * time.Minute
	cfg.Sweep.ExpireAfter = 30 * time.Minute
	cfg.Sweep.BatchSize = 50
	cfg.Sweep.Workers = 4

	cfg.Storage.Type = "local"
	cfg.Storage.BasePath = "./data/receipts"
	return cfg
}

// Load читает .env (если есть), затем YAML из CONFIG_PATH (если файл существует),
// затем переменные окружения поверх.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	if err := loadFile(configPath, cfg); err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open config file at %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file at %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("DATABASE_URL", &cfg.Database.DSN)
	setString("SERVER_ENV", &cfg.Server.Env)
	setString("SERVER_HOST", &cfg.Server.Host)
	setString("JWT_SECRET", &cfg.JWT.Secret)
	setString("FIRST_ADMIN_EMAIL", &cfg.Auth.FirstAdminEmail)
	setString("FIRST_ADMIN_PASSWORD", &cfg.Auth.FirstAdminPassword)

	setString("SMTP_HOST", &cfg.Email.SMTPHost)
	setString("SMTP_USER", &cfg.Email.SMTPUsername)
	setString("SMTP_PASSWORD", &cfg.Email.SMTPPassword)
	setString("SMTP_FROM", &cfg.Email.FromEmail)

	setString("MPESA_BASE_URL", &cfg.Payments.Mpesa.BaseURL)
	setString("MPESA_CONSUMER_KEY", &cfg.Payments.Mpesa.ConsumerKey)
	setString("MPESA_CONSUMER_SECRET", &cfg.Payments.Mpesa.ConsumerSecret)
	setString("MPESA_SHORTCODE", &cfg.Payments.Mpesa.ShortCode)
	setString("MPESA_PASSKEY", &cfg.Payments.Mpesa.Passkey)
	setString("MPESA_CALLBACK_URL", &cfg.Payments.Mpesa.CallbackURL)

	setString("STORAGE_TYPE", &cfg.Storage.Type)
	setString("STORAGE_BASE_PATH", &cfg.Storage.BasePath)
	setString("STORAGE_BASE_URL", &cfg.Storage.BaseURL)
	setString("R2_BUCKET", &cfg.Storage.Bucket)
	setString("R2_ACCESS_KEY", &cfg.Storage.AccessKey)
	setString("R2_SECRET_KEY", &cfg.Storage.SecretKey)
	setString("R2_ENDPOINT", &cfg.Storage.Endpoint)

	setString("STRIPE_BACKEND_URL", &cfg.Payments.Stripe.BackendURL)
	setString("STRIPE_SECRET_KEY", &cfg.Payments.Stripe.SecretKey)
	setString("STRIPE_WEBHOOK_SECRET", &cfg.Payments.Stripe.WebhookSecret)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, origin)
			}
		}
	}
	if v, ok := os.LookupEnv("SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("SMTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.Email.SMTPPort = port
	}
	if v, ok := os.LookupEnv("PAYMENTS_DISABLE_DEMO"); ok && v != "" {
		disable, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PAYMENTS_DISABLE_DEMO %q: %w", v, err)
		}
		cfg.Payments.DisableDemo = disable
	}
	if v, ok := os.LookupEnv("PAYMENTS_PROVIDER_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PAYMENTS_PROVIDER_TIMEOUT %q: %w", v, err)
		}
		cfg.Payments.ProviderTimeout = d
	}
	return nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database url is required (DATABASE_URL or database.url)")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required (JWT_SECRET or jwt.secret)")
	}
	if c.Payments.ProviderTimeout <= 0 {
		return errors.New("payments.provider_timeout must be positive")
	}
	if c.Storage.Type == "cloudflare_r2" && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return errors.New("storage.endpoint and storage.bucket are required for cloudflare_r2")
	}
	if c.Sweep.Enabled && (c.Sweep.Interval <= 0 || c.Sweep.Workers <= 0 || c.Sweep.BatchSize <= 0) {
		return errors.New("sweep interval, workers and batch_size must be positive")
	}
	return nil
}

package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Notifier      NotifierConfig      `mapstructure:"notifier"`
	Tabby         TabbyConfig         `mapstructure:"tabby"`
	Tamara        TamaraConfig        `mapstructure:"tamara"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Source          string        `mapstructure:"source"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PaymentConfig holds gateway-independent payment settings, including the
// redirect targets used after a browser callback has been reconciled.
type PaymentConfig struct {
	DefaultGateway     string        `mapstructure:"default_gateway"`
	RedirectSuccessURL string        `mapstructure:"redirect_success_url"`
	RedirectErrorURL   string        `mapstructure:"redirect_error_url"`
	RedirectCancelURL  string        `mapstructure:"redirect_cancel_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// NotifierConfig controls delivery of payment outcome events to the host
// application. An empty webhook URL disables delivery.
type NotifierConfig struct {
	WebhookURL      string        `mapstructure:"webhook_url"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	MaxWorkers      int           `mapstructure:"max_workers"`
	JobQueueSize    int           `mapstructure:"job_queue_size"`
	WorkerPoolSize  int           `mapstructure:"worker_pool_size"`
}

type TabbyConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	SecretKey        string `mapstructure:"secret_key"`
	PublicKey        string `mapstructure:"public_key"`
	MerchantCode     string `mapstructure:"merchant_code"`
	Currency         string `mapstructure:"currency"`
	SandboxMode      bool   `mapstructure:"sandbox_mode"`
	SuccessURL       string `mapstructure:"success_url"`
	CancelURL        string `mapstructure:"cancel_url"`
	FailureURL       string `mapstructure:"failure_url"`
	RequireSignature bool   `mapstructure:"require_signature"`
}

type TamaraConfig struct {
	APIToken          string `mapstructure:"api_token"`
	NotificationToken string `mapstructure:"notification_token"`
	Currency          string `mapstructure:"currency"`
	CountryCode       string `mapstructure:"country_code"`
	SandboxMode       bool   `mapstructure:"sandbox_mode"`
	SuccessURL        string `mapstructure:"success_url"`
	CancelURL         string `mapstructure:"cancel_url"`
	FailureURL        string `mapstructure:"failure_url"`
}

// LoadConfigFromEnv builds a Config from environment variables for container
// deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", ""),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Payment: PaymentConfig{
			DefaultGateway:     getEnv("PAYMENT_DEFAULT_GATEWAY", "tabby"),
			RedirectSuccessURL: getEnv("PAYMENT_REDIRECT_SUCCESS_URL", ""),
			RedirectErrorURL:   getEnv("PAYMENT_REDIRECT_ERROR_URL", ""),
			RedirectCancelURL:  getEnv("PAYMENT_REDIRECT_CANCEL_URL", ""),
			RequestTimeout:     30 * time.Second,
		},
		Notifier: NotifierConfig{
			WebhookURL:      getEnv("NOTIFIER_WEBHOOK_URL", ""),
			DeliveryTimeout: 10 * time.Second,
			MaxWorkers:      getEnvAsInt("NOTIFIER_MAX_WORKERS", 4),
			JobQueueSize:    getEnvAsInt("NOTIFIER_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize:  getEnvAsInt("NOTIFIER_WORKER_POOL_SIZE", 4),
		},
		Tabby: TabbyConfig{
			BaseURL:          getEnv("TABBY_BASE_URL", "https://api.tabby.ai/api/v2"),
			SecretKey:        getEnv("TABBY_SECRET_KEY", ""),
			PublicKey:        getEnv("TABBY_PUBLIC_KEY", ""),
			MerchantCode:     getEnv("TABBY_MERCHANT_CODE", ""),
			Currency:         getEnv("TABBY_CURRENCY", "SAR"),
			SandboxMode:      getEnvAsBool("TABBY_SANDBOX_MODE", true),
			SuccessURL:       getEnv("TABBY_SUCCESS_URL", ""),
			CancelURL:        getEnv("TABBY_CANCEL_URL", ""),
			FailureURL:       getEnv("TABBY_FAILURE_URL", ""),
			RequireSignature: getEnvAsBool("TABBY_REQUIRE_SIGNATURE", false),
		},
		Tamara: TamaraConfig{
			APIToken:          getEnv("TAMARA_API_TOKEN", ""),
			NotificationToken: getEnv("TAMARA_NOTIFICATION_TOKEN", ""),
			Currency:          getEnv("TAMARA_CURRENCY", "SAR"),
			CountryCode:       getEnv("TAMARA_COUNTRY_CODE", "SA"),
			SandboxMode:       getEnvAsBool("TAMARA_SANDBOX_MODE", true),
			SuccessURL:        getEnv("TAMARA_SUCCESS_URL", ""),
			CancelURL:         getEnv("TAMARA_CANCEL_URL", ""),
			FailureURL:        getEnv("TAMARA_FAILURE_URL", ""),
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	switch c.DefaultGateway {
	case "", "tabby", "tamara":
	default:
		return fmt.Errorf("unsupported default gateway: %s", c.DefaultGateway)
	}
	for _, u := range []string{c.RedirectSuccessURL, c.RedirectErrorURL, c.RedirectCancelURL} {
		if u == "" {
			continue
		}
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("invalid redirect url %s: %w", u, err)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Banks      BanksConfig
	Cache      CacheConfig
	Payments   PaymentsConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	Telemetry  TelemetryConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret     string
	SessionTTL time.Duration
}

// EncryptionConfig holds the AES-256 key used to seal client secrets inside
// session tokens. An empty key means one is derived from the JWT secret.
type EncryptionConfig struct {
	Key string
}

type BanksConfig struct {
	// ClientID and ClientSecret are the team credentials used by the
	// background sweep, which runs without a caller session.
	ClientID     string
	ClientSecret string

	AuthBank           string
	BaseURLs           map[string]string
	RequestingBankName string
	Timeout            time.Duration
	AuthTimeout        time.Duration
}

type CacheConfig struct {
	TransactionTTL time.Duration
}

type PaymentsConfig struct {
	AllowUnresolvedAccount bool
	ApprovalTimeout        time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
	Environment  string
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	sessionTTL, err := getDurationEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	bankTimeout, err := getDurationEnv("BANK_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	bankAuthTimeout, err := getDurationEnv("BANK_AUTH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	txCacheMinutes, err := getIntEnv("TX_CACHE_TTL_MINUTES", 15)
	if err != nil {
		return nil, err
	}

	approvalTimeout, err := getDurationEnv("PAYMENT_APPROVAL_TIMEOUT", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	// Parse scheduler configuration
	schedulerWorkers, err := getIntEnv("SCHEDULER_WORKERS", 5)
	if err != nil {
		return nil, err
	}
	schedulerJobDelay, err := getDurationEnv("SCHEDULER_JOB_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	schedulerQueueSize, err := getIntEnv("SCHEDULER_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "syntax"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			SessionTTL: sessionTTL,
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Banks: BanksConfig{
			ClientID:     getEnv("CLIENT_ID", ""),
			ClientSecret: getEnv("CLIENT_SECRET", ""),
			AuthBank:     strings.ToLower(getEnv("AUTH_BANK", "sbank")),
			BaseURLs: map[string]string{
				"abank": getEnv("ABANK_URL", "https://abank.open.bankingapi.ru"),
				"sbank": getEnv("SBANK_URL", "https://sbank.open.bankingapi.ru"),
				"vbank": getEnv("VBANK_URL", "https://vbank.open.bankingapi.ru"),
			},
			RequestingBankName: getEnv("REQUESTING_BANK_NAME", "SYNTAX"),
			Timeout:            bankTimeout,
			AuthTimeout:        bankAuthTimeout,
		},
		Cache: CacheConfig{
			TransactionTTL: time.Duration(txCacheMinutes) * time.Minute,
		},
		Payments: PaymentsConfig{
			AllowUnresolvedAccount: getBoolEnv("ALLOW_UNRESOLVED_ACCOUNT", false),
			ApprovalTimeout:        approvalTimeout,
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			ScheduleTimes: splitList(getEnv("SCHEDULER_TIMES", "03:00,09:00,15:00,21:00")),
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "syntax-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBoolEnv("LOG_PRETTY", false),
		},
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Encryption.Key != "" && len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if cfg.JWT.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.Cache.TransactionTTL <= 0 {
		return nil, fmt.Errorf("TX_CACHE_TTL_MINUTES must be positive")
	}
	if _, ok := cfg.Banks.BaseURLs[cfg.Banks.AuthBank]; !ok {
		return nil, fmt.Errorf("AUTH_BANK %q is not a known bank", cfg.Banks.AuthBank)
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// HasTeamCredentials reports whether the background sweep can authenticate.
func (c *BanksConfig) HasTeamCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with PORTAL_CONFIG.
var ConfigPath = func() string {
	if v := strings.TrimSpace(os.Getenv("PORTAL_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}()

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MinioRegion    string `yaml:"minioRegion"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// RabbitURL is optional; without it change events stay in process.
	RabbitURL      string `yaml:"rabbitURL"`
	RabbitExchange string `yaml:"rabbitExchange"`

	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	InternalJWTVerifyPublicKeys string   `yaml:"internalJwtVerifyPublicKeys"`
	InternalJWTIssuers          []string `yaml:"internalJwtIssuers"`
	InternalJWTAudience         string   `yaml:"internalJwtAudience"`

	AllowedOrigins []string `yaml:"allowedOrigins"`
	TrustedProxies []string `yaml:"trustedProxies"`

	UploadRateLimit       int    `yaml:"uploadRateLimit"`
	UploadRateWindow      string `yaml:"uploadRateWindow"`
	PrequalRateLimit      int    `yaml:"prequalRateLimit"`
	PrequalRateWindow     string `yaml:"prequalRateWindow"`
	ConsistencyDelayMs    int    `yaml:"consistencyDelayMs"`
	SignedURLRetries      int    `yaml:"signedUrlRetries"`
	SignedURLBaseDelayMs  int    `yaml:"signedUrlBaseDelayMs"`
	ReminderSchedule      string `yaml:"reminderSchedule"`
	CleanupConcurrency    int    `yaml:"cleanupConcurrency"`
	CleanupStream         string `yaml:"cleanupStream"`
	CleanupMaxRetries     int    `yaml:"cleanupMaxRetries"`
	ShutdownTimeoutSecond int    `yaml:"shutdownTimeoutSeconds"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORTAL_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("RABBIT_URL"); v != "" {
		cfg.RabbitURL = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("INTERNAL_JWT_VERIFY_PUBLIC_KEYS"); v != "" {
		cfg.InternalJWTVerifyPublicKeys = v
	}
	if v := os.Getenv("PORTAL_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("PORTAL_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("PORTAL_UPLOAD_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadRateLimit = n
		}
	}
	if v := os.Getenv("PORTAL_CONSISTENCY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConsistencyDelayMs = n
		}
	}
	if v := os.Getenv("PORTAL_REMINDER_SCHEDULE"); v != "" {
		cfg.ReminderSchedule = v
	}
	if v := os.Getenv("PORTAL_CLEANUP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CleanupConcurrency = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RabbitExchange == "" {
		cfg.RabbitExchange = "loanportal.changes"
	}
	if cfg.InternalJWTAudience == "" {
		cfg.InternalJWTAudience = "portal"
	}
	if len(cfg.InternalJWTIssuers) == 0 {
		cfg.InternalJWTIssuers = []string{"loanportal-auth"}
	}
	if cfg.UploadRateLimit == 0 {
		cfg.UploadRateLimit = 30
	}
	if cfg.UploadRateWindow == "" {
		cfg.UploadRateWindow = "1m"
	}
	if cfg.PrequalRateLimit == 0 {
		cfg.PrequalRateLimit = 10
	}
	if cfg.PrequalRateWindow == "" {
		cfg.PrequalRateWindow = "10m"
	}
	if cfg.CleanupConcurrency == 0 {
		cfg.CleanupConcurrency = 2
	}
	if cfg.CleanupStream == "" {
		cfg.CleanupStream = "loanportal:cleanup"
	}
	if cfg.ShutdownTimeoutSecond == 0 {
		cfg.ShutdownTimeoutSecond = 15
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	if cfg.InternalJWTVerifyPublicKeys == "" {
		return errors.New("config: internalJwtVerifyPublicKeys is required (set in config.yaml)")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for name, raw := range map[string]string{
		"uploadRateWindow":  cfg.UploadRateWindow,
		"prequalRateWindow": cfg.PrequalRateWindow,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", name, raw)
		}
	}
	if cfg.UploadRateLimit < 0 || cfg.PrequalRateLimit < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	if cfg.ConsistencyDelayMs < -1 {
		return errors.New("config: consistencyDelayMs must be -1 (disabled) or greater")
	}
	if cfg.CleanupConcurrency < 0 {
		return errors.New("config: cleanupConcurrency must not be negative")
	}
	return nil
}

// ParseJWTLeeway parses the optional clock skew allowance.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// Window parses a rate limit window already checked by Load.
func Window(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// ConsistencyDelay maps the millisecond setting to the app option, where a
// negative duration disables the wait.
func (c FileConfig) ConsistencyDelay() time.Duration {
	if c.ConsistencyDelayMs < 0 {
		return -1
	}
	return time.Duration(c.ConsistencyDelayMs) * time.Millisecond
}

func (c FileConfig) SignedURLBaseDelay() time.Duration {
	return time.Duration(c.SignedURLBaseDelayMs) * time.Millisecond
}

func (c FileConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecond) * time.Second
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

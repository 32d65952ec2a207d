package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "LIVESESSIONS_"

// Config captures the settings of the live-session service.
type Config struct {
	Environment string
	LogLevel    string

	HTTPPort       int
	CORSOrigins    []string
	AuthRateLimit  int
	RequestTimeout time.Duration

	SQLitePath string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	GraceWindow time.Duration

	Provider  ProviderConfig
	Storage   StorageConfig
	OSS       OSSConfig
	Repair    RepairConfig
	Reconcile ReconcileConfig
}

// ProviderConfig configures the meeting provider client.
type ProviderConfig struct {
	BaseURL         string
	AccessToken     string
	UserID          string
	Timeout         time.Duration
	MaxRetries      int
	DefaultTimezone string
}

// StorageConfig configures the local artifact store.
type StorageConfig struct {
	Dir       string
	PublicURL string
}

// OSSConfig configures the optional object storage mirror.
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// RepairConfig configures the container repair chain.
type RepairConfig struct {
	MetadataTool  string
	RemuxTool     string
	Timeout       time.Duration
	// IngestTimeout bounds one artifact from download through repair to commit.
	IngestTimeout time.Duration
	Workers       int
	QueueCapacity int
}

// ReconcileConfig configures the background reconciler.
type ReconcileConfig struct {
	Schedule    string
	Timeout     time.Duration
	Concurrency int
}

type fileConfig struct {
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	HTTP        struct {
		Port           int      `toml:"port"`
		CORSOrigins    []string `toml:"cors_origins"`
		AuthRateLimit  int      `toml:"auth_rate_limit"`
		RequestTimeout string   `toml:"request_timeout"`
	} `toml:"http"`
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Auth struct {
		JWTSecret  string `toml:"jwt_secret"`
		AccessTTL  string `toml:"access_ttl"`
		RefreshTTL string `toml:"refresh_ttl"`
	} `toml:"auth"`
	Sessions struct {
		GraceWindow string `toml:"grace_window"`
	} `toml:"sessions"`
	Provider struct {
		BaseURL         string `toml:"base_url"`
		AccessToken     string `toml:"access_token"`
		UserID          string `toml:"user_id"`
		Timeout         string `toml:"timeout"`
		MaxRetries      *int   `toml:"max_retries"`
		DefaultTimezone string `toml:"default_timezone"`
	} `toml:"provider"`
	Storage struct {
		Dir       string `toml:"dir"`
		PublicURL string `toml:"public_url"`
	} `toml:"storage"`
	OSS struct {
		Endpoint        string `toml:"endpoint"`
		AccessKeyID     string `toml:"access_key_id"`
		AccessKeySecret string `toml:"access_key_secret"`
		Bucket          string `toml:"bucket"`
		Prefix          string `toml:"prefix"`
	} `toml:"oss"`
	Repair struct {
		MetadataTool  string `toml:"metadata_tool"`
		RemuxTool     string `toml:"remux_tool"`
		Timeout       string `toml:"timeout"`
		IngestTimeout string `toml:"ingest_timeout"`
		Workers       int    `toml:"workers"`
		QueueCapacity int    `toml:"queue_capacity"`
	} `toml:"repair"`
	Reconcile struct {
		Schedule    string `toml:"schedule"`
		Timeout     string `toml:"timeout"`
		Concurrency int    `toml:"concurrency"`
	} `toml:"reconcile"`
}

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		Environment:    "development",
		LogLevel:       "info",
		HTTPPort:       8080,
		AuthRateLimit:  20,
		RequestTimeout: 60 * time.Second,
		SQLitePath:     "livesessions.db",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     30 * 24 * time.Hour,
		GraceWindow:    15 * time.Minute,
		Provider: ProviderConfig{
			UserID:          "me",
			Timeout:         10 * time.Second,
			MaxRetries:      3,
			DefaultTimezone: "UTC",
		},
		Storage: StorageConfig{
			Dir:       "media",
			PublicURL: "/media",
		},
		Repair: RepairConfig{
			MetadataTool:  "MP4Box",
			RemuxTool:     "ffmpeg",
			Timeout:       10 * time.Minute,
			IngestTimeout: 30 * time.Minute,
			Workers:       2,
			QueueCapacity: 64,
		},
		Reconcile: ReconcileConfig{
			Schedule:    "@every 10m",
			Timeout:     30 * time.Minute,
			Concurrency: 4,
		},
	}
}

// Load reads an optional .env file, then the TOML file named by
// LIVESESSIONS_CONFIG, then LIVESESSIONS_* environment variables. Later sources
// win. Missing and invalid values are reported together.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv(envPrefix + "ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := Defaults()
	l := &loader{cfg: &cfg}

	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		l.applyFile(fc)
	}
	l.applyEnv()

	if cfg.JWTSecret == "" {
		l.missing = append(l.missing, envPrefix+"JWT_SECRET")
	}
	if cfg.Provider.BaseURL == "" {
		l.missing = append(l.missing, envPrefix+"PROVIDER_BASE_URL")
	}
	if _, err := time.LoadLocation(cfg.Provider.DefaultTimezone); err != nil {
		l.invalid = append(l.invalid, envPrefix+"PROVIDER_DEFAULT_TIMEZONE")
	}
	if cfg.Repair.IngestTimeout < cfg.Repair.Timeout {
		l.invalid = append(l.invalid, envPrefix+"REPAIR_INGEST_TIMEOUT (shorter than REPAIR_TIMEOUT)")
	}
	if cfg.Reconcile.Timeout < cfg.Repair.Timeout {
		l.invalid = append(l.invalid, envPrefix+"RECONCILE_TIMEOUT (shorter than REPAIR_TIMEOUT)")
	}

	var errs []error
	if len(l.missing) > 0 {
		errs = append(errs, fmt.Errorf("required settings are missing: %s", strings.Join(l.missing, ", ")))
	}
	if len(l.invalid) > 0 {
		errs = append(errs, fmt.Errorf("settings have invalid values: %s", strings.Join(l.invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// OSSEnabled reports whether the mirror is fully configured.
func (c Config) OSSEnabled() bool {
	return c.OSS.Endpoint != "" && c.OSS.Bucket != "" && c.OSS.AccessKeyID != "" && c.OSS.AccessKeySecret != ""
}

type loader struct {
	cfg     *Config
	missing []string
	invalid []string
}

func (l *loader) applyFile(fc fileConfig) {
	c := l.cfg
	setString(&c.Environment, fc.Environment)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.HTTP.Port != 0 {
		c.HTTPPort = fc.HTTP.Port
	}
	if len(fc.HTTP.CORSOrigins) > 0 {
		c.CORSOrigins = fc.HTTP.CORSOrigins
	}
	if fc.HTTP.AuthRateLimit != 0 {
		c.AuthRateLimit = fc.HTTP.AuthRateLimit
	}
	l.duration(&c.RequestTimeout, "http.request_timeout", fc.HTTP.RequestTimeout)
	setString(&c.SQLitePath, fc.Database.Path)
	setString(&c.JWTSecret, fc.Auth.JWTSecret)
	l.duration(&c.AccessTTL, "auth.access_ttl", fc.Auth.AccessTTL)
	l.duration(&c.RefreshTTL, "auth.refresh_ttl", fc.Auth.RefreshTTL)
	l.duration(&c.GraceWindow, "sessions.grace_window", fc.Sessions.GraceWindow)

	setString(&c.Provider.BaseURL, fc.Provider.BaseURL)
	setString(&c.Provider.AccessToken, fc.Provider.AccessToken)
	setString(&c.Provider.UserID, fc.Provider.UserID)
	l.duration(&c.Provider.Timeout, "provider.timeout", fc.Provider.Timeout)
	if fc.Provider.MaxRetries != nil {
		c.Provider.MaxRetries = *fc.Provider.MaxRetries
	}
	setString(&c.Provider.DefaultTimezone, fc.Provider.DefaultTimezone)

	setString(&c.Storage.Dir, fc.Storage.Dir)
	setString(&c.Storage.PublicURL, fc.Storage.PublicURL)

	setString(&c.OSS.Endpoint, fc.OSS.Endpoint)
	setString(&c.OSS.AccessKeyID, fc.OSS.AccessKeyID)
	setString(&c.OSS.AccessKeySecret, fc.OSS.AccessKeySecret)
	setString(&c.OSS.Bucket, fc.OSS.Bucket)
	setString(&c.OSS.Prefix, fc.OSS.Prefix)

	setString(&c.Repair.MetadataTool, fc.Repair.MetadataTool)
	setString(&c.Repair.RemuxTool, fc.Repair.RemuxTool)
	l.duration(&c.Repair.Timeout, "repair.timeout", fc.Repair.Timeout)
	l.duration(&c.Repair.IngestTimeout, "repair.ingest_timeout", fc.Repair.IngestTimeout)
	if fc.Repair.Workers != 0 {
		c.Repair.Workers = fc.Repair.Workers
	}
	if fc.Repair.QueueCapacity != 0 {
		c.Repair.QueueCapacity = fc.Repair.QueueCapacity
	}

	setString(&c.Reconcile.Schedule, fc.Reconcile.Schedule)
	l.duration(&c.Reconcile.Timeout, "reconcile.timeout", fc.Reconcile.Timeout)
	if fc.Reconcile.Concurrency != 0 {
		c.Reconcile.Concurrency = fc.Reconcile.Concurrency
	}
}

func (l *loader) applyEnv() {
	c := l.cfg
	l.envString(&c.Environment, "ENVIRONMENT")
	l.envString(&c.LogLevel, "LOG_LEVEL")
	l.envInt(&c.HTTPPort, "HTTP_PORT", 1)
	if v := env("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	l.envInt(&c.AuthRateLimit, "AUTH_RATE_LIMIT", 1)
	l.envDuration(&c.RequestTimeout, "REQUEST_TIMEOUT")
	l.envString(&c.SQLitePath, "SQLITE_PATH")
	l.envString(&c.JWTSecret, "JWT_SECRET")
	l.envDuration(&c.AccessTTL, "ACCESS_TTL")
	l.envDuration(&c.RefreshTTL, "REFRESH_TTL")
	l.envDuration(&c.GraceWindow, "GRACE_WINDOW")

	l.envString(&c.Provider.BaseURL, "PROVIDER_BASE_URL")
	l.envString(&c.Provider.AccessToken, "PROVIDER_TOKEN")
	l.envString(&c.Provider.UserID, "PROVIDER_USER_ID")
	l.envDuration(&c.Provider.Timeout, "PROVIDER_TIMEOUT")
	l.envInt(&c.Provider.MaxRetries, "PROVIDER_MAX_RETRIES", 0)
	l.envString(&c.Provider.DefaultTimezone, "PROVIDER_DEFAULT_TIMEZONE")

	l.envString(&c.Storage.Dir, "STORAGE_DIR")
	l.envString(&c.Storage.PublicURL, "STORAGE_PUBLIC_URL")

	l.envString(&c.OSS.Endpoint, "OSS_ENDPOINT")
	l.envString(&c.OSS.AccessKeyID, "OSS_ACCESS_KEY_ID")
	l.envString(&c.OSS.AccessKeySecret, "OSS_ACCESS_KEY_SECRET")
	l.envString(&c.OSS.Bucket, "OSS_BUCKET")
	l.envString(&c.OSS.Prefix, "OSS_PREFIX")

	l.envString(&c.Repair.MetadataTool, "REPAIR_METADATA_TOOL")
	l.envString(&c.Repair.RemuxTool, "REPAIR_REMUX_TOOL")
	l.envDuration(&c.Repair.Timeout, "REPAIR_TIMEOUT")
	l.envDuration(&c.Repair.IngestTimeout, "REPAIR_INGEST_TIMEOUT")
	l.envInt(&c.Repair.Workers, "REPAIR_WORKERS", 1)
	l.envInt(&c.Repair.QueueCapacity, "REPAIR_QUEUE_CAPACITY", 1)

	l.envString(&c.Reconcile.Schedule, "RECONCILE_SCHEDULE")
	l.envDuration(&c.Reconcile.Timeout, "RECONCILE_TIMEOUT")
	l.envInt(&c.Reconcile.Concurrency, "RECONCILE_CONCURRENCY", 1)
}

func (l *loader) duration(dst *time.Duration, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		l.invalid = append(l.invalid, key)
		return
	}
	*dst = d
}

func (l *loader) envString(dst *string, name string) {
	if v := env(name); v != "" {
		*dst = v
	}
}

func (l *loader) envDuration(dst *time.Duration, name string) {
	v := env(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.invalid = append(l.invalid, envPrefix+name)
		return
	}
	*dst = d
}

func (l *loader) envInt(dst *int, name string, min int) {
	v := env(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		l.invalid = append(l.invalid, envPrefix+name)
		return
	}
	*dst = n
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

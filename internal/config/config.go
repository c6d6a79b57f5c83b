package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"safepaw/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"

	AuthModeFirebase = "firebase"
	AuthModeJWT      = "jwt"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Firebase      FirebaseConfig      `yaml:"firebase"`
	Redis         RedisConfig         `yaml:"redis"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Booking       BookingConfig       `yaml:"booking"`
	Wompi         WompiConfig         `yaml:"wompi"`
	Cloudinary    CloudinaryConfig    `yaml:"cloudinary"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Events        EventsConfig        `yaml:"events"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver string       `yaml:"driver"`
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig schedules SQLite snapshots. Ignored for firestore.
type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	StoragePath   string        `yaml:"storage_path"`
	RetentionDays int           `yaml:"retention_days"`
}

type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Enabled reports whether the Firebase Admin SDK should be initialised.
func (f FirebaseConfig) Enabled() bool {
	return f.ProjectID != ""
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Mode      string `yaml:"mode"`
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	Timezone       string        `yaml:"timezone"`
	PageSize       int           `yaml:"page_size"`
	MaxPageSize    int           `yaml:"max_page_size"`
	CreateLimit    int           `yaml:"create_limit"`
	CreateWindow   time.Duration `yaml:"create_window"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

// Location resolves Timezone, falling back to UTC when it cannot be loaded.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type WompiConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PublicKey    string        `yaml:"public_key"`
	EventsSecret string        `yaml:"events_secret"`
	Currency     string        `yaml:"currency"`
	Timeout      time.Duration `yaml:"timeout"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type NotificationsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TopicPrefix string `yaml:"topic_prefix"`
	QueueSize   int    `yaml:"queue_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

type EventsConfig struct {
	AMQPURL   string `yaml:"amqp_url"`
	Exchange  string `yaml:"exchange"`
	QueueSize int    `yaml:"queue_size"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; real environments inject variables directly
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite driver")
		}
	case DriverFirestore:
		if !c.Firebase.Enabled() {
			return errors.New("firebase.project_id is required for firestore driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.API.Auth.Mode {
	case AuthModeFirebase:
		if !c.Firebase.Enabled() {
			return errors.New("firebase.project_id is required for firebase auth")
		}
	case AuthModeJWT:
		if len(c.API.Auth.JWTSecret) < 16 {
			return errors.New("api.auth.jwt_secret must be at least 16 characters")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.API.Auth.Mode)
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	if c.Booking.PageSize > c.Booking.MaxPageSize {
		return errors.New("booking.page_size must not exceed booking.max_page_size")
	}

	if c.Events.AMQPURL != "" && c.Events.Exchange == "" {
		return errors.New("events.exchange is required when events.amqp_url is set")
	}
	if c.Notifications.Enabled && !c.Firebase.Enabled() {
		return errors.New("notifications require firebase.project_id")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "safepaw"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Backup.Enabled {
		if c.Database.Backup.Interval == 0 {
			c.Database.Backup.Interval = 24 * time.Hour
		}
		if c.Database.Backup.StoragePath == "" {
			c.Database.Backup.StoragePath = "./backups"
		}
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.Mode == "" {
		c.API.Auth.Mode = AuthModeFirebase
		if !c.Firebase.Enabled() {
			c.API.Auth.Mode = AuthModeJWT
		}
	}
	if c.API.RateLimit.RPS > 0 && c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}

	// Booking defaults
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = models.DefaultTimezone
	}
	if c.Booking.PageSize == 0 {
		c.Booking.PageSize = models.DefaultPageSize
	}
	if c.Booking.MaxPageSize == 0 {
		c.Booking.MaxPageSize = models.MaxPageSize
	}
	if c.Booking.CreateLimit == 0 {
		c.Booking.CreateLimit = models.CreateRateLimit
	}
	if c.Booking.CreateWindow == 0 {
		c.Booking.CreateWindow = models.CreateRateWindow
	}
	if c.Booking.IdempotencyTTL == 0 {
		c.Booking.IdempotencyTTL = models.DefaultIdempotencyTTL
	}

	if c.Wompi.BaseURL == "" {
		c.Wompi.BaseURL = "https://sandbox.wompi.co"
	}
	c.Wompi.BaseURL = strings.TrimRight(c.Wompi.BaseURL, "/")
	if c.Wompi.Currency == "" {
		c.Wompi.Currency = models.DefaultCurrency
	}
	if c.Wompi.Timeout == 0 {
		c.Wompi.Timeout = 10 * time.Second
	}

	if c.Cloudinary.Folder == "" {
		c.Cloudinary.Folder = "safepaw/pets"
	}

	if c.Notifications.TopicPrefix == "" {
		c.Notifications.TopicPrefix = "user_"
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = models.NotifyQueueSize
	}
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 3
	}

	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = models.EventQueueSize
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"safepaw/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("SAFEPAW_JWT_SECRET", "0123456789abcdef-secret")
	t.Setenv("WOMPI_EVENTS_SECRET", "events-secret")

	yamlContent := `
app:
  name: safepaw
  environment: test
database:
  driver: sqlite
  path: "test.db"
api:
  auth:
    mode: jwt
    jwt_secret: "${SAFEPAW_JWT_SECRET}"
wompi:
  base_url: "https://sandbox.wompi.co/"
  public_key: "pub_test_123"
  events_secret: "${WOMPI_EVENTS_SECRET}"
booking:
  page_size: 5
  create_window: 30m
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.API.Auth.JWTSecret != "0123456789abcdef-secret" {
		t.Errorf("expected jwt secret from env, got %q", cfg.API.Auth.JWTSecret)
	}
	if cfg.Wompi.EventsSecret != "events-secret" {
		t.Errorf("expected events secret from env, got %q", cfg.Wompi.EventsSecret)
	}
	if cfg.Wompi.BaseURL != "https://sandbox.wompi.co" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Wompi.BaseURL)
	}
	if cfg.Booking.PageSize != 5 {
		t.Errorf("expected page size 5, got %d", cfg.Booking.PageSize)
	}
	if cfg.Booking.CreateWindow != 30*time.Minute {
		t.Errorf("expected create window 30m, got %s", cfg.Booking.CreateWindow)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if cfg.API.Auth.Mode != AuthModeJWT {
		t.Errorf("expected jwt auth without firebase, got %s", cfg.API.Auth.Mode)
	}
	if cfg.Booking.PageSize != models.DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", models.DefaultPageSize, cfg.Booking.PageSize)
	}
	if cfg.Booking.Timezone != models.DefaultTimezone {
		t.Errorf("expected default timezone, got %s", cfg.Booking.Timezone)
	}
	if cfg.Wompi.Currency != "COP" {
		t.Errorf("expected COP, got %s", cfg.Wompi.Currency)
	}
	if cfg.API.HTTP.Port != 8080 || cfg.API.GRPC.Port != 8081 {
		t.Errorf("unexpected default ports %d/%d", cfg.API.HTTP.Port, cfg.API.GRPC.Port)
	}
	if cfg.Events.QueueSize != models.EventQueueSize {
		t.Errorf("expected event queue size %d, got %d", models.EventQueueSize, cfg.Events.QueueSize)
	}

	withFirebase := Config{Firebase: FirebaseConfig{ProjectID: "safepaw-dev"}}
	withFirebase.applyDefaults()
	if withFirebase.API.Auth.Mode != AuthModeFirebase {
		t.Errorf("expected firebase auth when project is set, got %s", withFirebase.API.Auth.Mode)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{
			Database: DatabaseConfig{Driver: DriverSQLite, Path: "safepaw.db"},
			API:      APIConfig{Auth: APIAuthConfig{Mode: AuthModeJWT, JWTSecret: "0123456789abcdef"}},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing sqlite path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mongo" }, wantErr: true},
		{name: "firestore without project", mutate: func(c *Config) { c.Database.Driver = DriverFirestore }, wantErr: true},
		{name: "firestore with project", mutate: func(c *Config) {
			c.Database.Driver = DriverFirestore
			c.Firebase.ProjectID = "safepaw-dev"
		}},
		{name: "short jwt secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "firebase auth without project", mutate: func(c *Config) { c.API.Auth.Mode = AuthModeFirebase }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "page size over max", mutate: func(c *Config) { c.Booking.PageSize = 100 }, wantErr: true},
		{name: "amqp without exchange", mutate: func(c *Config) { c.Events.AMQPURL = "amqp://localhost" }, wantErr: true},
		{name: "notifications without firebase", mutate: func(c *Config) { c.Notifications.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBookingLocation(t *testing.T) {
	if got := (BookingConfig{Timezone: "America/Bogota"}).Location().String(); got != "America/Bogota" {
		t.Errorf("expected America/Bogota, got %s", got)
	}
	if got := (BookingConfig{Timezone: "nowhere"}).Location(); got != time.UTC {
		t.Errorf("expected UTC fallback, got %s", got)
	}
}

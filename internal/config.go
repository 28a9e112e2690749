package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tripwatch/internal/gate"
	"github.com/starford/tripwatch/internal/telegram"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Source   SourceConfig      `yaml:"source"`
	Telegram TelegramConfig    `yaml:"telegram"`
	Storage  StorageConfig     `yaml:"storage"`
	Schedule ScheduleConfig    `yaml:"schedule"`
	Gate     GateConfig        `yaml:"gate"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"source", &c.Source},
		{"telegram", &c.Telegram},
		{"storage", &c.Storage},
		{"schedule", &c.Schedule},
		{"gate", &c.Gate},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SourceConfig points at the trip agenda.
type SourceConfig struct {
	AgendaURL string        `yaml:"agenda_url"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AgendaURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// TelegramConfig holds the bot credentials and destinations.
//
// Channel receives trip announcements; MaintainerChatID receives failure
// reports and may be empty to only log them.
type TelegramConfig struct {
	Token            string        `yaml:"token"`
	Channel          string        `yaml:"channel"`
	MaintainerChatID string        `yaml:"maintainer_chat_id"`
	APIURL           string        `yaml:"api_url"`
	Timeout          time.Duration `yaml:"timeout"`
	Commands         bool          `yaml:"commands"`
}

// Validate validates the telegram configuration.
func (c *TelegramConfig) Validate() error {
	if c.APIURL == "" {
		c.APIURL = telegram.DefaultAPIURL
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.Channel, validation.Required),
		validation.Field(&c.APIURL, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverMySQL, DriverMemory)),
		validation.Field(&c.DSN, validation.When(c.Driver != DriverMemory, validation.Required)),
	)
}

// ScheduleConfig controls cycle timing.
type ScheduleConfig struct {
	Interval   time.Duration `yaml:"interval"`
	FirstDelay time.Duration `yaml:"first_delay"`
}

// Validate validates the schedule configuration.
func (c *ScheduleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.FirstDelay, validation.Min(time.Duration(0))),
	)
}

// GateConfig caps announcements per cycle.
type GateConfig struct {
	MaxPerCategory int `yaml:"max_per_category"`
}

// Validate validates the gate configuration.
func (c *GateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxPerCategory, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Source: SourceConfig{
			AgendaURL: "https://www.ubc-voc.com/tripagenda/upcoming.php",
			BaseURL:   "https://www.ubc-voc.com",
			Timeout:   30 * time.Second,
		},
		Telegram: TelegramConfig{
			APIURL:   telegram.DefaultAPIURL,
			Timeout:  10 * time.Second,
			Commands: true,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    "./tripwatch.db",
		},
		Schedule: ScheduleConfig{
			Interval:   60 * time.Second,
			FirstDelay: 10 * time.Second,
		},
		Gate: GateConfig{
			MaxPerCategory: gate.DefaultMaxPerCategory,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

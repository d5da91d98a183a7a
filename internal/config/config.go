package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timeslot"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Rabbit     RabbitConfig     `yaml:"rabbit"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Courts     []models.Court   `yaml:"courts"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type RabbitConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type PaymentsConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	ScheduleSpreadsheetID string `yaml:"schedule_spreadsheet_id"`
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
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	GranularityMinutes   int            `yaml:"granularity_minutes"`
	OpenTime             string         `yaml:"open_time"`
	CloseTime            string         `yaml:"close_time"`
	HoldTTLMinutes       int            `yaml:"hold_ttl_minutes"`
	SweepIntervalSeconds int            `yaml:"sweep_interval_seconds"`
	WeekendDays          []time.Weekday `yaml:"weekend_days"`
	PeakStart            string         `yaml:"peak_start"`
	PeakEnd              string         `yaml:"peak_end"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; когда файла нет, читаем окружение как есть
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := timeslot.ParseKey(c.Booking.OpenTime); err != nil {
		return fmt.Errorf("invalid booking.open_time %q: %w", c.Booking.OpenTime, err)
	}
	if _, err := timeslot.ParseKey(c.Booking.CloseTime); err != nil {
		return fmt.Errorf("invalid booking.close_time %q: %w", c.Booking.CloseTime, err)
	}
	if c.Booking.GranularityMinutes <= 0 || c.Booking.GranularityMinutes > 60 {
		return fmt.Errorf("booking.granularity_minutes must be in 1..60, got %d", c.Booking.GranularityMinutes)
	}
	// Peak window is optional; when set both bounds must parse.
	if c.Booking.PeakStart != "" || c.Booking.PeakEnd != "" {
		if _, err := timeslot.ParseKey(c.Booking.PeakStart); err != nil {
			return fmt.Errorf("invalid booking.peak_start %q: %w", c.Booking.PeakStart, err)
		}
		if _, err := timeslot.ParseKey(c.Booking.PeakEnd); err != nil {
			return fmt.Errorf("invalid booking.peak_end %q: %w", c.Booking.PeakEnd, err)
		}
	}

	return ValidateCourts(c.Courts)
}

func ValidateCourts(courts []models.Court) error {
	ids := make(map[string]bool)
	for _, court := range courts {
		if court.ID == "" {
			return fmt.Errorf("court %q has empty ID", court.Name)
		}
		if ids[court.ID] {
			return fmt.Errorf("duplicate court ID found: %s", court.ID)
		}
		ids[court.ID] = true
		if court.Rates.Base < 0 || court.Rates.Peak < 0 || court.Rates.Weekend < 0 {
			return fmt.Errorf("court %s has negative rates", court.ID)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Booking.GranularityMinutes == 0 {
		c.Booking.GranularityMinutes = models.DefaultGranularityMinutes
	}
	if c.Booking.OpenTime == "" {
		c.Booking.OpenTime = models.DefaultOpenTime
	}
	if c.Booking.CloseTime == "" {
		c.Booking.CloseTime = models.DefaultCloseTime
	}
	if c.Booking.HoldTTLMinutes == 0 {
		c.Booking.HoldTTLMinutes = models.DefaultHoldTTLMinutes
	}
	if c.Booking.SweepIntervalSeconds == 0 {
		c.Booking.SweepIntervalSeconds = models.DefaultSweepIntervalSeconds
	}
	if len(c.Booking.WeekendDays) == 0 {
		c.Booking.WeekendDays = []time.Weekday{time.Saturday, time.Sunday}
	}
	if c.Rabbit.Exchange == "" && c.Rabbit.URL != "" {
		c.Rabbit.Exchange = "courtbook.events"
	}
}

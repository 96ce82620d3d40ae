// Package config loads and validates sizewatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/sizewatch/internal/alert"
	"github.com/JakeFAU/sizewatch/internal/monitor"
)

// EnvPrefix namespaces environment overrides, e.g. SIZEWATCH_SERVER_PORT.
const EnvPrefix = "SIZEWATCH"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Sound      SoundConfig      `mapstructure:"sound"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Items      []ItemConfig     `mapstructure:"items" validate:"dive"`
}

// ServerConfig controls the control API listener.
type ServerConfig struct {
	Port                   int `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"min=1"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig controls zap and the rotated log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" validate:"min=1"`
	MaxBackups  int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays  int    `mapstructure:"max_age_days" validate:"min=0"`
	Compress    bool   `mapstructure:"compress"`
	BufferLines int    `mapstructure:"buffer_lines" validate:"min=1"`
}

// MonitorConfig holds run defaults; a run request may override each field.
type MonitorConfig struct {
	Sizes                []string `mapstructure:"sizes" validate:"min=1"`
	MinDelaySeconds      uint     `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds      uint     `mapstructure:"max_delay_seconds"`
	RecoveryDelaySeconds uint     `mapstructure:"recovery_delay_seconds" validate:"min=1"`
	// AutoStart begins monitoring Items as soon as the service is up.
	AutoStart bool `mapstructure:"auto_start"`
}

// BrowserConfig configures headless Chrome.
type BrowserConfig struct {
	UserAgent         string `mapstructure:"user_agent" validate:"required"`
	WindowWidth       int    `mapstructure:"window_width" validate:"min=320"`
	WindowHeight      int    `mapstructure:"window_height" validate:"min=240"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds" validate:"min=1"`
	SettleMillis      int    `mapstructure:"settle_ms" validate:"min=0"`
	ExecPath          string `mapstructure:"exec_path"`
}

// PolitenessConfig paces loads of the same host.
type PolitenessConfig struct {
	MinIntervalMillis int `mapstructure:"min_interval_ms" validate:"min=0"`
	Burst             int `mapstructure:"burst" validate:"min=1"`
}

// TelegramConfig addresses the alert bot. BotToken and ChatID also read the
// bare BOT_API and CHAT_ID variables.
type TelegramConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	ChatID         string `mapstructure:"chat_id"`
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"min=1"`
}

// SoundConfig controls the local alert cue.
type SoundConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Asset   string `mapstructure:"asset" validate:"required_if=Enabled true"`
}

// ProgressConfig tunes the event hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size" validate:"min=1"`
	MaxBatchEvents int `mapstructure:"max_batch_events" validate:"min=1"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms" validate:"min=1"`
	SinkTimeoutMs  int `mapstructure:"sink_timeout_ms" validate:"min=1"`
}

// ItemConfig is one watched product in the config file.
type ItemConfig struct {
	URL   string `mapstructure:"url" validate:"required,url"`
	Store string `mapstructure:"store" validate:"required,store"`
}

// Load builds a Config from defaults, an optional config file, an optional
// dotenv file, and the environment, in increasing order of precedence.
func Load(path, envFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("telegram.bot_token", EnvPrefix+"_TELEGRAM_BOT_TOKEN", "BOT_API"); err != nil {
		return Config{}, fmt.Errorf("bind BOT_API: %w", err)
	}
	if err := v.BindEnv("telegram.chat_id", EnvPrefix+"_TELEGRAM_CHAT_ID", "CHAT_ID"); err != nil {
		return Config{}, fmt.Errorf("bind CHAT_ID: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if envFile != "" {
		if err := mergeDotenv(v, envFile); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Monitor.Sizes = monitor.ParseSizes(cfg.Monitor.Sizes...)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeDotenv applies KEY=VALUE pairs from path for keys the real
// environment leaves unset. Keys are BOT_API, CHAT_ID, or SIZEWATCH_*.
func mergeDotenv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file: %w", err)
	}

	known := map[string]string{
		"BOT_API": "telegram.bot_token",
		"CHAT_ID": "telegram.chat_id",
	}
	for _, key := range v.AllKeys() {
		known[envName(key)] = key
	}
	for _, raw := range dotenv.AllKeys() {
		name := strings.ToUpper(raw)
		key, ok := known[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(key, dotenv.GetString(raw))
	}
	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.compress", false)
	v.SetDefault("logging.buffer_lines", 500)
	v.SetDefault("monitor.sizes", []string{"36", "XS"})
	v.SetDefault("monitor.min_delay_seconds", 500)
	v.SetDefault("monitor.max_delay_seconds", 800)
	v.SetDefault("monitor.recovery_delay_seconds", monitor.DefaultRecoveryDelaySeconds)
	v.SetDefault("monitor.auto_start", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.settle_ms", 1500)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("politeness.min_interval_ms", 2000)
	v.SetDefault("politeness.burst", 1)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout_seconds", 10)
	v.SetDefault("sound.enabled", true)
	v.SetDefault("sound.asset", "Crystal.mp3")
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait_ms", 1000)
	v.SetDefault("progress.sink_timeout_ms", 5000)
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("store", func(fl validator.FieldLevel) bool {
		_, err := monitor.ParseStore(fl.Field().String())
		return err == nil
	})
	return validate
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msg := fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag())
				if e.Param() != "" {
					msg += fmt.Sprintf(" (%s)", e.Param())
				}
				msgs = append(msgs, msg)
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Monitor.MinDelaySeconds > c.Monitor.MaxDelaySeconds {
		return fmt.Errorf("monitor.min_delay_seconds (%d) must be <= monitor.max_delay_seconds (%d)",
			c.Monitor.MinDelaySeconds, c.Monitor.MaxDelaySeconds)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// Credentials returns the Telegram bot credentials.
func (c Config) Credentials() alert.Credentials {
	return alert.Credentials{BotToken: c.Telegram.BotToken, ChatID: c.Telegram.ChatID}
}

// RunConfig returns the run defaults.
func (c Config) RunConfig() monitor.RunConfig {
	return monitor.RunConfig{
		Sizes:           monitor.ParseSizes(c.Monitor.Sizes...),
		MinDelaySeconds: c.Monitor.MinDelaySeconds,
		MaxDelaySeconds: c.Monitor.MaxDelaySeconds,
		Credentials:     c.Credentials(),
	}
}

// WatchList converts the configured items, in file order.
func (c Config) WatchList() ([]monitor.WatchedItem, error) {
	items := make([]monitor.WatchedItem, 0, len(c.Items))
	for i, raw := range c.Items {
		item, err := monitor.NewWatchedItem(raw.URL, raw.Store)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// NavTimeout returns the browser navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// Settle returns the post-load settle delay.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Browser.SettleMillis) * time.Millisecond
}

// PolitenessInterval returns the per-host spacing.
func (c Config) PolitenessInterval() time.Duration {
	return time.Duration(c.Politeness.MinIntervalMillis) * time.Millisecond
}

// TelegramTimeout returns the sendMessage timeout.
func (c Config) TelegramTimeout() time.Duration {
	return time.Duration(c.Telegram.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

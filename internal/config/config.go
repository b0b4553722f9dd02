// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidAccounts marks an accounts value that is not a non-empty JSON
// object of identity -> secret strings.
var ErrInvalidAccounts = errors.New("invalid accounts configuration")

// Config is the root configuration, built once at process start and handed
// to every component constructor. Nothing below cmd reads viper directly.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Form      FormConfig      `mapstructure:"form" yaml:"form"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch"`
	Notifier  NotifierConfig  `mapstructure:"notifier" yaml:"notifier"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	// Accounts holds the raw JSON object of identity -> secret. It is parsed
	// by the login package so that malformed input surfaces as a config fault.
	Accounts string `mapstructure:"accounts" yaml:"accounts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how each per-attempt browser instance is launched.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	Stealth         StealthConfig  `mapstructure:"stealth" yaml:"stealth"`
}

// StealthConfig describes the persona presented to the target site.
type StealthConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Platform  string   `mapstructure:"platform" yaml:"platform"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
}

// TargetConfig names the single login endpoint every account is tried against.
type TargetConfig struct {
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
	// LoginPathPattern is a regular expression matched against the post-submit
	// URL. A URL that no longer matches counts as having left the login page.
	LoginPathPattern  string        `mapstructure:"login_path_pattern" yaml:"login_path_pattern"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
}

// FormConfig bounds every wait performed while interacting with the login form.
type FormConfig struct {
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationWait time.Duration `mapstructure:"navigation_wait" yaml:"navigation_wait"`
	PostSubmitWait time.Duration `mapstructure:"post_submit_wait" yaml:"post_submit_wait"`
	TypingDelay    time.Duration `mapstructure:"typing_delay" yaml:"typing_delay"`
	TypingJitter   time.Duration `mapstructure:"typing_jitter" yaml:"typing_jitter"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	Delay      time.Duration `mapstructure:"delay" yaml:"delay"`
}

type BatchConfig struct {
	MinAccountDelay time.Duration `mapstructure:"min_account_delay" yaml:"min_account_delay"`
	MaxAccountDelay time.Duration `mapstructure:"max_account_delay" yaml:"max_account_delay"`
}

// NotifierConfig configures the outbound notification sinks. A sink whose
// credentials are empty is skipped.
type NotifierConfig struct {
	Telegram      TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Slack         SlackConfig    `mapstructure:"slack" yaml:"slack"`
	RatePerMinute int            `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	Timeout       time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	// ProxyURL routes notifier traffic; empty means the HTTPS_PROXY environment.
	ProxyURL string `mapstructure:"proxy_url" yaml:"proxy_url"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	APIBase  string `mapstructure:"api_base" yaml:"api_base"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// ArtifactsConfig controls where diagnostic screenshots are written.
type ArtifactsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autologin")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})
	v.SetDefault("browser.stealth.enabled", true)
	v.SetDefault("browser.stealth.platform", "Win32")
	v.SetDefault("browser.stealth.languages", []string{"en-US", "en"})
	v.SetDefault("browser.stealth.timezone", "")
	v.SetDefault("browser.stealth.locale", "en-US")

	// -- Target --
	v.SetDefault("target.login_url", "")
	v.SetDefault("target.login_path_pattern", "/auth/login")
	v.SetDefault("target.navigation_timeout", "45s")
	v.SetDefault("target.ready_timeout", "15s")

	// -- Form --
	v.SetDefault("form.element_timeout", "20s")
	v.SetDefault("form.poll_interval", "250ms")
	v.SetDefault("form.action_timeout", "10s")
	v.SetDefault("form.navigation_wait", "15s")
	v.SetDefault("form.post_submit_wait", "3s")
	v.SetDefault("form.typing_delay", "45ms")
	v.SetDefault("form.typing_jitter", "60ms")

	// -- Retry / Batch --
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.delay", "10s")
	v.SetDefault("batch.min_account_delay", "5s")
	v.SetDefault("batch.max_account_delay", "20s")

	// -- Notifier --
	v.SetDefault("notifier.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notifier.rate_per_minute", 20)
	v.SetDefault("notifier.timeout", "10s")
	v.SetDefault("notifier.proxy_url", "")

	// -- Artifacts --
	v.SetDefault("artifacts.enabled", true)
	v.SetDefault("artifacts.dir", "./artifacts")

	v.SetDefault("accounts", "")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load unmarshals v without validating it. The caller needs a partially valid
// config to report a validation failure through the configured notifier.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are commonly supplied through the environment only.
	_ = v.BindEnv("accounts", "AUTOLOGIN_ACCOUNTS")
	_ = v.BindEnv("notifier.telegram.bot_token", "AUTOLOGIN_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("notifier.telegram.chat_id", "AUTOLOGIN_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("notifier.slack.webhook_url", "AUTOLOGIN_SLACK_WEBHOOK_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the accounts if Unmarshal didn't pick them up.
	if cfg.Accounts == "" {
		cfg.Accounts = os.Getenv("AUTOLOGIN_ACCOUNTS")
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// The accounts value is checked separately when it is parsed.
func (c *Config) Validate() error {
	if c.Target.LoginURL == "" {
		return fmt.Errorf("target.login_url is a required configuration field")
	}
	u, err := url.Parse(c.Target.LoginURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target.login_url must be an absolute URL, got %q", c.Target.LoginURL)
	}
	loginPath, err := regexp.Compile(c.Target.LoginPathPattern)
	if err != nil || c.Target.LoginPathPattern == "" {
		return fmt.Errorf("target.login_path_pattern must be a valid, non-empty regular expression")
	}
	// A pattern that misses the login page itself reads every attempt as having left it.
	if !loginPath.MatchString(c.Target.LoginURL) {
		return fmt.Errorf("target.login_path_pattern %q does not match target.login_url %q", c.Target.LoginPathPattern, c.Target.LoginURL)
	}
	if c.Target.NavigationTimeout <= 0 {
		return fmt.Errorf("target.navigation_timeout must be a positive duration")
	}
	if c.Form.ElementTimeout <= 0 {
		return fmt.Errorf("form.element_timeout must be a positive duration")
	}
	if c.Form.PollInterval <= 0 {
		return fmt.Errorf("form.poll_interval must be a positive duration")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be a non-negative integer")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}
	if c.Batch.MinAccountDelay < 0 || c.Batch.MaxAccountDelay < c.Batch.MinAccountDelay {
		return fmt.Errorf("batch.max_account_delay must be >= batch.min_account_delay >= 0")
	}
	if c.Notifier.RatePerMinute <= 0 {
		return fmt.Errorf("notifier.rate_per_minute must be a positive integer")
	}
	return nil
}

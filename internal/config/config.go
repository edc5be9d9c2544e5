package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Run       RunConfig       `yaml:"run"`
	Site      SiteConfig      `yaml:"site"`
	Browser   BrowserConfig   `yaml:"browser"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Limits    LimitsConfig    `yaml:"limits"`
	Storage   StorageConfig   `yaml:"storage"`
	LinkCheck LinkCheckConfig `yaml:"linkCheck"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type RunConfig struct {
	// Total 要注册的账号总数；Workers 并发 worker 数（1 表示串行）。
	Total   int `yaml:"total"`
	Workers int `yaml:"workers"`
	// MaxRetries 用指针区分“没写”和“写了 0”：0 表示每个账号只试一次。
	MaxRetries *int   `yaml:"maxRetries"`
	InviteLink string `yaml:"inviteLink"`
	// RetryDelayMs 两次重试之间的固定间隔，避免失败后空转。
	RetryDelayMs int `yaml:"retryDelayMs"`
}

// SiteConfig 覆盖内置站点约定，留空用默认值。本地联调时指向 cmd/mock。
type SiteConfig struct {
	InboxURL   string `yaml:"inboxURL"`
	AuthDomain string `yaml:"authDomain"`
}

type BrowserConfig struct {
	Headless        *bool `yaml:"headless"`
	PasswordLength  int   `yaml:"passwordLength"`
	PasswordSymbols *bool `yaml:"passwordSymbols"`
}

type TimeoutsConfig struct {
	// EmailWaitMs 等验证邮件的总超时；PollIntervalMs 收件箱轮询间隔；
	// SettleDelayMs 每次刷新后留给页面的稳定时间。
	EmailWaitMs    int `yaml:"emailWaitMs"`
	PageLoadMs     int `yaml:"pageLoadMs"`
	PollIntervalMs int `yaml:"pollIntervalMs"`
	SettleDelayMs  int `yaml:"settleDelayMs"`
}

type LimitsConfig struct {
	// LaunchQPS/LaunchBurst 控制新尝试的启动节奏，避免并发 worker 一起冲注册接口。
	LaunchQPS   float64 `yaml:"launchQPS"`
	LaunchBurst int     `yaml:"launchBurst"`
}

type StorageConfig struct {
	AccountsFile string `yaml:"accountsFile"`
	LinkFile     string `yaml:"linkFile"`
	SQLitePath   string `yaml:"sqlitePath"`
}

type LinkCheckConfig struct {
	Enabled   *bool `yaml:"enabled"`
	TimeoutMs int   `yaml:"timeoutMs"`
	Retry     int   `yaml:"retry"`
	WaitMs    int   `yaml:"waitMs"`
}

type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtpHost"`
	SMTPPort int    `yaml:"smtpPort"`
	Email    string `yaml:"email"`
	AuthCode string `yaml:"authCode"`
	To       string `yaml:"to"`
}

func (c RunConfig) RetryBudget() int {
	if c.MaxRetries == nil {
		return 2
	}
	if *c.MaxRetries < 0 {
		return 0
	}
	return *c.MaxRetries
}

func (c RunConfig) RetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c TimeoutsConfig) EmailWait() time.Duration {
	if c.EmailWaitMs <= 0 {
		return 45 * time.Second
	}
	return time.Duration(c.EmailWaitMs) * time.Millisecond
}

func (c TimeoutsConfig) PageLoad() time.Duration {
	if c.PageLoadMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PageLoadMs) * time.Millisecond
}

func (c TimeoutsConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c TimeoutsConfig) SettleDelay() time.Duration {
	if c.SettleDelayMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

func (c BrowserConfig) HeadlessMode() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

func (c BrowserConfig) UseSymbols() bool {
	if c.PasswordSymbols == nil {
		return true
	}
	return *c.PasswordSymbols
}

func (c LinkCheckConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

func (c LinkCheckConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c LinkCheckConfig) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

// Load 读取配置文件。路径不存在时返回默认配置，CLI 纯靠命令行参数也能跑。
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	// 先校验原始值再补默认值，否则负数等非法输入会被默认值悄悄修掉。
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Run.Total <= 0 {
		c.Run.Total = 10
	}
	if c.Run.Workers <= 0 {
		c.Run.Workers = 3
	}
	if c.Browser.PasswordLength <= 0 {
		c.Browser.PasswordLength = 12
	}
	if c.Limits.LaunchQPS <= 0 {
		c.Limits.LaunchQPS = 1
	}
	if c.Limits.LaunchBurst <= 0 {
		c.Limits.LaunchBurst = 3
	}
	if c.Storage.AccountsFile == "" {
		c.Storage.AccountsFile = "accounts.txt"
	}
	if c.Storage.LinkFile == "" {
		c.Storage.LinkFile = ".last_link"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/signup_engine.db"
	}
	if c.LinkCheck.Retry < 0 {
		c.LinkCheck.Retry = 0
	}
}

// validate 检查显式写出的值。零值表示“没写”，由 applyDefaults 兜底。
func (c Config) validate() error {
	if c.Run.Total < 0 {
		return errors.New("run.total must not be negative")
	}
	if c.Run.Workers < 0 {
		return errors.New("run.workers must not be negative")
	}
	if c.Notify.Enabled && c.Notify.Email == "" {
		return errors.New("notify.email is required when notify.enabled")
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/timmy/linkwatch/internal/domain"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Storage     StorageConfig     `mapstructure:"storage"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path + "?_busy_timeout=5000&_foreign_keys=on"
}

// CredentialsConfig locates the cookie pool and sets the burn threshold.
type CredentialsConfig struct {
	Dir           string `mapstructure:"dir"`
	BurnThreshold int    `mapstructure:"burn_threshold"`
}

type BrowserConfig struct {
	ExecPath        string        `mapstructure:"exec_path"`
	Headless        bool          `mapstructure:"headless"`
	Flags           []string      `mapstructure:"flags"`
	UserAgent       string        `mapstructure:"user_agent"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout"`
	SessionRoot     string        `mapstructure:"session_root"`
	WatchdogEnabled bool          `mapstructure:"watchdog_enabled"`
	WatchdogSpec    string        `mapstructure:"watchdog_spec"`
}

type SchedulerConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Interval      time.Duration  `mapstructure:"interval"`
	AccountPacing time.Duration  `mapstructure:"account_pacing"`
	StopTimeout   time.Duration  `mapstructure:"stop_timeout"`
	FetchTimeout  time.Duration  `mapstructure:"fetch_timeout"`
	MaxItems      map[string]int `mapstructure:"max_items"`
}

// MaxItemsFor returns the per-fetch item cap for a provider.
func (c *SchedulerConfig) MaxItemsFor(p domain.Provider) int {
	if n, ok := c.MaxItems[string(p)]; ok && n > 0 {
		return n
	}
	if n, ok := c.MaxItems["default"]; ok && n > 0 {
		return n
	}
	return 20
}

type QueueConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ResultCap    int           `mapstructure:"result_cap"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type FetchConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	Proxy             string        `mapstructure:"proxy"`
	YtDlpPath         string        `mapstructure:"ytdlp_path"`
	YouTubeCookies    bool          `mapstructure:"youtube_cookies"`
	MaxScrolls        int           `mapstructure:"max_scrolls"`
	ScrollPause       time.Duration `mapstructure:"scroll_pause"`
}

// StorageConfig configures the optional S3-compatible archive for link exports.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("credentials.dir", "COOKIES_DIR")
	v.BindEnv("browser.exec_path", "CHROME_PATH")
	v.BindEnv("browser.headless", "HEADLESS")
	v.BindEnv("fetch.proxy", "HTTPS_PROXY")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/linkwatch.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("credentials.dir", "./cookies")
	v.SetDefault("credentials.burn_threshold", 3)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.flags", []string{
		"no-sandbox",
		"disable-dev-shm-usage",
		"disable-gpu",
		"disable-blink-features=AutomationControlled",
		"disable-extensions",
		"disable-notifications",
		"window-size=1920,1080",
	})
	v.SetDefault("browser.user_agent", defaultUserAgent)
	v.SetDefault("browser.launch_timeout", 60*time.Second)
	v.SetDefault("browser.session_root", "./data/browser-sessions")
	v.SetDefault("browser.watchdog_enabled", true)
	v.SetDefault("browser.watchdog_spec", "@every 1m")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 30*time.Second)
	v.SetDefault("scheduler.account_pacing", 30*time.Second)
	v.SetDefault("scheduler.stop_timeout", 10*time.Second)
	v.SetDefault("scheduler.fetch_timeout", 3*time.Minute)
	v.SetDefault("scheduler.max_items", map[string]int{
		"default": 20,
		"youtube": 50,
	})

	v.SetDefault("queue.poll_interval", 2*time.Second)
	v.SetDefault("queue.result_cap", 5)
	v.SetDefault("queue.stop_timeout", 10*time.Second)
	v.SetDefault("queue.fetch_timeout", 2*time.Minute)

	v.SetDefault("fetch.requests_per_minute", 20)
	v.SetDefault("fetch.http_timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", defaultUserAgent)
	v.SetDefault("fetch.ytdlp_path", "yt-dlp")
	v.SetDefault("fetch.youtube_cookies", true)
	v.SetDefault("fetch.max_scrolls", 5)
	v.SetDefault("fetch.scroll_pause", 2*time.Second)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "linkwatch")
	v.SetDefault("storage.prefix", "exports")
}

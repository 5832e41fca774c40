package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset" mapstructure:"dataset"`
	Sheets   SheetsConfig   `yaml:"sheets" mapstructure:"sheets"`
	XLSX     XLSXConfig     `yaml:"xlsx" mapstructure:"xlsx"`
	Columns  ColumnsConfig  `yaml:"columns" mapstructure:"columns"`
	Progress ProgressConfig `yaml:"progress" mapstructure:"progress"`
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	LinkedIn LinkedInConfig `yaml:"linkedin" mapstructure:"linkedin"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Fallback FallbackConfig `yaml:"fallback" mapstructure:"fallback"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DatasetConfig selects the spreadsheet backend.
type DatasetConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
}

// SheetsConfig locates the Google spreadsheet and its OAuth files.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SheetID         int64  `yaml:"sheet_id" mapstructure:"sheet_id"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	TokenFile       string `yaml:"token_file" mapstructure:"token_file"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
}

// XLSXConfig locates a local workbook.
type XLSXConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	SheetName  string `yaml:"sheet_name" mapstructure:"sheet_name"`
	OutputPath string `yaml:"output_path" mapstructure:"output_path"`
}

// ColumnsConfig names the spreadsheet columns by letter.
type ColumnsConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Profile  string `yaml:"profile" mapstructure:"profile"`
	Size     string `yaml:"size" mapstructure:"size"`
	Industry string `yaml:"industry" mapstructure:"industry"`
}

// ProgressConfig configures the resumable cursor.
type ProgressConfig struct {
	File      string `yaml:"file" mapstructure:"file"`
	RowStart  int    `yaml:"row_start" mapstructure:"row_start"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// EngineConfig bounds item and flush work.
type EngineConfig struct {
	ItemTimeoutSecs  int `yaml:"item_timeout_secs" mapstructure:"item_timeout_secs"`
	AbandonGraceSecs int `yaml:"abandon_grace_secs" mapstructure:"abandon_grace_secs"`
	FlushTimeoutSecs int `yaml:"flush_timeout_secs" mapstructure:"flush_timeout_secs"`
	MaxCycles        int `yaml:"max_cycles" mapstructure:"max_cycles"`
}

// ItemTimeout returns the per-item deadline.
func (e EngineConfig) ItemTimeout() time.Duration {
	return time.Duration(e.ItemTimeoutSecs) * time.Second
}

// AbandonGrace returns how long a timed-out item may take to stop.
func (e EngineConfig) AbandonGrace() time.Duration {
	return time.Duration(e.AbandonGraceSecs) * time.Second
}

// FlushTimeout returns the deadline for writing and persisting a cycle.
func (e EngineConfig) FlushTimeout() time.Duration {
	return time.Duration(e.FlushTimeoutSecs) * time.Second
}

// LinkedInConfig holds profile site credentials and endpoints.
type LinkedInConfig struct {
	Username        string `yaml:"username" mapstructure:"username"`
	Password        string `yaml:"password" mapstructure:"password"`
	CookiesFile     string `yaml:"cookies_file" mapstructure:"cookies_file"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	SearchEngineURL string `yaml:"search_engine_url" mapstructure:"search_engine_url"`
	MaxAuthAttempts int    `yaml:"max_auth_attempts" mapstructure:"max_auth_attempts"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	ChromePath     string  `yaml:"chrome_path" mapstructure:"chrome_path"`
	Headless       bool    `yaml:"headless" mapstructure:"headless"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	NavRPS         float64 `yaml:"nav_rps" mapstructure:"nav_rps"`
	SettleMillis   int     `yaml:"settle_ms" mapstructure:"settle_ms"`
	NavTimeoutSecs int     `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
}

// FallbackConfig tunes the circuit breaker guarding the web search fallback.
type FallbackConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// StoreConfig configures the run ledger and lookup cache database.
type StoreConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	Path     string `yaml:"path" mapstructure:"path"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures lookup caching.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled" mapstructure:"enabled"`
	TTLHours int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the environment names used by earlier
// deployments of the enricher. They are read when the prefixed name is unset.
var legacyEnv = map[string]string{
	"sheets.spreadsheet_id":    "SHEETS_FILE_ID",
	"sheets.sheet_name":        "SHEET_NAME",
	"sheets.sheet_id":          "SHEET_ID",
	"sheets.token_file":        "TOKEN_FILE_PATH",
	"sheets.credentials_file":  "CREDENTIAL_FILE_PATH",
	"columns.name":             "COMPANY_NAME_COLUMN",
	"columns.profile":          "LINKEDIN_PROFILE_COLUMN",
	"columns.size":             "COMPANY_SIZE_COLUMN",
	"columns.industry":         "COMPANY_INDUSTRY_COLUMN",
	"linkedin.cookies_file":    "LINKEDIN_COOKIES_FILE_NAME",
	"linkedin.username":        "LINKEDIN_USERNAME",
	"linkedin.password":        "LINKEDIN_PASSWORD",
	"progress.file":            "STAT_FILE_NAME",
	"engine.item_timeout_secs": "ITEM_TIMEOUT",
	"browser.chrome_path":      "CHROME_PATH",
}

const envPrefix = "ENRICH"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("dataset.driver", "sheets")
	v.SetDefault("sheets.sheet_name", "Sheet1")
	v.SetDefault("sheets.sheet_id", -1)
	v.SetDefault("sheets.credentials_file", "credentials.json")
	v.SetDefault("sheets.token_file", "token.json")
	v.SetDefault("columns.name", "A")
	v.SetDefault("columns.profile", "B")
	v.SetDefault("columns.size", "C")
	v.SetDefault("columns.industry", "D")
	v.SetDefault("progress.file", "stat.json")
	v.SetDefault("progress.row_start", 1)
	v.SetDefault("progress.batch_size", 5)
	v.SetDefault("engine.item_timeout_secs", 500)
	v.SetDefault("engine.abandon_grace_secs", 5)
	v.SetDefault("engine.flush_timeout_secs", 60)
	v.SetDefault("engine.max_cycles", 0)
	v.SetDefault("linkedin.cookies_file", "linkedin_cookies.json")
	v.SetDefault("linkedin.base_url", "https://www.linkedin.com")
	v.SetDefault("linkedin.search_engine_url", "https://www.google.com")
	v.SetDefault("linkedin.max_auth_attempts", 3)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_rps", 0.5)
	v.SetDefault("browser.settle_ms", 2000)
	v.SetDefault("browser.nav_timeout_secs", 60)
	v.SetDefault("fallback.failure_threshold", 3)
	v.SetDefault("fallback.reset_timeout_secs", 600)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "enricher.db")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_hours", 168)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

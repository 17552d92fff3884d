// Package config loads the daemon configuration from YAML and the environment.
package config

import "time"

// Config is the root daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	TextGen   TextGenConfig   `yaml:"textgen"`
	Music     MusicConfig     `yaml:"music"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds the HTTP and TCP listener settings.
type ServerConfig struct {
	TCPPort         string        `yaml:"tcp_port"         env:"CELERIX_PORT"             env-default:"7001"`
	HTTPPort        string        `yaml:"http_port"        env:"CELERIX_HTTP_PORT"        env-default:"7002"`
	DisableTLS      bool          `yaml:"disable_tls"      env:"CELERIX_DISABLE_TLS"      env-default:"false"`
	TLSHosts        []string      `yaml:"tls_hosts"        env:"CELERIX_TLS_HOSTS"        env-separator:","`
	MaxConns        int           `yaml:"max_conns"        env:"CELERIX_MAX_CONNS"        env-default:"100"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CELERIX_SHUTDOWN_TIMEOUT" env-default:"10s"`
	CORSOrigin      string        `yaml:"cors_origin"      env:"CELERIX_CORS_ORIGIN"      env-default:"*"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects the journal behind the ledger.
type StorageConfig struct {
	Driver      string `yaml:"driver"        env:"CELERIX_STORAGE_DRIVER" env-default:"file"`
	DataDir     string `yaml:"data_dir"      env:"CELERIX_DATA_DIR"       env-default:"./data"`
	DSN         string `yaml:"dsn"           env:"CELERIX_DATABASE_DSN"`
	SeedPath    string `yaml:"seed_path"     env:"CELERIX_SEED_PATH"`
	SeedOnEmpty bool   `yaml:"seed_on_empty" env:"CELERIX_SEED_ON_EMPTY"  env-default:"true"`
}

// Text generation providers.
const (
	ProviderOpenAI   = "openai"
	ProviderScripted = "scripted"
)

// TextGenConfig configures the text-generation collaborator.
type TextGenConfig struct {
	Provider string        `yaml:"provider" env:"CELERIX_TEXTGEN_PROVIDER" env-default:"scripted"`
	BaseURL  string        `yaml:"base_url" env:"CELERIX_TEXTGEN_BASE_URL" env-default:"https://api.openai.com/v1"`
	APIKey   string        `yaml:"api_key"  env:"CELERIX_TEXTGEN_API_KEY"`
	Model    string        `yaml:"model"    env:"CELERIX_TEXTGEN_MODEL"    env-default:"gpt-4o-mini"`
	Timeout  time.Duration `yaml:"timeout"  env:"CELERIX_TEXTGEN_TIMEOUT"  env-default:"60s"`
}

// MusicConfig configures the music-generation collaborator.
type MusicConfig struct {
	Enabled         bool          `yaml:"enabled"          env:"CELERIX_MUSIC_ENABLED"          env-default:"false"`
	BaseURL         string        `yaml:"base_url"         env:"CELERIX_MUSIC_BASE_URL"         env-default:"http://localhost:7860"`
	Timeout         time.Duration `yaml:"timeout"          env:"CELERIX_MUSIC_TIMEOUT"          env-default:"300s"`
	DefaultDuration int           `yaml:"default_duration" env:"CELERIX_MUSIC_DEFAULT_DURATION" env-default:"30"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `yaml:"level"   env:"CELERIX_LOG_LEVEL"   env-default:"info"`
	Format  string `yaml:"format"  env:"CELERIX_LOG_FORMAT"  env-default:"json"`
	Service string `yaml:"service" env:"CELERIX_LOG_SERVICE" env-default:"celerix-market"`
}

// RateLimitConfig throttles the streaming flow endpoints per client.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" env:"CELERIX_RATE_RPM"   env-default:"30"`
	Burst             int `yaml:"burst"               env:"CELERIX_RATE_BURST" env-default:"5"`
}

package config

import (
	"fmt"
	"strconv"
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	for name, port := range map[string]string{"server.tcp_port": c.Server.TCPPort, "server.http_port": c.Server.HTTPPort} {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("%s must be a port number (got %q)", name, port)
		}
	}
	if c.Server.MaxConns <= 0 {
		return fmt.Errorf("server.max_conns must be > 0 (got %d)", c.Server.MaxConns)
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverFile, DriverSQLite:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, file, sqlite, postgres (got %q)", c.Storage.Driver)
	}

	switch c.TextGen.Provider {
	case ProviderScripted:
	case ProviderOpenAI:
		if c.TextGen.BaseURL == "" {
			return fmt.Errorf("textgen.base_url is required for the openai provider")
		}
	default:
		return fmt.Errorf("textgen.provider must be openai or scripted (got %q)", c.TextGen.Provider)
	}
	if c.TextGen.Timeout <= 0 {
		return fmt.Errorf("textgen.timeout must be > 0")
	}

	if c.Music.Enabled && c.Music.BaseURL == "" {
		return fmt.Errorf("music.base_url is required when music is enabled")
	}
	if c.Music.DefaultDuration <= 0 {
		return fmt.Errorf("music.default_duration must be > 0 (got %d)", c.Music.DefaultDuration)
	}

	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must be >= 0")
	}
	return nil
}

// SQLiteDSN returns the DSN for the sqlite driver, defaulting to a file in
// the data directory.
func (s StorageConfig) SQLiteDSN() string {
	if s.DSN != "" {
		return s.DSN
	}
	return "file:" + s.DataDir + "/ledger.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

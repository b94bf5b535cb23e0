package config

import "time"

// Config is the coordinator's complete runtime configuration, loaded
// entirely from the environment — there is no config file to manage.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Reporter ReporterConfig `mapstructure:"reporter"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "postgres" (production) or "sqlite" (local/dev/test).
	Driver string `mapstructure:"driver"`
	// Path is the SQLite file path, used when Driver == "sqlite".
	Path string `mapstructure:"path"`
	// DSN is the connection string (DB_URL), used when Driver == "postgres".
	DSN string `mapstructure:"dsn"`
	// PersistentPoolSize / MaxPoolSize bound the connection pool.
	PersistentPoolSize int           `mapstructure:"persistent_pool_size"`
	MaxPoolSize        int           `mapstructure:"max_pool_size"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
}

// AuthConfig controls bearer-token validation against the external identity
// provider. Domain supplies both the issuer and the JWKS endpoint.
type AuthConfig struct {
	Domain   string `mapstructure:"domain"`
	Audience string `mapstructure:"audience"`
}

// RulesConfig controls the ruleset provider's external rules-repository client.
type RulesConfig struct {
	RepoToken       string        `mapstructure:"repo_token"`
	RepoURL         string        `mapstructure:"repo_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// ReporterConfig controls the outbound reporter client.
type ReporterConfig struct {
	URL string `mapstructure:"url"`
}

// HTTPConfig controls the coordinator's own HTTP listener.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// DispatchConfig controls dispatch engine timing.
type DispatchConfig struct {
	// JobTimeout is the maximum time a worker may hold a PENDING scan
	// before another dispatcher may reassign it.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

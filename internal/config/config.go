package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load binds every environment variable the coordinator recognises and
// unmarshals them into a Config. There is no config file: this is a server,
// not an operator CLI, so the environment is the whole contract.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	bindings := map[string]string{
		"database.driver":                "DB_DRIVER",
		"database.path":                  "DB_PATH",
		"database.dsn":                   "DB_URL",
		"database.persistent_pool_size":  "DB_CONNECTION_POOL_PERSISTENT_SIZE",
		"database.max_pool_size":         "DB_CONNECTION_POOL_MAX_SIZE",
		"database.acquire_timeout":       "DB_ACQUIRE_TIMEOUT",
		"auth.domain":                    "AUTH_DOMAIN",
		"auth.audience":                  "AUTH_AUDIENCE",
		"rules.repo_token":               "RULES_REPO_TOKEN",
		"rules.repo_url":                 "RULES_REPO_URL",
		"rules.refresh_interval":         "RULES_REFRESH_INTERVAL",
		"reporter.url":                   "REPORTER_URL",
		"http.port":                      "HTTP_PORT",
		"dispatch.job_timeout":           "JOB_TIMEOUT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		secondsOrDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// setDefaults populates viper with sensible out-of-the-box values so the
// coordinator can boot against a local SQLite file with zero configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "scanhub.db")
	v.SetDefault("database.persistent_pool_size", 5)
	v.SetDefault("database.max_pool_size", 15)
	v.SetDefault("database.acquire_timeout", "5s")

	v.SetDefault("rules.refresh_interval", "10m")

	v.SetDefault("http.port", 8080)

	// JOB_TIMEOUT may be given as a plain count of seconds.
	v.SetDefault("dispatch.job_timeout", "120")
}

// secondsOrDurationHook lets JOB_TIMEOUT (and friends) be set either as a
// bare integer count of seconds, or as a Go duration string like
// "120s"; the latter falls through to mapstructure's own duration hook.
func secondsOrDurationHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return data, nil
}

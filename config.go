package livesync

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FromEnv loads configuration from LIVESYNC_* environment variables on top
// of DefaultConfig. Unparseable values are ignored.
func FromEnv() Config {
	cfg := DefaultConfig()

	if url := os.Getenv("LIVESYNC_URL"); url != "" {
		cfg.URL = url
	}

	if debug := os.Getenv("LIVESYNC_DEBUG"); debug != "" {
		cfg.DebugMode = debug == "true"
	}

	if metrics := os.Getenv("LIVESYNC_ENABLE_METRICS"); metrics != "" {
		cfg.EnableMetrics = metrics == "true"
	}

	envDuration("LIVESYNC_CONTEXT_TIMEOUT", &cfg.ContextTimeout)
	envDuration("LIVESYNC_HANDSHAKE_TIMEOUT", &cfg.HandshakeTimeout)
	envDuration("LIVESYNC_PING_INTERVAL", &cfg.PingInterval)
	envDuration("LIVESYNC_PONG_TIMEOUT", &cfg.PongTimeout)
	envDuration("LIVESYNC_RECONNECT_BASE_DELAY", &cfg.ReconnectBaseDelay)
	envDuration("LIVESYNC_RECONNECT_MAX_DELAY", &cfg.ReconnectMaxDelay)

	if attempts := os.Getenv("LIVESYNC_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.MaxReconnectAttempts = n
		}
	}

	// Local cache configuration
	if policy := os.Getenv("LIVESYNC_LOCAL_CACHE_POLICY"); policy != "" {
		cfg.LocalCachePolicy = policy
	}

	if maxSize := os.Getenv("LIVESYNC_LOCAL_MAX_SIZE"); maxSize != "" {
		if n, err := strconv.Atoi(maxSize); err == nil {
			cfg.LocalCacheConfig.MaxSize = n
		}
	}

	envInt64("LIVESYNC_LOCAL_NUM_COUNTERS", &cfg.LocalCacheConfig.NumCounters)
	envInt64("LIVESYNC_LOCAL_MAX_COST", &cfg.LocalCacheConfig.MaxCost)
	envInt64("LIVESYNC_LOCAL_BUFFER_ITEMS", &cfg.LocalCacheConfig.BufferItems)

	return cfg
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envInt64(name string, dst *int64) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

// duration decodes TOML strings such as "25s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// fileConfig is the TOML layout of a config file. Absent keys keep their
// defaults.
type fileConfig struct {
	URL            string    `toml:"url"`
	Debug          *bool     `toml:"debug"`
	EnableMetrics  *bool     `toml:"enable_metrics"`
	ContextTimeout *duration `toml:"context_timeout"`

	Cache struct {
		Policy      string `toml:"policy"`
		MaxSize     *int   `toml:"max_size"`
		NumCounters *int64 `toml:"num_counters"`
		MaxCost     *int64 `toml:"max_cost"`
		BufferItems *int64 `toml:"buffer_items"`
	} `toml:"cache"`

	Connection struct {
		HandshakeTimeout     *duration `toml:"handshake_timeout"`
		PingInterval         *duration `toml:"ping_interval"`
		PongTimeout          *duration `toml:"pong_timeout"`
		ReconnectBaseDelay   *duration `toml:"reconnect_base_delay"`
		ReconnectMaxDelay    *duration `toml:"reconnect_max_delay"`
		MaxReconnectAttempts *int      `toml:"max_reconnect_attempts"`
	} `toml:"connection"`
}

// LoadConfigFile reads a TOML config file on top of DefaultConfig. Unknown
// keys are rejected.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.URL != "" {
		cfg.URL = fc.URL
	}
	setBool(&cfg.DebugMode, fc.Debug)
	setBool(&cfg.EnableMetrics, fc.EnableMetrics)
	setDuration(&cfg.ContextTimeout, fc.ContextTimeout)

	if fc.Cache.Policy != "" {
		cfg.LocalCachePolicy = fc.Cache.Policy
	}
	if fc.Cache.MaxSize != nil {
		cfg.LocalCacheConfig.MaxSize = *fc.Cache.MaxSize
	}
	setInt64(&cfg.LocalCacheConfig.NumCounters, fc.Cache.NumCounters)
	setInt64(&cfg.LocalCacheConfig.MaxCost, fc.Cache.MaxCost)
	setInt64(&cfg.LocalCacheConfig.BufferItems, fc.Cache.BufferItems)

	setDuration(&cfg.HandshakeTimeout, fc.Connection.HandshakeTimeout)
	setDuration(&cfg.PingInterval, fc.Connection.PingInterval)
	setDuration(&cfg.PongTimeout, fc.Connection.PongTimeout)
	setDuration(&cfg.ReconnectBaseDelay, fc.Connection.ReconnectBaseDelay)
	setDuration(&cfg.ReconnectMaxDelay, fc.Connection.ReconnectMaxDelay)
	if fc.Connection.MaxReconnectAttempts != nil {
		cfg.MaxReconnectAttempts = *fc.Connection.MaxReconnectAttempts
	}

	return cfg, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}

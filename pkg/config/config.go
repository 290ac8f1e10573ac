// Package config loads and watches the daemon's configuration: a YAML file
// overlaid with environment variables. Command-line flags are not merged
// into Config by this package. Shape follows nexusd's DaemonConfig, trimmed to the
// subsystems this module actually has (no CNI/bridge/namespace config,
// since networking here is out of scope).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// WebhookPolicy mirrors nexusd's RetryConfig: {max_attempts, interval,
// exponential_backoff} per §4.8.
type WebhookPolicy struct {
	URL                string            `yaml:"url"`
	Headers            map[string]string `yaml:"headers,omitempty"`
	MaxAttempts        int               `yaml:"max_attempts"`
	Interval           time.Duration     `yaml:"interval"`
	ExponentialBackoff bool              `yaml:"exponential_backoff"`
}

// SecurityProfile points at the TLS material used by the daemon's HTTP and
// RPC listeners and by inter-node dispatch.
type SecurityProfile struct {
	Enabled  bool   `yaml:"enabled"`
	CertDir  string `yaml:"cert_dir"`
	Rootless bool   `yaml:"rootless"`
}

// Config is the daemon's full runtime configuration. Zero value is not
// directly usable; build with Default or Load and then ApplyEnv.
type Config struct {
	DataRoot   string `yaml:"data_root"`
	RPCListen  string `yaml:"rpc_listen"`
	HTTPListen string `yaml:"http_listen"`
	LogLevel   string `yaml:"log_level"`
	LogJSON    bool   `yaml:"log_json"`

	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	JobHistoryBound   int           `yaml:"job_history_bound"`
	SamplerInterval   time.Duration `yaml:"sampler_interval"`
	DefaultScheduling string        `yaml:"default_scheduling"`

	ClusterBindAddr  string `yaml:"cluster_bind_addr"`
	ElectionPriority uint8  `yaml:"election_priority"`

	Webhooks []WebhookPolicy `yaml:"webhooks"`
	Security SecurityProfile `yaml:"security"`
}

// Default returns the configuration nexusd's DaemonConfig::default ships,
// adapted to this module's narrower scope (no CNI/runtime-table sections).
func Default() Config {
	return Config{
		DataRoot:          "/var/lib/corectl",
		RPCListen:         "127.0.0.1:7890",
		HTTPListen:        "127.0.0.1:7891",
		LogLevel:          "info",
		LogJSON:           false,
		MaxConcurrentJobs: 10,
		JobHistoryBound:   1000,
		SamplerInterval:   5 * time.Second,
		DefaultScheduling: "fifo",
		ElectionPriority:  100,
		Security: SecurityProfile{
			Enabled: false,
			CertDir: "/var/lib/corectl/certs",
		},
	}
}

// Load reads path as YAML over the defaults. A missing file is not an
// error — the caller gets Default() back, matching the teacher's
// flag-first posture where a config file is optional.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// envPrefix namespaces every environment variable this package reads, so
// CORECTL_DATA_ROOT overlays Config.DataRoot and so on.
const envPrefix = "CORECTL_"

// ApplyEnv overlays environment variables onto cfg, each named
// CORECTL_<FIELD> in upper snake case. Unset variables leave the field
// untouched.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(envPrefix + "DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v := os.Getenv(envPrefix + "RPC_LISTEN"); v != "" {
		cfg.RPCListen = v
	}
	if v := os.Getenv(envPrefix + "HTTP_LISTEN"); v != "" {
		cfg.HTTPListen = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}
	if v := os.Getenv(envPrefix + "MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentJobs = n
		}
	}
	if v := os.Getenv(envPrefix + "CLUSTER_BIND_ADDR"); v != "" {
		cfg.ClusterBindAddr = v
	}
}

// Validate reports configuration errors the way nexusd's
// DaemonConfig::validate does: a non-empty data root, non-empty listeners,
// a positive job limit and a URL on every webhook (paths are not checked
// for being absolute), deferred until the daemon actually starts rather
// than at flag-parse time.
func (cfg Config) Validate() error {
	if cfg.DataRoot == "" {
		return fmt.Errorf("config: data_root must not be empty")
	}
	if cfg.HTTPListen == "" {
		return fmt.Errorf("config: http_listen must not be empty")
	}
	if cfg.RPCListen == "" {
		return fmt.Errorf("config: rpc_listen must not be empty")
	}
	if cfg.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: max_concurrent_jobs must be positive")
	}
	for i, wh := range cfg.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config: webhooks[%d].url must not be empty", i)
		}
	}
	return nil
}

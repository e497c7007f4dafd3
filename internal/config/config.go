package config

import (
	"os"
)

import (
	"gopkg.in/yaml.v3"
)

// ServerCfg holds the HTTP listen address.
type ServerCfg struct {
	HTTPAddr string `yaml:"httpAddr"` // e.g. ":8080" or "0.0.0.0:8080"
}

// RedisCfg holds the connection and namespace settings for flag storage.
type RedisCfg struct {
	Addr           string `yaml:"addr"`           // Redis address, e.g. "127.0.0.1:6379"
	Password       string `yaml:"password"`       // Redis password
	DB             int    `yaml:"db"`             // Redis DB index
	Prefix         string `yaml:"prefix"`         // Key prefix
	UpdatesChannel string `yaml:"updatesChannel"` // Pub/Sub channel for flag updates
	PoolSize       int    `yaml:"poolSize"`       // Connection pool size
	MinIdleConns   int    `yaml:"minIdleConns"`   // Minimum idle connections
	ReadTimeoutMs  int    `yaml:"readTimeoutMs"`  // Read timeout (ms)
	WriteTimeoutMs int    `yaml:"writeTimeoutMs"` // Write timeout (ms)
	DialTimeoutMs  int    `yaml:"dialTimeoutMs"`  // Dial timeout (ms)
}

// SourceCfg points at an external flag document served over HTTP
// (pull mode).
type SourceCfg struct {
	Addr           string `yaml:"addr"`           // base URL, e.g. "http://127.0.0.1:8848"
	Path           string `yaml:"path"`           // document path, default "/flags"
	Username       string `yaml:"username"`       // optional basic auth
	Password       string `yaml:"password"`       // optional basic auth
	PollIntervalMs int    `yaml:"pollIntervalMs"` // default 5000
	TimeoutMs      int    `yaml:"timeoutMs"`      // default 2000
	FailPolicy     string `yaml:"failPolicy"`     // fail-open | fail-closed
	Format         string `yaml:"format"`         // json | yaml (auto-detect if empty)
}

func (s SourceCfg) Enabled() bool {
	return s.Addr != ""
}

// Flag is one feature flag: the demo payload published through the
// clone-on-write container.
type Flag struct {
	Key         string `yaml:"key"         json:"key"`         // unique flag key, e.g. "checkout.newFlow"
	Enabled     bool   `yaml:"enabled"     json:"enabled"`     // on/off switch
	Value       string `yaml:"value"       json:"value"`       // optional variant payload
	Description string `yaml:"description" json:"description"` // human-readable note
	UpdatedAtMs int64  `yaml:"updatedAtMs" json:"updatedAtMs"` // last-writer-wins timestamp
}

// Config is the full service configuration.
type Config struct {
	Server         ServerCfg `yaml:"server"`
	Redis          RedisCfg  `yaml:"redis"`
	Source         SourceCfg `yaml:"source"`
	BootstrapFlags []Flag    `yaml:"bootstrapFlags"` // flags seeded on first start
}

// Load reads a YAML config file, expanding ${ENV} references first.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(b))
	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

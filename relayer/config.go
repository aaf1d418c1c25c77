package relayer

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vledger/core/auth"
	"vledger/observability/otel"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config captures the runtime configuration for the relayer.
type Config struct {
	ListenAddress    string          `yaml:"listen"`
	Node             NodeConfig      `yaml:"node"`
	Domain           auth.Domain     `yaml:"domain"`
	JournalPath      string          `yaml:"journal"`
	JournalRetention Duration        `yaml:"journal_retention"`
	OwnerTimeout     Duration        `yaml:"owner_timeout"`
	MinPriorityFee   uint64          `yaml:"min_priority_fee"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	Environment      string          `yaml:"environment"`
	LogLevel         string          `yaml:"log_level"`
	Telemetry        otel.Config     `yaml:"telemetry"`
}

// NodeConfig points the relayer at a vledger node.
type NodeConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
	// SignerKeyEnv names an environment variable holding the hex private key
	// used for identity-bound calls such as secure transfer requests.
	SignerKeyEnv string `yaml:"signer_key_env"`
	// Keystore is an encrypted key file used when SignerKeyEnv is unset. Its
	// passphrase is read from KeystorePassEnv.
	Keystore        string `yaml:"keystore"`
	KeystorePassEnv string `yaml:"keystore_pass_env"`
}

// RateLimitConfig bounds submissions per client address.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// DefaultConfig returns a configuration suitable for a local devnet.
func DefaultConfig() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8090"
	}
	if cfg.Node.URL == "" {
		cfg.Node.URL = "http://127.0.0.1:8545"
	}
	if cfg.Node.Timeout.Duration <= 0 {
		cfg.Node.Timeout.Duration = 10 * time.Second
	}
	if cfg.Domain.Name == "" {
		cfg.Domain = auth.DefaultDomain()
	}
	if cfg.JournalRetention.Duration <= 0 {
		cfg.JournalRetention.Duration = 24 * time.Hour
	}
	if cfg.OwnerTimeout.Duration <= 0 {
		cfg.OwnerTimeout.Duration = defaultOwnerTimeout
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "relayerd"
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen address required")
	}
	parsed, err := url.Parse(c.Node.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("node url %q must be an http(s) URL", c.Node.URL)
	}
	if c.Domain.Version != auth.ProtocolVersion {
		return fmt.Errorf("domain version %d unsupported, expected %d", c.Domain.Version, auth.ProtocolVersion)
	}
	if c.Domain.ChainID == 0 {
		return errors.New("domain chainId required")
	}
	if c.Node.Keystore != "" && c.Node.KeystorePassEnv == "" {
		return errors.New("node keystore_pass_env required when keystore is set")
	}
	return nil
}

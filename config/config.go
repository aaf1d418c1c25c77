package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vledger/core/auth"
	"vledger/crypto"
	"vledger/indexer"
	"vledger/observability/logging"
	"vledger/observability/otel"
	"vledger/rpc"
)

const (
	DefaultAdminPassEnv    = "VLEDGER_ADMIN_PASSPHRASE"
	DefaultChallengeWindow = 5 * time.Minute
)

type Config struct {
	DataDir        string `toml:"DataDir"`
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	Environment    string `toml:"Environment"`

	// AdminKeystorePath holds the operator key generated on first run. Its
	// identity is always an administrator. The passphrase is read from the
	// environment variable named by AdminPassEnv.
	AdminKeystorePath string   `toml:"AdminKeystorePath"`
	AdminKeystoreKDF  string   `toml:"AdminKeystoreKDF"`
	AdminPassEnv      string   `toml:"AdminPassEnv"`
	Admins            []string `toml:"Admins"`

	Domain          auth.Domain   `toml:"Domain"`
	ChallengeWindow time.Duration `toml:"ChallengeWindow"`

	// DevPlaintext serves the plaintext ciphertext double and enables the
	// dev encrypt/decrypt RPC helpers. PlaintextKey (hex, 32 bytes) keeps
	// input proofs valid across restarts.
	DevPlaintext bool   `toml:"DevPlaintext"`
	PlaintextKey string `toml:"PlaintextKey"`

	Auth      rpc.AuthConfig `toml:"Auth"`
	Logging   LoggingConfig  `toml:"Logging"`
	Indexer   indexer.Config `toml:"Indexer"`
	Telemetry otel.Config    `toml:"Telemetry"`

	passphrase func() (string, error)
}

// Option customises Load.
type Option func(*Config)

// WithKeystorePassphraseSource overrides how the admin keystore passphrase is
// obtained. By default it is read from the AdminPassEnv variable.
func WithKeystorePassphraseSource(src func() (string, error)) Option {
	return func(c *Config) {
		c.passphrase = src
	}
}

type LoggingConfig struct {
	Level string             `toml:"Level"`
	File  logging.FileConfig `toml:"File"`
}

// Load reads the node configuration at path. A missing file is created with
// defaults together with a fresh admin keystore.
func Load(path string, opts ...Option) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, opts...)
	}

	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}
	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vledger-data"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.AdminKeystoreKDF == "" {
		cfg.AdminKeystoreKDF = crypto.KDFStandard
	}
	if strings.TrimSpace(cfg.AdminPassEnv) == "" {
		cfg.AdminPassEnv = DefaultAdminPassEnv
	}
	if cfg.Domain.Name == "" {
		cfg.Domain = auth.DefaultDomain()
	}
	if cfg.ChallengeWindow <= 0 {
		cfg.ChallengeWindow = DefaultChallengeWindow
	}
	if cfg.Admins == nil {
		cfg.Admins = []string{}
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "vledgerd"
	}
}

// AdminPassphrase resolves the admin keystore passphrase.
func (c *Config) AdminPassphrase() (string, error) {
	if c.passphrase != nil {
		return c.passphrase()
	}
	return os.Getenv(c.AdminPassEnv), nil
}

// LoadAdminKey decrypts the operator keystore.
func (c *Config) LoadAdminKey() (*crypto.PrivateKey, error) {
	pass, err := c.AdminPassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(c.AdminKeystorePath, pass)
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	pass, err := cfg.AdminPassphrase()
	if err != nil {
		return err
	}
	if _, _, err := crypto.LoadOrCreateKeystore(keystorePath, pass, cfg.AdminKeystoreKDF); err != nil {
		return fmt.Errorf("admin keystore: %w", err)
	}
	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, opts ...Option) (*Config, error) {
	cfg := &Config{AdminKeystoreKDF: os.Getenv("VLEDGER_KEYSTORE_KDF")}
	for _, opt := range opts {
		opt(cfg)
	}
	applyDefaults(cfg)
	cfg.DevPlaintext = true
	cfg.MetricsAddress = ":9090"
	cfg.Indexer.DSN = filepath.Join(cfg.DataDir, "index.db")
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}

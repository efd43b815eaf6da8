package walletd

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"gopkg.in/yaml.v2"
)

// Config is the full runtime configuration loaded from config.yml.
// It is treated as immutable once applied to the ConfigStore.
type Config struct {
	Logging        LoggingConfig        `yaml:"logging,omitempty"`
	Network        string               `yaml:"network"`
	APIPort        uint16               `yaml:"api_port"`
	HealthPort     uint16               `yaml:"health_port"`
	Wallet         WalletConfig         `yaml:"wallet"`
	Daemon         DaemonConfig         `yaml:"daemon"`
	WalletRPC      WalletRPCConfig      `yaml:"wallet_rpc"`
	Refresh        RefreshConfig        `yaml:"refresh,omitempty"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit,omitempty"`
	ClientIdentity ClientIdentityConfig `yaml:"client_identity,omitempty"`
	Journal        JournalConfig        `yaml:"journal,omitempty"`
	Receipts       ReceiptsConfig       `yaml:"receipts"`
}

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type LoggingConfig struct {
	Level  string    `yaml:"level"`
	Format LogFormat `yaml:"format,omitempty"`
}

type WalletConfig struct {
	Path         string `yaml:"path"`
	Password     string `yaml:"password,omitempty"`
	SeedLanguage string `yaml:"seed_language,omitempty"`
	DefaultMixin uint32 `yaml:"default_mixin,omitempty"`
	// CreateIfMissing defaults to true when omitted.
	CreateIfMissing *bool `yaml:"create_if_missing,omitempty"`
}

func (w WalletConfig) CreateIfMissingOrDefault() bool {
	if w.CreateIfMissing == nil {
		return true
	}
	return *w.CreateIfMissing
}

type DaemonConfig struct {
	Address                   string `yaml:"address"`
	Trusted                   bool   `yaml:"trusted,omitempty"`
	UpperTransactionSizeLimit uint64 `yaml:"upper_transaction_size_limit,omitempty"`
	AsyncInit                 bool   `yaml:"async_init,omitempty"`
}

type WalletRPCConfig struct {
	Address        string `yaml:"address"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	WalletDir      string `yaml:"wallet_dir,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

func (r WalletRPCConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type RefreshConfig struct {
	IntervalSeconds int `yaml:"interval_seconds,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`
}

func (r RefreshConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

func (r RefreshConfig) EnabledOrDefault() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

type RateLimitConfig struct {
	// Enabled defaults to true when omitted.
	Enabled           *bool `yaml:"enabled,omitempty"`
	RequestsPerMinute int   `yaml:"requests_per_minute,omitempty"`
	Burst             int   `yaml:"burst,omitempty"`
}

func (r RateLimitConfig) EnabledOrDefault() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

type JournalConfig struct {
	// TTLSeconds controls how long a built, unrelayed transfer is kept.
	TTLSeconds int `yaml:"ttl_seconds,omitempty"`
}

func (j JournalConfig) TTL() time.Duration {
	return time.Duration(j.TTLSeconds) * time.Second
}

// ReceiptsConfig holds the ed25519 key pair transfer receipts are signed with.
type ReceiptsConfig struct {
	PrivateKey PrivateKey `yaml:"private_key"`
	PublicKey  PublicKey  `yaml:"public_key"`
}

const receiptKeyID = "xmrwalletd-receipts"

func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Wallet.CreateIfMissing = cloneBool(c.Wallet.CreateIfMissing)
	out.Refresh.Enabled = cloneBool(c.Refresh.Enabled)
	out.RateLimit.Enabled = cloneBool(c.RateLimit.Enabled)
	out.Receipts = ReceiptsConfig{
		PrivateKey: PrivateKey(append([]byte(nil), c.Receipts.PrivateKey...)),
		PublicKey:  PublicKey(append([]byte(nil), c.Receipts.PublicKey...)),
	}
	return &out
}

// Normalize fills defaults, stabilizes casing/whitespace, and may persist
// generated receipt keys back to disk so reloads remain deterministic.
func (c *Config) Normalize(path string) {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	} else {
		c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	}
	c.Logging.Format = LogFormat(strings.ToLower(strings.TrimSpace(string(c.Logging.Format))))
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	if c.Network == "" {
		c.Network = xmrwallet.Mainnet.String()
	}
	if c.APIPort == 0 {
		c.APIPort = 8080
	}
	if c.HealthPort == 0 {
		c.HealthPort = 50051
	}
	c.Wallet.Path = strings.TrimSpace(c.Wallet.Path)
	if strings.TrimSpace(c.Wallet.SeedLanguage) == "" {
		c.Wallet.SeedLanguage = "English"
	}
	c.Daemon.Address = strings.TrimSpace(c.Daemon.Address)
	if c.Daemon.Address == "" {
		c.Daemon.Address = "127.0.0.1:18081"
	}
	c.WalletRPC.Address = strings.TrimSpace(c.WalletRPC.Address)
	if c.WalletRPC.Address == "" {
		c.WalletRPC.Address = "http://127.0.0.1:18083/json_rpc"
	}
	if c.WalletRPC.TimeoutSeconds <= 0 {
		c.WalletRPC.TimeoutSeconds = 30
	}
	if c.Refresh.IntervalSeconds <= 0 {
		c.Refresh.IntervalSeconds = int(xmrwallet.DefaultRefreshInterval / time.Second)
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 30
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.ClientIdentity.Strategy == "" {
		c.ClientIdentity.Strategy = ClientIdentityStrategyRemoteAddr
	}
	c.ClientIdentity.Strategy = ClientIdentityStrategy(strings.ToLower(string(c.ClientIdentity.Strategy)))
	if strings.TrimSpace(c.ClientIdentity.Header) == "" {
		c.ClientIdentity.Header = "X-Forwarded-For"
	}
	if c.Journal.TTLSeconds <= 0 {
		c.Journal.TTLSeconds = 3600
	}
	if generated, err := c.Receipts.GenerateKeys(); err != nil {
		panic(err)
	} else if generated && path != "" {
		// Persist generated keys so subsequent reloads are deterministic.
		SaveConfig(path, c)
	}
}

// Validate checks that the normalized config is internally consistent.
func (c *Config) Validate() error {
	if _, ok := parseLogLevel(c.Logging.Level); !ok {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != LogFormatText && c.Logging.Format != LogFormatJSON {
		return fmt.Errorf("logging.format must be one of: text, json")
	}
	if _, err := xmrwallet.ParseNetwork(c.Network); err != nil {
		return fmt.Errorf("network must be one of: mainnet, testnet, stagenet")
	}
	if c.APIPort == 0 {
		return fmt.Errorf("api_port must be set")
	}
	if c.HealthPort == c.APIPort {
		return fmt.Errorf("health_port must differ from api_port")
	}
	if c.Wallet.Path == "" {
		return fmt.Errorf("wallet.path is required")
	}
	if c.Daemon.Address == "" {
		return fmt.Errorf("daemon.address is required")
	}
	if c.WalletRPC.Address == "" {
		return fmt.Errorf("wallet_rpc.address is required")
	}
	if c.Refresh.IntervalSeconds <= 0 {
		return fmt.Errorf("refresh.interval_seconds must be > 0")
	}
	if c.RateLimit.EnabledOrDefault() {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be > 0")
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be > 0")
		}
	}
	switch c.ClientIdentity.Strategy {
	case ClientIdentityStrategyRemoteAddr, ClientIdentityStrategyXFF, ClientIdentityStrategyXFFUA, ClientIdentityStrategyHeader, ClientIdentityStrategyHeaderUA:
	default:
		return fmt.Errorf("client_identity.strategy must be one of: remote_address, xff, xff_ua, header, header_ua")
	}
	if c.Journal.TTLSeconds <= 0 {
		return fmt.Errorf("journal.ttl_seconds must be > 0")
	}
	if len(c.Receipts.PrivateKey) != ed25519.PrivateKeySize || len(c.Receipts.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("receipts keys are required")
	}
	return nil
}

// NetworkType returns the parsed network; call after Validate.
func (c *Config) NetworkType() xmrwallet.Network {
	n, _ := xmrwallet.ParseNetwork(c.Network)
	return n
}

func (r *ReceiptsConfig) GenerateKeys() (bool, error) {
	if len(r.PrivateKey) > 0 || len(r.PublicKey) > 0 {
		return false, nil
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return false, err
	}
	r.PrivateKey = PrivateKey(priv)
	r.PublicKey = PublicKey(pub)

	// Logger may not be initialized yet, so use the standard logger here.
	log.Printf("generated receipt signing keys (kid %s)", receiptKeyID)
	return true, nil
}

func (r ReceiptsConfig) GetJWK() (jwk.Key, error) {
	key, err := jwk.Import(ed25519.PublicKey(r.PublicKey))
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, receiptKeyID); err != nil {
		return nil, fmt.Errorf("set kid: %w", err)
	}
	return key, nil
}

func (r ReceiptsConfig) GetSigningJWK() (jwk.Key, error) {
	key, err := jwk.Import(ed25519.PrivateKey(r.PrivateKey))
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, receiptKeyID); err != nil {
		return nil, fmt.Errorf("set kid: %w", err)
	}
	return key, nil
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func boolPtr(v bool) *bool {
	return &v
}

func LoadOrCreateConfig(path string, defaultCfg *Config) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err == nil {
		return cfg, nil
	}

	// Any errors other than file not found?
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = defaultCfg.Clone()
	if err := SaveConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize(path)

	return &cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	// Normalize before save so the watcher can re-load without churn.
	cfg.Normalize("")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return writeFileAtomic(path, data, 0o600)
}

package configloader

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"futarchy_wallet/internal/domain/entity"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-specific configurations.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

// WalletConfig describes the wallet the provider exposes and where it should connect by default.
type WalletConfig struct {
	// Accounts are the addresses returned by eth_requestAccounts. Empty means ask the node (eth_accounts).
	Accounts       []string `yaml:"accounts"`
	DefaultNetwork string   `yaml:"defaultNetwork"`
	InitialChainID uint64   `yaml:"initialChainId"`
}

// SessionConfig holds the persisted session store settings.
type SessionConfig struct {
	FilePath string `yaml:"filePath"`
}

// RPCConfig holds settings for outbound JSON-RPC calls.
type RPCConfig struct {
	CallTimeoutSeconds       int     `yaml:"callTimeoutSeconds"`
	ConnectionTimeoutSeconds int     `yaml:"connectionTimeoutSeconds"`
	RateLimit                float64 `yaml:"rateLimit"`
	BurstLimit               int     `yaml:"burstLimit"`
	ProbeEndpoints           bool    `yaml:"probeEndpoints"`
	ProbeTimeoutMillis       int64   `yaml:"probeTimeoutMillis"`
}

// PollingConfig holds the intervals of the chain synchronizer and the receipt monitor.
type PollingConfig struct {
	BlockIntervalMillis     int64 `yaml:"blockIntervalMillis"`
	BackstopIntervalSeconds int   `yaml:"backstopIntervalSeconds"`
	ConnectionCheckSeconds  int   `yaml:"connectionCheckSeconds"`
	ReceiptIntervalMillis   int64 `yaml:"receiptIntervalMillis"`
	ReceiptTimeoutSeconds   int   `yaml:"receiptTimeoutSeconds"`
}

// ClaimConfig holds the airdrop parameters.
type ClaimConfig struct {
	// AirdropAmount is the raw amount minted by one claim, as a base-10 string.
	AirdropAmount      string `yaml:"airdropAmount"`
	GasLimit           uint64 `yaml:"gasLimit"`
	GasPriceMultiplier int64  `yaml:"gasPriceMultiplier"`
}

// NetworksConfig holds registry overrides.
type NetworksConfig struct {
	Overrides      []entity.NetworkOverride `yaml:"overrides"`
	DeploymentFile string                   `yaml:"deploymentFile"`
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Spec    string `yaml:"spec"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Locale   string         `yaml:"locale"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Session  SessionConfig  `yaml:"session"`
	RPC      RPCConfig      `yaml:"rpc"`
	Polling  PollingConfig  `yaml:"polling"`
	Claim    ClaimConfig    `yaml:"claim"`
	Networks NetworksConfig `yaml:"networks"`
	Swagger  SwaggerConfig  `yaml:"swagger"`
}

// DefaultAirdropAmount is 1000 tokens with 18 decimals.
const DefaultAirdropAmount = "1000000000000000000000"

// Load reads the YAML configuration file from the given path, unmarshals it and applies defaults.
func Load(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.Wallet.DefaultNetwork == "" {
		cfg.Wallet.DefaultNetwork = "amoy"
		logrus.Infof("Wallet.DefaultNetwork not set, defaulting to %s", cfg.Wallet.DefaultNetwork)
	}
	if cfg.Session.FilePath == "" {
		cfg.Session.FilePath = "data/session.yml"
	}

	if cfg.RPC.CallTimeoutSeconds <= 0 {
		cfg.RPC.CallTimeoutSeconds = 10 // Default to 10 seconds if not specified or invalid
	}
	if cfg.RPC.ConnectionTimeoutSeconds <= 0 {
		cfg.RPC.ConnectionTimeoutSeconds = 10
	}
	if cfg.RPC.RateLimit <= 0 {
		cfg.RPC.RateLimit = 20
	}
	if cfg.RPC.BurstLimit <= 0 {
		cfg.RPC.BurstLimit = 40
	}
	if cfg.RPC.ProbeTimeoutMillis <= 0 {
		cfg.RPC.ProbeTimeoutMillis = 3000
	}

	if cfg.Polling.BlockIntervalMillis <= 0 {
		cfg.Polling.BlockIntervalMillis = 4000
	}
	if cfg.Polling.BackstopIntervalSeconds <= 0 {
		cfg.Polling.BackstopIntervalSeconds = 30
	}
	if cfg.Polling.ConnectionCheckSeconds <= 0 {
		cfg.Polling.ConnectionCheckSeconds = 15
	}
	if cfg.Polling.ReceiptIntervalMillis <= 0 {
		cfg.Polling.ReceiptIntervalMillis = 2000
	}
	if cfg.Polling.ReceiptTimeoutSeconds <= 0 {
		cfg.Polling.ReceiptTimeoutSeconds = 300
	}

	if cfg.Claim.AirdropAmount == "" {
		cfg.Claim.AirdropAmount = DefaultAirdropAmount
	}
	if cfg.Claim.GasLimit == 0 {
		cfg.Claim.GasLimit = 200000
	}
	if cfg.Claim.GasPriceMultiplier <= 0 {
		cfg.Claim.GasPriceMultiplier = 2
		logrus.Infof("Claim.GasPriceMultiplier not set, defaulting to %d", cfg.Claim.GasPriceMultiplier)
	}

	if cfg.Swagger.Path == "" {
		cfg.Swagger.Path = "/swagger"
	}
	if cfg.Swagger.Spec == "" {
		cfg.Swagger.Spec = "./docs/swagger.yaml"
	}
}

func validate(cfg *Config) error {
	if _, ok := new(big.Int).SetString(cfg.Claim.AirdropAmount, 10); !ok {
		return fmt.Errorf("claim.airdropAmount %q is not a base-10 integer", cfg.Claim.AirdropAmount)
	}
	for i, o := range cfg.Networks.Overrides {
		if o.ChainID == 0 {
			return fmt.Errorf("networks.overrides[%d]: chainId is required", i)
		}
	}
	for _, acc := range cfg.Wallet.Accounts {
		if len(acc) != 42 || acc[:2] != "0x" {
			logrus.Warnf("Wallet account %q does not look like a hex address", acc)
		}
	}
	return nil
}

// AirdropAmount returns the parsed airdrop threshold.
func (c *Config) AirdropAmount() *big.Int {
	v, _ := new(big.Int).SetString(c.Claim.AirdropAmount, 10)
	return v
}

// CallTimeout returns the per-call RPC timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.RPC.CallTimeoutSeconds) * time.Second
}

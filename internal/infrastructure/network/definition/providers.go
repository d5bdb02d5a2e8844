package networkdefinition

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"

	"gopkg.in/yaml.v3"
)

// LocalChainID is the chain ID of the local development network (hardhat/anvil).
const LocalChainID uint64 = 31337

const (
	defaultClaimGasLimit      uint64 = 200000
	defaultGasPriceMultiplier int64  = 2
)

// Predefined network definitions
var ( //nolint:gochecknoglobals // Global for definitions
	Polygon = entity.NetworkConfig{
		ChainID:           137,
		Key:               "polygon",
		DisplayName:       "Polygon Mainnet",
		RPCURLs:           []string{"https://polygon-rpc.com/", "https://polygon.publicnode.com"},
		BlockExplorerURLs: []string{"https://polygonscan.com"},
		NativeCurrency:    entity.NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18},
		Contracts: entity.ContractAddresses{
			ConditionalTokens: "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			USDC:              "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		},
		Token:       entity.TokenMetadata{Symbol: "PLAY", Decimals: 18},
		GasSettings: entity.GasSettings{GasLimit: defaultClaimGasLimit, GasPriceMultiplier: defaultGasPriceMultiplier},
	}
	PolygonAmoy = entity.NetworkConfig{
		ChainID:           80002,
		Key:               "amoy",
		DisplayName:       "Polygon Amoy Testnet",
		RPCURLs:           []string{"https://rpc-amoy.polygon.technology", "https://polygon-amoy.publicnode.com"},
		BlockExplorerURLs: []string{"https://amoy.polygonscan.com"},
		NativeCurrency:    entity.NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		Contracts: entity.ContractAddresses{
			PlayToken: "0x7E5f4552091A69125d5DfCb7b8C2659029395Bdf",
			USDC:      "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		},
		Token:        entity.TokenMetadata{Symbol: "PLAY", Decimals: 18},
		IsTestnet:    true,
		ClaimEnabled: true,
		FaucetURL:    "https://faucet.polygon.technology/",
		GasSettings:  entity.GasSettings{GasLimit: defaultClaimGasLimit, GasPriceMultiplier: defaultGasPriceMultiplier},
	}
	Sepolia = entity.NetworkConfig{
		ChainID:           11155111,
		Key:               "sepolia",
		DisplayName:       "Sepolia Testnet",
		RPCURLs:           []string{"https://ethereum-sepolia-rpc.publicnode.com", "https://rpc.sepolia.org"},
		BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
		NativeCurrency:    entity.NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		Contracts: entity.ContractAddresses{
			USDC: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		},
		Token:       entity.TokenMetadata{Symbol: "PLAY", Decimals: 18},
		IsTestnet:   true,
		FaucetURL:   "https://sepoliafaucet.com/",
		GasSettings: entity.GasSettings{GasLimit: defaultClaimGasLimit, GasPriceMultiplier: defaultGasPriceMultiplier},
	}
	Localhost = entity.NetworkConfig{
		ChainID:           LocalChainID,
		Key:               "localhost",
		DisplayName:       "Localhost 8545",
		RPCURLs:           []string{"http://127.0.0.1:8545"},
		BlockExplorerURLs: []string{},
		NativeCurrency:    entity.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		Token:             entity.TokenMetadata{Symbol: "PLAY", Decimals: 18},
		IsTestnet:         true,
		ClaimEnabled:      true,
		GasSettings:       entity.GasSettings{GasLimit: defaultClaimGasLimit, GasPriceMultiplier: defaultGasPriceMultiplier},
	}
)

// Registry is an immutable table of supported networks keyed by chain ID.
type Registry struct {
	byChainID map[uint64]entity.NetworkConfig
}

var _ port.NetworkRegistry = (*Registry)(nil)

// DefaultRegistry returns the registry of all predefined networks.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(Polygon, PolygonAmoy, Sepolia, Localhost)
	return r
}

// NewRegistry builds a registry. Two configs with the same chain ID are rejected.
func NewRegistry(networks ...entity.NetworkConfig) (*Registry, error) {
	r := &Registry{byChainID: make(map[uint64]entity.NetworkConfig, len(networks))}
	for _, n := range networks {
		if _, dup := r.byChainID[n.ChainID]; dup {
			return nil, fmt.Errorf("duplicate network definition for chain %d", n.ChainID)
		}
		r.byChainID[n.ChainID] = cloneNetwork(n)
	}
	return r, nil
}

// ByChainID returns the network for a chain ID.
func (r *Registry) ByChainID(chainID uint64) (entity.NetworkConfig, bool) {
	if r == nil {
		return entity.NetworkConfig{}, false
	}
	n, ok := r.byChainID[chainID]
	if !ok {
		return entity.NetworkConfig{}, false
	}
	return cloneNetwork(n), true
}

// ByKey returns the network with the given key ("amoy", "polygon", ...), case-insensitive.
func (r *Registry) ByKey(key string) (entity.NetworkConfig, bool) {
	if r == nil {
		return entity.NetworkConfig{}, false
	}
	for _, n := range r.byChainID {
		if strings.EqualFold(n.Key, key) {
			return cloneNetwork(n), true
		}
	}
	return entity.NetworkConfig{}, false
}

// All returns every network ordered by chain ID.
func (r *Registry) All() []entity.NetworkConfig {
	if r == nil {
		return []entity.NetworkConfig{}
	}
	out := make([]entity.NetworkConfig, 0, len(r.byChainID))
	for _, n := range r.byChainID {
		out = append(out, cloneNetwork(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// IsSupported reports whether the chain ID is in the registry.
func (r *Registry) IsSupported(chainID uint64) bool {
	_, ok := r.ByChainID(chainID)
	return ok
}

// WithOverride returns a copy of the registry with patch applied to chainID. The receiver is not modified.
// Patching an unknown chain ID is an error unless the patch carries RPC URLs, in which case a new entry is added.
func (r *Registry) WithOverride(chainID uint64, patch entity.NetworkOverride) (*Registry, error) {
	next := &Registry{byChainID: make(map[uint64]entity.NetworkConfig, len(r.byChainID)+1)}
	for id, n := range r.byChainID {
		next.byChainID[id] = n
	}

	base, ok := next.byChainID[chainID]
	if !ok {
		if len(patch.RPCURLs) == 0 {
			return nil, fmt.Errorf("cannot override unknown chain %d without rpc urls", chainID)
		}
		base = entity.NetworkConfig{
			ChainID:        chainID,
			Key:            fmt.Sprintf("chain-%d", chainID),
			DisplayName:    fmt.Sprintf("Chain %d", chainID),
			NativeCurrency: entity.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
			Token:          entity.TokenMetadata{Symbol: "PLAY", Decimals: 18},
			GasSettings:    entity.GasSettings{GasLimit: defaultClaimGasLimit, GasPriceMultiplier: defaultGasPriceMultiplier},
		}
	}
	next.byChainID[chainID] = applyOverride(base, patch)
	return next, nil
}

func applyOverride(n entity.NetworkConfig, patch entity.NetworkOverride) entity.NetworkConfig {
	out := cloneNetwork(n)
	if patch.DisplayName != "" {
		out.DisplayName = patch.DisplayName
	}
	if len(patch.RPCURLs) > 0 {
		out.RPCURLs = append([]string(nil), patch.RPCURLs...)
	}
	if patch.Contracts.PlayToken != "" {
		out.Contracts.PlayToken = patch.Contracts.PlayToken
	}
	if patch.Contracts.MarketFactory != "" {
		out.Contracts.MarketFactory = patch.Contracts.MarketFactory
	}
	if patch.Contracts.ConditionalTokens != "" {
		out.Contracts.ConditionalTokens = patch.Contracts.ConditionalTokens
	}
	if patch.Contracts.USDC != "" {
		out.Contracts.USDC = patch.Contracts.USDC
	}
	if patch.FaucetURL != "" {
		out.FaucetURL = patch.FaucetURL
	}
	if patch.GasLimit != 0 {
		out.GasSettings.GasLimit = patch.GasLimit
	}
	if patch.ClaimEnabled != nil {
		out.ClaimEnabled = *patch.ClaimEnabled
	}
	return out
}

func cloneNetwork(n entity.NetworkConfig) entity.NetworkConfig {
	n.RPCURLs = append([]string(nil), n.RPCURLs...)
	n.BlockExplorerURLs = append([]string(nil), n.BlockExplorerURLs...)
	return n
}

// Holder keeps the current registry. Engines read through it, so a reload is visible to all of them at once.
type Holder struct {
	current atomic.Pointer[Registry]
	logger  port.Logger
}

var _ port.NetworkRegistry = (*Holder)(nil)

// NewHolder creates a holder around an initial registry.
func NewHolder(initial *Registry, log port.Logger) *Holder {
	h := &Holder{logger: log}
	h.current.Store(initial)
	return h
}

// Current returns the registry in effect.
func (h *Holder) Current() *Registry { return h.current.Load() }

// Apply replaces the current registry with WithOverride(chainID, patch).
func (h *Holder) Apply(chainID uint64, patch entity.NetworkOverride) error {
	next, err := h.Current().WithOverride(chainID, patch)
	if err != nil {
		return err
	}
	h.current.Store(next)
	return nil
}

func (h *Holder) ByChainID(chainID uint64) (entity.NetworkConfig, bool) {
	return h.Current().ByChainID(chainID)
}

func (h *Holder) ByKey(key string) (entity.NetworkConfig, bool) { return h.Current().ByKey(key) }

func (h *Holder) All() []entity.NetworkConfig { return h.Current().All() }

func (h *Holder) IsSupported(chainID uint64) bool { return h.Current().IsSupported(chainID) }

// deploymentFile is the artifact written by the local deploy script. JSON is accepted too.
type deploymentFile struct {
	ChainID   uint64                   `yaml:"chainId"`
	RPCURL    string                   `yaml:"rpcUrl"`
	Contracts entity.ContractAddresses `yaml:"contracts"`
}

// ReloadDeployment reads contract addresses for the local dev network from path and applies them.
func (h *Holder) ReloadDeployment(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read deployment file %s: %w", path, err)
	}

	var dep deploymentFile
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return fmt.Errorf("failed to unmarshal deployment file %s: %w", path, err)
	}
	if dep.ChainID == 0 {
		dep.ChainID = LocalChainID
	}

	patch := entity.NetworkOverride{Contracts: dep.Contracts}
	if dep.RPCURL != "" {
		patch.RPCURLs = []string{dep.RPCURL}
	}
	if err := h.Apply(dep.ChainID, patch); err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Info("Contract addresses reloaded from deployment file",
			"path", path, "chain_id", dep.ChainID, "play_token", dep.Contracts.PlayToken)
	}
	return nil
}

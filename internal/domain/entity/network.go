package entity

import "fmt"

// NativeCurrency describes the gas currency of a chain.
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// ContractAddresses holds the contract addresses deployed on a network. Empty means not deployed.
type ContractAddresses struct {
	PlayToken         string `json:"playToken,omitempty" yaml:"playToken,omitempty"`
	MarketFactory     string `json:"marketFactory,omitempty" yaml:"marketFactory,omitempty"`
	ConditionalTokens string `json:"conditionalTokens,omitempty" yaml:"conditionalTokens,omitempty"`
	USDC              string `json:"usdc,omitempty" yaml:"usdc,omitempty"`
}

// GasSettings controls how claim transactions are priced on a network.
type GasSettings struct {
	GasLimit           uint64 `json:"gasLimit" yaml:"gasLimit"`
	GasPriceMultiplier int64  `json:"gasPriceMultiplier" yaml:"gasPriceMultiplier"`
}

// TokenMetadata is the fallback display metadata of the network's play token.
type TokenMetadata struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// NetworkConfig holds the configuration for a specific supported chain.
type NetworkConfig struct {
	ChainID           uint64            `json:"chainId" yaml:"chainId"`
	Key               string            `json:"key" yaml:"key"` // Уникальный идентификатор сети (например, "amoy")
	DisplayName       string            `json:"displayName" yaml:"displayName"`
	RPCURLs           []string          `json:"rpcUrls" yaml:"rpcUrls"`
	BlockExplorerURLs []string          `json:"blockExplorerUrls" yaml:"blockExplorerUrls"`
	NativeCurrency    NativeCurrency    `json:"nativeCurrency" yaml:"nativeCurrency"`
	Contracts         ContractAddresses `json:"contracts" yaml:"contracts"`
	Token             TokenMetadata     `json:"token" yaml:"token"`
	IsTestnet         bool              `json:"isTestnet" yaml:"isTestnet"`
	ClaimEnabled      bool              `json:"claimEnabled" yaml:"claimEnabled"`
	FaucetURL         string            `json:"faucetUrl,omitempty" yaml:"faucetUrl,omitempty"`
	GasSettings       GasSettings       `json:"gasSettings" yaml:"gasSettings"`
}

// ChainIDHex returns the chain ID as a 0x-prefixed hex quantity.
func (n NetworkConfig) ChainIDHex() string {
	return ChainIDToHex(n.ChainID)
}

// HasPlayToken reports whether a play token contract is configured.
func (n NetworkConfig) HasPlayToken() bool {
	return n.Contracts.PlayToken != "" && n.Contracts.PlayToken != ZeroAddress
}

// ChainIDToHex formats a chain ID the way wallet providers expect it.
func ChainIDToHex(chainID uint64) string {
	return fmt.Sprintf("0x%x", chainID)
}

// NetworkOverride is a partial NetworkConfig. Zero-valued fields leave the base untouched.
type NetworkOverride struct {
	ChainID     uint64            `yaml:"chainId"`
	DisplayName string            `yaml:"displayName"`
	RPCURLs     []string          `yaml:"rpcUrls"`
	Contracts   ContractAddresses `yaml:"contracts"`
	FaucetURL   string            `yaml:"faucetUrl"`
	GasLimit    uint64            `yaml:"gasLimit"`
	// ClaimEnabled is a pointer so that an override can switch claiming off.
	ClaimEnabled *bool `yaml:"claimEnabled"`
}

package entity

import "fmt"

// ProviderEvent is an event name emitted by a chain gateway.
type ProviderEvent string

const (
	EventAccountsChanged ProviderEvent = "accountsChanged"
	EventChainChanged    ProviderEvent = "chainChanged"
	EventDisconnect      ProviderEvent = "disconnect"
)

// EIP-1193 and JSON-RPC error codes returned by wallet providers.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeRequestPending    = -32002
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

// ProviderError is a wallet provider error. It satisfies go-ethereum's rpc.Error and rpc.DataError.
type ProviderError struct {
	Code    int
	Message string
	Data    any
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error.
func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorData implements rpc.DataError.
func (e *ProviderError) ErrorData() interface{} { return e.Data }

// NewProviderError creates a ProviderError.
func NewProviderError(code int, msg string) *ProviderError {
	return &ProviderError{Code: code, Message: msg}
}

// AddChainParameter is the wallet_addEthereumChain parameter object.
type AddChainParameter struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
}

// WatchAssetParameter is the wallet_watchAsset parameter object.
type WatchAssetParameter struct {
	Type    string            `json:"type"`
	Options WatchAssetOptions `json:"options"`
}

// WatchAssetOptions describes the ERC-20 token to register.
type WatchAssetOptions struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Image    string `json:"image,omitempty"`
}

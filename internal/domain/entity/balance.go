package entity

import (
	"math/big"
	"time"
)

// TokenBalanceSnapshot is the normalized play token view for the connected account.
type TokenBalanceSnapshot struct {
	Account        string    `json:"account,omitempty"`
	ChainID        uint64    `json:"chainId,omitempty"`
	TokenAddress   string    `json:"tokenAddress,omitempty"`
	BalanceRaw     *big.Int  `json:"-"`
	BalanceDisplay string    `json:"balance"`
	Symbol         string    `json:"symbol"`
	Decimals       uint8     `json:"decimals"`
	HasClaimed     bool      `json:"hasClaimed"`
	LastUpdated    time.Time `json:"lastUpdated"`
	Error          string    `json:"error,omitempty"`
}

// Raw returns the raw balance, never nil.
func (s TokenBalanceSnapshot) Raw() *big.Int {
	if s.BalanceRaw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.BalanceRaw)
}

// BalanceRawString is the decimal string of the raw balance, used by the HTTP layer.
func (s TokenBalanceSnapshot) BalanceRawString() string {
	return s.Raw().String()
}

// TokenCapabilities tells the presentation layer which token actions are available on the current chain.
type TokenCapabilities struct {
	ChainID     uint64 `json:"chainId"`
	CanClaim    bool   `json:"canClaim"`
	CanAddToken bool   `json:"canAddToken"`
	TokenAdded  bool   `json:"tokenAdded"`
	FaucetURL   string `json:"faucetUrl,omitempty"`
}

// TokenMetadata returns the symbol and decimals the snapshot was built with.
func (s TokenBalanceSnapshot) TokenMetadata() TokenMetadata {
	return TokenMetadata{Symbol: s.Symbol, Decimals: s.Decimals}
}

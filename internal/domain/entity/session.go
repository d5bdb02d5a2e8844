package entity

import "time"

// ConnectionState is the lifecycle state of the wallet connection.
type ConnectionState string

const (
	StateUninitialized ConnectionState = "uninitialized"
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
)

// WalletSession is the persisted record of a successful connection.
type WalletSession struct {
	Account     string    `json:"account" yaml:"account"`
	ChainID     uint64    `json:"chainId" yaml:"chainId"`
	IsConnected bool      `json:"isConnected" yaml:"isConnected"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
}

// Matches reports whether the session still describes the provider's current account and chain.
func (s WalletSession) Matches(account string, chainID uint64) bool {
	return s.IsConnected && SameAddress(s.Account, account) && s.ChainID == chainID
}

// WalletState is a read-only snapshot of the connection manager.
type WalletState struct {
	State       ConnectionState `json:"state"`
	Account     string          `json:"account,omitempty"`
	ChainID     uint64          `json:"chainId,omitempty"`
	IsConnected bool            `json:"isConnected"`
	HasProvider bool            `json:"hasProvider"`
}

// WalletStateChange is delivered to subscribers whenever the snapshot changes.
type WalletStateChange struct {
	Previous WalletState
	Current  WalletState
}

// AccountChanged reports whether the active account is different from before.
func (c WalletStateChange) AccountChanged() bool {
	return !SameAddress(c.Previous.Account, c.Current.Account)
}

// ChainChanged reports whether the active chain is different from before.
func (c WalletStateChange) ChainChanged() bool {
	return c.Previous.ChainID != c.Current.ChainID
}

package port

import (
	"context"

	"futarchy_wallet/internal/domain/entity"
)

// WalletStateReader exposes the connection manager's snapshot to other components.
type WalletStateReader interface {
	State() entity.WalletState
	Subscribe(listener func(entity.WalletStateChange)) (unsubscribe func())
}

// WalletManager owns the wallet connection lifecycle.
type WalletManager interface {
	WalletStateReader
	Init(ctx context.Context)
	Connect(ctx context.Context) bool
	Disconnect(ctx context.Context)
	SwitchNetwork(ctx context.Context, chainID uint64) bool
	AddNetwork(ctx context.Context, key string) bool
	RefreshConnection(ctx context.Context)
}

// TokenService exposes the play token balance and claim engine.
type TokenService interface {
	Snapshot() entity.TokenBalanceSnapshot
	RefreshBalance(ctx context.Context) entity.TokenBalanceSnapshot
	RefreshClaimStatus(ctx context.Context) bool
	ClaimTokens(ctx context.Context) entity.ClaimResult
	CheckTransactionStatus(ctx context.Context, txHash string) entity.TxStatus
	PendingClaim() (entity.ClaimTransaction, bool)
	AddTokenToWallet(ctx context.Context) bool
	Capabilities() entity.TokenCapabilities
}

// PortfolioService exposes the derived portfolio view.
type PortfolioService interface {
	Snapshot() entity.PortfolioSnapshot
	RefreshPortfolio(ctx context.Context) entity.PortfolioSnapshot
	RefreshBalance(ctx context.Context) entity.PortfolioSnapshot
}

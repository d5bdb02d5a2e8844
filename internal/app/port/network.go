package port

import (
	"context"

	"futarchy_wallet/internal/domain/entity"
)

// NetworkRegistry looks up supported network configurations.
type NetworkRegistry interface {
	// ByChainID возвращает конфигурацию и true, если сеть поддерживается.
	ByChainID(chainID uint64) (entity.NetworkConfig, bool)
	ByKey(key string) (entity.NetworkConfig, bool)
	All() []entity.NetworkConfig
	IsSupported(chainID uint64) bool
}

// PositionReader returns position-token balances for an account.
type PositionReader interface {
	Positions(ctx context.Context, network entity.NetworkConfig, account string) (entity.PositionSet, error)
}

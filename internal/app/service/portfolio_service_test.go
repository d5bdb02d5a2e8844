package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"futarchy_wallet/internal/domain/entity"
	"futarchy_wallet/internal/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPortfolio(t *testing.T, h *harness, reader stubPositions) *PortfolioServiceImpl {
	t.Helper()
	p := NewPortfolioService(h.gw, h.registry, h.wallet, reader, logger.NewDiscard())
	t.Cleanup(p.Close)
	return p
}

func TestPortfolioService_TotalIsCashPlusPositions(t *testing.T) {
	gw := newFakeGateway(amoyChainID)
	gw.setBalance(testAccount, airdrop)
	h := newHarness(t, gw, WalletManagerOptions{})
	h.connect(t)

	p := newTestPortfolio(t, h, stubPositions{set: entity.PositionSet{
		Positions: []entity.Position{{
			Address: "0x00000000000000000000000000000000000000c1",
			Symbol:  "YES",
			Balance: decimal.NewFromInt(10),
			Value:   decimal.NewFromInt(500),
		}},
	}})

	snap := p.RefreshPortfolio(context.Background())

	assert.True(t, snap.Cash.Equal(decimal.NewFromInt(1000)), snap.Cash.String())
	assert.Len(t, snap.Positions, 1)
	assert.True(t, snap.TotalValue.Equal(decimal.NewFromInt(1500)), snap.TotalValue.String())
	assert.Equal(t, "PLAY", snap.CashSymbol)
	assert.Empty(t, snap.Error)
}

func TestPortfolioService_AuthoritativeTotalWins(t *testing.T) {
	gw := newFakeGateway(amoyChainID)
	gw.setBalance(testAccount, airdrop)
	h := newHarness(t, gw, WalletManagerOptions{})
	h.connect(t)

	total := decimal.NewFromInt(1234)
	p := newTestPortfolio(t, h, stubPositions{set: entity.PositionSet{
		Positions:          []entity.Position{{Symbol: "NO", Value: decimal.NewFromInt(500)}},
		AuthoritativeTotal: &total,
	}})

	snap := p.RefreshPortfolio(context.Background())
	assert.True(t, snap.TotalValue.Equal(total))

	snap = p.RefreshBalance(context.Background())
	assert.True(t, snap.TotalValue.Equal(total))
}

func TestPortfolioService_RefreshBalanceKeepsPositions(t *testing.T) {
	gw := newFakeGateway(amoyChainID)
	gw.setBalance(testAccount, airdrop)
	h := newHarness(t, gw, WalletManagerOptions{})
	h.connect(t)
	calls := 0
	p := newTestPortfolio(t, h, stubPositions{
		set:   entity.PositionSet{Positions: []entity.Position{{Symbol: "YES", Value: decimal.NewFromInt(500)}}},
		calls: &calls,
	})
	ctx := context.Background()

	p.RefreshPortfolio(ctx)
	gw.setBalance(testAccount, new(big.Int).Mul(airdrop, big.NewInt(2)))

	snap := p.RefreshBalance(ctx)
	assert.Equal(t, 1, calls)
	assert.Len(t, snap.Positions, 1)
	assert.True(t, snap.Cash.Equal(decimal.NewFromInt(2000)))
	assert.True(t, snap.TotalValue.Equal(decimal.NewFromInt(2500)))
}

func TestPortfolioService_NotConnectedIsZeroWithoutError(t *testing.T) {
	gw := newFakeGateway(amoyChainID)
	h := newHarness(t, gw, WalletManagerOptions{})
	h.wallet.Init(context.Background())

	snap := h.portfolio.RefreshPortfolio(context.Background())
	assert.True(t, snap.TotalValue.IsZero())
	assert.True(t, snap.Cash.IsZero())
	assert.Empty(t, snap.Positions)
	assert.Empty(t, snap.Error)
}

func TestPortfolioService_UnsupportedChainIsZeroWithoutError(t *testing.T) {
	gw := newFakeGateway(1)
	h := newHarness(t, gw, WalletManagerOptions{})
	h.connect(t)

	snap := h.portfolio.RefreshPortfolio(context.Background())
	assert.True(t, snap.TotalValue.IsZero())
	assert.Empty(t, snap.Error)
	assert.Equal(t, 0, gw.ethCallCount(balanceOfSelector))
}

func TestPortfolioService_ReaderFailure(t *testing.T) {
	gw := newFakeGateway(amoyChainID)
	gw.setBalance(testAccount, airdrop)
	h := newHarness(t, gw, WalletManagerOptions{})
	h.connect(t)
	p := newTestPortfolio(t, h, stubPositions{err: errors.New("positions unavailable")})

	snap := p.RefreshPortfolio(context.Background())
	assert.True(t, snap.TotalValue.IsZero())
	assert.Contains(t, snap.Error, "positions unavailable")
}

func TestPortfolioService_AccountChangeResets(t *testing.T) {
	gw := newFakeGateway(amoyChainID)
	gw.setBalance(testAccount, airdrop)
	h := newHarness(t, gw, WalletManagerOptions{})
	h.connect(t)

	require.True(t, h.portfolio.RefreshPortfolio(context.Background()).Cash.Equal(decimal.NewFromInt(1000)))

	gw.emit(entity.EventAccountsChanged, []string{otherAccount})
	snap := h.portfolio.Snapshot()
	assert.Equal(t, otherAccount, snap.Account)
	assert.True(t, snap.Cash.IsZero())
}

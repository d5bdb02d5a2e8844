package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"
	"futarchy_wallet/internal/pkg/metrics"
	"futarchy_wallet/internal/pkg/utils"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PortfolioServiceImpl implements port.PortfolioService.
type PortfolioServiceImpl struct {
	gateway   port.ChainGateway
	registry  port.NetworkRegistry
	wallet    port.WalletStateReader
	positions port.PositionReader
	logger    port.Logger

	generation atomic.Uint64

	mu            sync.Mutex
	snapshot      entity.PortfolioSnapshot
	authoritative *decimal.Decimal
	unsubscribe   func()
}

var _ port.PortfolioService = (*PortfolioServiceImpl)(nil)

// NewPortfolioService creates a new instance of PortfolioServiceImpl.
func NewPortfolioService(
	gw port.ChainGateway,
	registry port.NetworkRegistry,
	wallet port.WalletStateReader,
	positions port.PositionReader,
	l port.Logger,
) *PortfolioServiceImpl {
	s := &PortfolioServiceImpl{
		gateway:   gw,
		registry:  registry,
		wallet:    wallet,
		positions: positions,
		logger:    l,
		snapshot:  zeroPortfolio(entity.WalletState{}),
	}
	s.unsubscribe = wallet.Subscribe(s.onWalletChange)
	return s
}

// Snapshot returns the last applied portfolio.
func (s *PortfolioServiceImpl) Snapshot() entity.PortfolioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPortfolio(s.snapshot)
}

// RefreshPortfolio fetches cash and positions concurrently and recomputes the total.
func (s *PortfolioServiceImpl) RefreshPortfolio(ctx context.Context) entity.PortfolioSnapshot {
	gen := s.generation.Add(1)
	st := s.wallet.State()
	netCfg, ok := s.activeNetwork(st)
	if !ok {
		return s.apply(gen, zeroPortfolio(st), nil)
	}

	var (
		cash decimal.Decimal
		set  entity.PositionSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.readCash(gctx, netCfg, st.Account)
		cash = c
		return err
	})
	g.Go(func() error {
		ps, err := s.positions.Positions(gctx, netCfg, st.Account)
		set = ps
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("Portfolio refresh failed", "account", st.Account, "chain_id", st.ChainID, "error", err)
		metrics.Refreshes.WithLabelValues("portfolio", "error").Inc()
		snap := zeroPortfolio(st)
		snap.CashSymbol = netCfg.Token.Symbol
		snap.Error = err.Error()
		return s.apply(gen, snap, nil)
	}

	positions := set.Positions
	if positions == nil {
		positions = []entity.Position{}
	}
	snap := entity.PortfolioSnapshot{
		Account:     st.Account,
		ChainID:     st.ChainID,
		Cash:        cash,
		CashSymbol:  netCfg.Token.Symbol,
		Positions:   positions,
		TotalValue:  entity.PortfolioTotal(cash, positions, set.AuthoritativeTotal),
		Limitation:  set.Limitation,
		LastUpdated: time.Now().UTC(),
	}
	metrics.Refreshes.WithLabelValues("portfolio", "ok").Inc()
	return s.apply(gen, snap, set.AuthoritativeTotal)
}

// RefreshBalance re-reads only the cash balance and keeps the last known positions.
func (s *PortfolioServiceImpl) RefreshBalance(ctx context.Context) entity.PortfolioSnapshot {
	gen := s.generation.Add(1)
	st := s.wallet.State()
	netCfg, ok := s.activeNetwork(st)
	if !ok {
		return s.apply(gen, zeroPortfolio(st), nil)
	}

	cash, err := s.readCash(ctx, netCfg, st.Account)

	s.mu.Lock()
	prev := copyPortfolio(s.snapshot)
	authoritative := s.authoritative
	s.mu.Unlock()

	snap := prev
	if !entity.SameAddress(prev.Account, st.Account) || prev.ChainID != st.ChainID {
		snap = zeroPortfolio(st)
		authoritative = nil
	}
	snap.CashSymbol = netCfg.Token.Symbol
	snap.LastUpdated = time.Now().UTC()
	if err != nil {
		s.logger.Warn("Portfolio cash refresh failed", "account", st.Account, "error", err)
		metrics.Refreshes.WithLabelValues("portfolio_cash", "error").Inc()
		snap.Error = err.Error()
		return s.apply(gen, snap, authoritative)
	}
	snap.Cash = cash
	snap.Error = ""
	snap.TotalValue = entity.PortfolioTotal(cash, snap.Positions, authoritative)
	metrics.Refreshes.WithLabelValues("portfolio_cash", "ok").Inc()
	return s.apply(gen, snap, authoritative)
}

// Close removes the wallet subscription.
func (s *PortfolioServiceImpl) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *PortfolioServiceImpl) activeNetwork(st entity.WalletState) (entity.NetworkConfig, bool) {
	if !st.IsConnected || st.Account == "" {
		return entity.NetworkConfig{}, false
	}
	netCfg, ok := s.registry.ByChainID(st.ChainID)
	if !ok || !netCfg.HasPlayToken() {
		return entity.NetworkConfig{}, false
	}
	return netCfg, true
}

func (s *PortfolioServiceImpl) readCash(ctx context.Context, netCfg entity.NetworkConfig, account string) (decimal.Decimal, error) {
	balance, err := newPlayToken(s.gateway, netCfg.Contracts.PlayToken).BalanceOf(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	return utils.ToDecimal(balance, netCfg.Token.Decimals), nil
}

func (s *PortfolioServiceImpl) apply(gen uint64, snap entity.PortfolioSnapshot, authoritative *decimal.Decimal) entity.PortfolioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation.Load() != gen {
		metrics.StaleResponses.WithLabelValues("portfolio").Inc()
		return copyPortfolio(s.snapshot)
	}
	s.snapshot = snap
	s.authoritative = authoritative
	return copyPortfolio(snap)
}

func (s *PortfolioServiceImpl) onWalletChange(change entity.WalletStateChange) {
	if !change.AccountChanged() && !change.ChainChanged() && change.Current.IsConnected == change.Previous.IsConnected {
		return
	}
	s.generation.Add(1)
	s.mu.Lock()
	s.snapshot = zeroPortfolio(change.Current)
	s.authoritative = nil
	s.mu.Unlock()
}

func zeroPortfolio(st entity.WalletState) entity.PortfolioSnapshot {
	return entity.PortfolioSnapshot{
		Account:     st.Account,
		ChainID:     st.ChainID,
		Cash:        decimal.Zero,
		Positions:   []entity.Position{},
		TotalValue:  decimal.Zero,
		LastUpdated: time.Now().UTC(),
	}
}

func copyPortfolio(p entity.PortfolioSnapshot) entity.PortfolioSnapshot {
	p.Positions = append([]entity.Position{}, p.Positions...)
	return p
}

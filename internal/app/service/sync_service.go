package service

import (
	"context"
	"sync"
	"time"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"
)

// SyncOptions holds the synchronizer intervals.
type SyncOptions struct {
	BlockInterval           time.Duration
	BackstopInterval        time.Duration
	ConnectionCheckInterval time.Duration
}

// SyncService keeps token and portfolio state in step with the chain while a wallet is connected.
type SyncService struct {
	wallet    port.WalletManager
	token     port.TokenService
	portfolio port.PortfolioService
	watcher   *BlockWatcher
	logger    port.Logger
	opts      SyncOptions

	mu             sync.Mutex
	root           context.Context
	rootCancel     context.CancelFunc
	watchersCancel context.CancelFunc
	wg             sync.WaitGroup
	unsubscribe    func()
	started        bool
}

// NewSyncService creates a stopped synchronizer.
func NewSyncService(
	wallet port.WalletManager,
	token port.TokenService,
	portfolio port.PortfolioService,
	watcher *BlockWatcher,
	l port.Logger,
	opts SyncOptions,
) *SyncService {
	if opts.BackstopInterval <= 0 {
		opts.BackstopInterval = 30 * time.Second
	}
	if opts.ConnectionCheckInterval <= 0 {
		opts.ConnectionCheckInterval = 15 * time.Second
	}
	return &SyncService{
		wallet:    wallet,
		token:     token,
		portfolio: portfolio,
		watcher:   watcher,
		logger:    l,
		opts:      opts,
	}
}

// Start begins the connection check loop and, when a wallet is connected, the refresh timers.
func (s *SyncService) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.root, s.rootCancel = context.WithCancel(context.Background())
	root := s.root
	s.mu.Unlock()

	s.unsubscribe = s.wallet.Subscribe(s.onWalletChange)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.connectionLoop(root)
	}()

	if st := s.wallet.State(); st.IsConnected {
		s.restartWatchers(st.Account)
	}
}

// Stop cancels every timer and waits for the goroutines to exit.
func (s *SyncService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.watchersCancel != nil {
		s.watchersCancel()
		s.watchersCancel = nil
	}
	s.rootCancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Chain synchronizer stopped")
}

func (s *SyncService) onWalletChange(change entity.WalletStateChange) {
	switch {
	case !change.Current.IsConnected:
		s.stopWatchers()
	case !change.Previous.IsConnected || change.AccountChanged() || change.ChainChanged():
		s.restartWatchers(change.Current.Account)
	}
}

// restartWatchers cancels the running timers without waiting for them; stale results are dropped by the engines.
func (s *SyncService) restartWatchers(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.watchersCancel != nil {
		s.watchersCancel()
	}
	ctx, cancel := context.WithCancel(s.root)
	s.watchersCancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.watcher.Run(ctx, s.onNewBlock)
	}()
	go func() {
		defer s.wg.Done()
		s.backstopLoop(ctx)
	}()
	s.logger.Debug("Chain synchronizer timers started", "account", account)
}

func (s *SyncService) stopWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchersCancel != nil {
		s.watchersCancel()
		s.watchersCancel = nil
		s.logger.Debug("Chain synchronizer timers stopped")
	}
}

func (s *SyncService) onNewBlock(ctx context.Context, block uint64) {
	s.logger.Debug("New block", "number", block)
	s.token.RefreshBalance(ctx)
	s.portfolio.RefreshBalance(ctx)
}

// backstopLoop runs a full refresh immediately and then on every backstop tick.
func (s *SyncService) backstopLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.BackstopInterval)
	defer ticker.Stop()
	for {
		s.fullRefresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SyncService) fullRefresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.token.RefreshBalance(ctx)
	s.token.RefreshClaimStatus(ctx)
	s.portfolio.RefreshPortfolio(ctx)
}

func (s *SyncService) connectionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ConnectionCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wallet.RefreshConnection(ctx)
		}
	}
}

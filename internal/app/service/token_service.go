package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"
	"futarchy_wallet/internal/pkg/i18n"
	"futarchy_wallet/internal/pkg/metrics"
	"futarchy_wallet/internal/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/text/message"
)

const (
	defaultReceiptInterval = 2 * time.Second
	defaultReceiptTimeout  = 5 * time.Minute
	defaultClaimGasLimit   = 200000
	defaultGasMultiplier   = 2
)

// TokenServiceOptions configures the token balance and claim engine.
type TokenServiceOptions struct {
	// AirdropAmount is the raw amount one claim mints. Balances at or above it count as claimed.
	AirdropAmount      *big.Int
	GasLimit           uint64
	GasPriceMultiplier int64
	ReceiptInterval    time.Duration
	ReceiptTimeout     time.Duration
	Locale             string
}

// txReceipt is the part of a transaction receipt the claim monitor needs.
type txReceipt struct {
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
}

// TokenServiceImpl implements port.TokenService.
type TokenServiceImpl struct {
	gateway  port.ChainGateway
	registry port.NetworkRegistry
	wallet   port.WalletStateReader
	store    port.SessionStore
	logger   port.Logger
	opts     TokenServiceOptions
	printer  *message.Printer

	generation atomic.Uint64

	mu             sync.Mutex
	snapshot       entity.TokenBalanceSnapshot
	claimedAccount string
	pending        *entity.ClaimTransaction
	monitoring     bool
	monitorCancel  context.CancelFunc
	metadata       map[string]entity.TokenMetadata

	claimMu     sync.Mutex
	monitorWG   sync.WaitGroup
	closeCtx    context.Context
	closeCancel context.CancelFunc
	unsubscribe func()
}

var _ port.TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates the engine and subscribes it to wallet state changes.
func NewTokenService(
	gw port.ChainGateway,
	registry port.NetworkRegistry,
	wallet port.WalletStateReader,
	store port.SessionStore,
	l port.Logger,
	opts TokenServiceOptions,
) *TokenServiceImpl {
	if opts.AirdropAmount == nil {
		opts.AirdropAmount = utils.ScaledUnits(1000, 18)
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = defaultClaimGasLimit
	}
	if opts.GasPriceMultiplier <= 0 {
		opts.GasPriceMultiplier = defaultGasMultiplier
	}
	if opts.ReceiptInterval <= 0 {
		opts.ReceiptInterval = defaultReceiptInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaultReceiptTimeout
	}

	closeCtx, closeCancel := context.WithCancel(context.Background())
	s := &TokenServiceImpl{
		gateway:     gw,
		registry:    registry,
		wallet:      wallet,
		store:       store,
		logger:      l,
		opts:        opts,
		printer:     i18n.Printer(opts.Locale),
		snapshot:    emptyTokenSnapshot(entity.WalletState{}, entity.TokenMetadata{Symbol: "PLAY", Decimals: 18}),
		metadata:    make(map[string]entity.TokenMetadata),
		closeCtx:    closeCtx,
		closeCancel: closeCancel,
	}
	s.unsubscribe = wallet.Subscribe(s.onWalletChange)
	return s
}

// Snapshot returns the last applied balance view.
func (s *TokenServiceImpl) Snapshot() entity.TokenBalanceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTokenSnapshot(s.snapshot)
}

// RefreshBalance reads balance and claim status for the connected account. Only the latest issued
// refresh is applied; earlier responses that arrive later are dropped.
func (s *TokenServiceImpl) RefreshBalance(ctx context.Context) entity.TokenBalanceSnapshot {
	gen := s.generation.Add(1)
	st := s.wallet.State()

	if !st.IsConnected || st.Account == "" {
		return s.apply(gen, emptyTokenSnapshot(st, entity.TokenMetadata{Symbol: "PLAY", Decimals: 18}))
	}

	netCfg, ok := s.registry.ByChainID(st.ChainID)
	if !ok || !netCfg.HasPlayToken() {
		snap := emptyTokenSnapshot(st, entity.TokenMetadata{Symbol: "PLAY", Decimals: 18})
		snap.Error = s.printer.Sprintf(i18n.BalanceNoContract)
		metrics.Refreshes.WithLabelValues("token", "unsupported").Inc()
		return s.apply(gen, snap)
	}

	var actual hexutil.Uint64
	if err := s.gateway.Request(ctx, "eth_chainId", &actual); err != nil {
		return s.applyFailure(gen, st, netCfg, err)
	}
	if uint64(actual) != st.ChainID {
		snap := emptyTokenSnapshot(st, netCfg.Token)
		snap.TokenAddress = netCfg.Contracts.PlayToken
		snap.Error = s.printer.Sprintf(i18n.BalanceNetworkMismatch, uint64(actual), st.ChainID)
		metrics.Refreshes.WithLabelValues("token", "mismatch").Inc()
		return s.apply(gen, snap)
	}

	token := newPlayToken(s.gateway, netCfg.Contracts.PlayToken)
	meta := s.tokenMetadata(ctx, netCfg, token)

	balance, err := token.BalanceOf(ctx, st.Account)
	if err != nil {
		return s.applyFailure(gen, st, netCfg, err)
	}
	claimed, err := token.HasClaimed(ctx, st.Account)
	if err != nil {
		s.logger.Debug("hasClaimed read failed, keeping previous claim status", "account", st.Account, "error", err)
		claimed = false
	}

	snap := entity.TokenBalanceSnapshot{
		Account:        st.Account,
		ChainID:        st.ChainID,
		TokenAddress:   netCfg.Contracts.PlayToken,
		BalanceRaw:     balance,
		BalanceDisplay: utils.FormatBigInt(balance, meta.Decimals),
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
		HasClaimed:     claimed || balance.Cmp(s.opts.AirdropAmount) >= 0,
		LastUpdated:    time.Now().UTC(),
	}
	metrics.Refreshes.WithLabelValues("token", "ok").Inc()
	return s.apply(gen, snap)
}

// RefreshClaimStatus infers the claim from the known balance first and reads the contract only when that is inconclusive.
func (s *TokenServiceImpl) RefreshClaimStatus(ctx context.Context) bool {
	st := s.wallet.State()
	if !st.IsConnected || st.Account == "" {
		return false
	}
	if s.knownClaimed(st.Account) {
		return true
	}

	netCfg, ok := s.registry.ByChainID(st.ChainID)
	if !ok || !netCfg.HasPlayToken() {
		return false
	}

	claimed, err := newPlayToken(s.gateway, netCfg.Contracts.PlayToken).HasClaimed(ctx, st.Account)
	if err != nil {
		s.logger.Warn("Failed to read claim status", "account", st.Account, "error", err)
		return false
	}
	if claimed {
		s.markClaimed(st.Account)
	}
	return claimed
}

// ClaimTokens runs the claim guards in order and submits the claim transaction when all of them pass.
func (s *TokenServiceImpl) ClaimTokens(ctx context.Context) entity.ClaimResult {
	if !s.claimMu.TryLock() {
		return s.claimResult(entity.OutcomeInProgress, s.printer.Sprintf(i18n.ClaimInProgress))
	}
	defer s.claimMu.Unlock()

	st := s.wallet.State()
	if !st.IsConnected || st.Account == "" {
		return s.claimResult(entity.OutcomeNotConnected, s.printer.Sprintf(i18n.ClaimNotConnected))
	}
	if s.claimPending(st.Account) {
		return s.claimResult(entity.OutcomeInProgress, s.printer.Sprintf(i18n.ClaimInProgress))
	}

	netCfg, ok := s.registry.ByChainID(st.ChainID)
	if !ok || !netCfg.ClaimEnabled || !netCfg.HasPlayToken() {
		return s.claimResult(entity.OutcomeUnsupportedNetwork,
			s.printer.Sprintf(i18n.ClaimUnsupportedNetwork, s.claimNetworkName()))
	}

	if s.knownClaimed(st.Account) {
		return s.claimResult(entity.OutcomeAlreadyClaimed, s.printer.Sprintf(i18n.ClaimAlreadyClaimed))
	}

	token := newPlayToken(s.gateway, netCfg.Contracts.PlayToken)
	claimed, err := token.HasClaimed(ctx, st.Account)
	if err != nil {
		s.logger.Warn("Claim aborted: claim status could not be confirmed", "account", st.Account, "error", err)
		return s.claimResult(entity.OutcomeRPCError, s.printer.Sprintf(i18n.ClaimFailed, err.Error()))
	}
	if claimed {
		s.markClaimed(st.Account)
		return s.claimResult(entity.OutcomeAlreadyClaimed, s.printer.Sprintf(i18n.ClaimAlreadyClaimed))
	}

	txHash, err := s.sendClaim(ctx, st.Account, netCfg)
	if err != nil {
		return s.classifyClaimError(err, st.Account, netCfg)
	}

	tx := entity.ClaimTransaction{
		TxHash:      txHash.Hex(),
		Account:     st.Account,
		ChainID:     st.ChainID,
		Status:      entity.ClaimPending,
		SubmittedAt: time.Now().UTC(),
	}
	s.startMonitor(tx)
	s.logger.Info("Claim transaction submitted", "account", st.Account, "tx_hash", tx.TxHash, "chain_id", st.ChainID)
	metrics.ClaimAttempts.WithLabelValues(string(entity.OutcomeSubmitted)).Inc()
	return entity.ClaimResult{
		Success: true,
		TxHash:  tx.TxHash,
		Outcome: entity.OutcomeSubmitted,
	}
}

func (s *TokenServiceImpl) sendClaim(ctx context.Context, account string, netCfg entity.NetworkConfig) (common.Hash, error) {
	var gasPrice hexutil.Big
	if err := s.gateway.Request(ctx, "eth_gasPrice", &gasPrice); err != nil {
		return common.Hash{}, fmt.Errorf("eth_gasPrice: %w", err)
	}
	var nonce hexutil.Uint64
	if err := s.gateway.Request(ctx, "eth_getTransactionCount", &nonce, common.HexToAddress(account), "pending"); err != nil {
		return common.Hash{}, fmt.Errorf("eth_getTransactionCount: %w", err)
	}

	gasLimit := s.opts.GasLimit
	if netCfg.GasSettings.GasLimit != 0 {
		gasLimit = netCfg.GasSettings.GasLimit
	}
	multiplier := s.opts.GasPriceMultiplier
	if netCfg.GasSettings.GasPriceMultiplier > 0 {
		multiplier = netCfg.GasSettings.GasPriceMultiplier
	}
	price := new(big.Int).Mul(gasPrice.ToInt(), big.NewInt(multiplier))

	tx := map[string]interface{}{
		"from":     common.HexToAddress(account),
		"to":       common.HexToAddress(netCfg.Contracts.PlayToken),
		"data":     claimSelector,
		"gas":      hexutil.Uint64(gasLimit),
		"gasPrice": (*hexutil.Big)(price),
		"nonce":    nonce,
	}
	var hash common.Hash
	if err := s.gateway.Request(ctx, "eth_sendTransaction", &hash, tx); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (s *TokenServiceImpl) classifyClaimError(err error, account string, netCfg entity.NetworkConfig) entity.ClaimResult {
	msg := strings.ToLower(err.Error() + " " + revertReason(err))
	switch {
	case isUserRejection(err):
		s.logger.Info("Claim rejected by user", "account", account)
		return s.claimResult(entity.OutcomeUserRejected, s.printer.Sprintf(i18n.ClaimUserRejected))
	case strings.Contains(msg, "insufficient funds"):
		s.logger.Warn("Claim failed: insufficient funds for gas", "account", account)
		res := s.claimResult(entity.OutcomeInsufficientFunds,
			s.printer.Sprintf(i18n.ClaimInsufficientFunds, netCfg.NativeCurrency.Symbol, netCfg.FaucetURL))
		res.FaucetURL = netCfg.FaucetURL
		return res
	case strings.Contains(msg, "already claimed"):
		s.logger.Info("Claim reverted as already claimed", "account", account)
		s.markClaimed(account)
		return s.claimResult(entity.OutcomeAlreadyClaimed, s.printer.Sprintf(i18n.ClaimAlreadyClaimed))
	default:
		s.logger.Error("Claim transaction failed", "account", account, "error", err)
		return s.claimResult(entity.OutcomeRPCError, s.printer.Sprintf(i18n.ClaimFailed, err.Error()))
	}
}

func (s *TokenServiceImpl) claimResult(outcome entity.ClaimOutcome, msg string) entity.ClaimResult {
	metrics.ClaimAttempts.WithLabelValues(string(outcome)).Inc()
	return entity.ClaimResult{Success: false, Outcome: outcome, Error: msg}
}

// claimNetworkName names the first network where claiming is possible.
func (s *TokenServiceImpl) claimNetworkName() string {
	for _, n := range s.registry.All() {
		if n.ClaimEnabled && n.HasPlayToken() {
			return n.DisplayName
		}
	}
	return "a supported network"
}

// CheckTransactionStatus reports whether a receipt exists and whether it succeeded.
func (s *TokenServiceImpl) CheckTransactionStatus(ctx context.Context, txHash string) entity.TxStatus {
	if len(txHash) != 66 || !strings.HasPrefix(txHash, "0x") {
		return entity.TxStatus{}
	}
	var receipt *txReceipt
	if err := s.gateway.Request(ctx, "eth_getTransactionReceipt", &receipt, common.HexToHash(txHash)); err != nil {
		s.logger.Debug("Receipt lookup failed", "tx_hash", txHash, "error", err)
		return entity.TxStatus{}
	}
	if receipt == nil {
		return entity.TxStatus{}
	}
	return entity.TxStatus{Confirmed: true, Success: receipt.Status == 1}
}

// PendingClaim returns the most recent claim transaction of the current account.
func (s *TokenServiceImpl) PendingClaim() (entity.ClaimTransaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return entity.ClaimTransaction{}, false
	}
	return *s.pending, true
}

// AddTokenToWallet asks the wallet to display the play token.
func (s *TokenServiceImpl) AddTokenToWallet(ctx context.Context) bool {
	st := s.wallet.State()
	if !st.IsConnected {
		return false
	}
	netCfg, ok := s.registry.ByChainID(st.ChainID)
	if !ok || !netCfg.HasPlayToken() {
		return false
	}
	meta := s.tokenMetadata(ctx, netCfg, newPlayToken(s.gateway, netCfg.Contracts.PlayToken))

	asset := entity.WatchAssetParameter{
		Type: "ERC20",
		Options: entity.WatchAssetOptions{
			Address:  netCfg.Contracts.PlayToken,
			Symbol:   meta.Symbol,
			Decimals: meta.Decimals,
		},
	}
	var added bool
	if err := s.gateway.Request(ctx, "wallet_watchAsset", &added, asset); err != nil {
		s.logger.Info("Token was not added to the wallet", "error", err)
		return false
	}
	if added {
		s.store.Set(tokenAddedKey(netCfg.Token.Symbol, netCfg.Contracts.PlayToken, st.Account), "true")
	}
	return added
}

// Capabilities is computed from the current chain on every call.
func (s *TokenServiceImpl) Capabilities() entity.TokenCapabilities {
	st := s.wallet.State()
	caps := entity.TokenCapabilities{ChainID: st.ChainID}
	if !st.IsConnected {
		return caps
	}
	netCfg, ok := s.registry.ByChainID(st.ChainID)
	if !ok {
		return caps
	}
	caps.CanClaim = netCfg.ClaimEnabled && netCfg.HasPlayToken()
	caps.CanAddToken = netCfg.HasPlayToken()
	caps.FaucetURL = netCfg.FaucetURL
	if caps.CanAddToken {
		_, caps.TokenAdded = s.store.Get(tokenAddedKey(netCfg.Token.Symbol, netCfg.Contracts.PlayToken, st.Account))
	}
	return caps
}

// Close stops the receipt monitor and the wallet subscription.
func (s *TokenServiceImpl) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.closeCancel()
	s.monitorWG.Wait()
}

func (s *TokenServiceImpl) onWalletChange(change entity.WalletStateChange) {
	if !change.AccountChanged() && !change.ChainChanged() && change.Current.IsConnected == change.Previous.IsConnected {
		return
	}
	// Invalidate refreshes issued for the previous account or chain.
	s.generation.Add(1)

	s.mu.Lock()
	if change.AccountChanged() || !change.Current.IsConnected {
		s.claimedAccount = ""
		s.pending = nil
		if s.monitorCancel != nil {
			s.monitorCancel()
			s.monitorCancel = nil
		}
		s.monitoring = false
	}
	s.snapshot = emptyTokenSnapshot(change.Current, s.snapshot.TokenMetadata())
	s.mu.Unlock()
}

func (s *TokenServiceImpl) apply(gen uint64, snap entity.TokenBalanceSnapshot) entity.TokenBalanceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation.Load() != gen {
		metrics.StaleResponses.WithLabelValues("token").Inc()
		return copyTokenSnapshot(s.snapshot)
	}
	if snap.Account != "" && entity.SameAddress(snap.Account, s.claimedAccount) {
		snap.HasClaimed = true
	}
	if snap.HasClaimed && snap.Account != "" {
		s.claimedAccount = snap.Account
	}
	s.snapshot = snap
	return copyTokenSnapshot(snap)
}

func (s *TokenServiceImpl) applyFailure(gen uint64, st entity.WalletState, netCfg entity.NetworkConfig, err error) entity.TokenBalanceSnapshot {
	s.logger.Warn("Token balance refresh failed", "account", st.Account, "chain_id", st.ChainID, "error", err)
	metrics.Refreshes.WithLabelValues("token", "error").Inc()
	snap := emptyTokenSnapshot(st, netCfg.Token)
	snap.TokenAddress = netCfg.Contracts.PlayToken
	snap.Error = s.printer.Sprintf(i18n.BalanceReadFailed, err.Error())
	return s.apply(gen, snap)
}

func (s *TokenServiceImpl) knownClaimed(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entity.SameAddress(s.claimedAccount, account) {
		return true
	}
	if entity.SameAddress(s.snapshot.Account, account) && s.snapshot.Raw().Cmp(s.opts.AirdropAmount) >= 0 {
		s.claimedAccount = account
		s.snapshot.HasClaimed = true
		return true
	}
	return false
}

func (s *TokenServiceImpl) markClaimed(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimedAccount = account
	if entity.SameAddress(s.snapshot.Account, account) {
		s.snapshot.HasClaimed = true
	}
}

func (s *TokenServiceImpl) claimPending(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoring && s.pending != nil && entity.SameAddress(s.pending.Account, account)
}

func (s *TokenServiceImpl) tokenMetadata(ctx context.Context, netCfg entity.NetworkConfig, token playToken) entity.TokenMetadata {
	key := fmt.Sprintf("%d:%s", netCfg.ChainID, strings.ToLower(netCfg.Contracts.PlayToken))
	s.mu.Lock()
	meta, ok := s.metadata[key]
	s.mu.Unlock()
	if ok {
		return meta
	}

	meta = netCfg.Token
	decimals, errDec := token.Decimals(ctx)
	symbol, errSym := token.Symbol(ctx)
	if errDec != nil || errSym != nil {
		s.logger.Debug("Token metadata unavailable, using registry values",
			"token", netCfg.Contracts.PlayToken, "decimals_error", errDec, "symbol_error", errSym)
		return meta
	}
	meta = entity.TokenMetadata{Symbol: symbol, Decimals: decimals}

	s.mu.Lock()
	s.metadata[key] = meta
	s.mu.Unlock()
	return meta
}

func (s *TokenServiceImpl) startMonitor(tx entity.ClaimTransaction) {
	ctx, cancel := context.WithTimeout(s.closeCtx, s.opts.ReceiptTimeout)

	s.mu.Lock()
	if s.monitorCancel != nil {
		s.monitorCancel()
	}
	s.pending = &tx
	s.monitoring = true
	s.monitorCancel = cancel
	s.mu.Unlock()

	s.monitorWG.Add(1)
	go func() {
		defer s.monitorWG.Done()
		defer cancel()
		s.monitorReceipt(ctx, tx)
	}()
}

// monitorReceipt polls for the claim receipt until it appears, the timeout elapses or the monitor is cancelled.
func (s *TokenServiceImpl) monitorReceipt(ctx context.Context, tx entity.ClaimTransaction) {
	ticker := time.NewTicker(s.opts.ReceiptInterval)
	defer ticker.Stop()

	for {
		status := s.CheckTransactionStatus(ctx, tx.TxHash)
		if status.Confirmed {
			s.finishClaim(ctx, tx, status.Success)
			return
		}
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.pending != nil && s.pending.TxHash == tx.TxHash {
				s.monitoring = false
			}
			s.mu.Unlock()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.logger.Warn("Claim receipt not observed before timeout", "tx_hash", tx.TxHash)
			}
			return
		case <-ticker.C:
		}
	}
}

func (s *TokenServiceImpl) finishClaim(ctx context.Context, tx entity.ClaimTransaction, success bool) {
	now := time.Now().UTC()
	status := entity.ClaimFailed
	if success {
		status = entity.ClaimConfirmed
	}

	s.mu.Lock()
	if s.pending != nil && s.pending.TxHash == tx.TxHash {
		s.pending.Status = status
		s.pending.FinishedAt = &now
		s.monitoring = false
	}
	s.mu.Unlock()

	metrics.ClaimConfirmations.WithLabelValues(string(status)).Inc()
	s.logger.Info("Claim transaction finished", "tx_hash", tx.TxHash, "status", status)

	if success {
		s.markClaimed(tx.Account)
	}
	s.RefreshBalance(ctx)
	s.RefreshClaimStatus(ctx)
}

func tokenAddedKey(symbol, token, account string) string {
	return fmt.Sprintf("token.added.%s.%s.%s", symbol, strings.ToLower(token), strings.ToLower(account))
}

func emptyTokenSnapshot(st entity.WalletState, meta entity.TokenMetadata) entity.TokenBalanceSnapshot {
	return entity.TokenBalanceSnapshot{
		Account:        st.Account,
		ChainID:        st.ChainID,
		BalanceRaw:     big.NewInt(0),
		BalanceDisplay: "0",
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
		LastUpdated:    time.Now().UTC(),
	}
}

func copyTokenSnapshot(s entity.TokenBalanceSnapshot) entity.TokenBalanceSnapshot {
	s.BalanceRaw = s.Raw()
	return s
}

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"
	"futarchy_wallet/internal/pkg/metrics"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Persisted session keys.
const (
	keyConnected   = "wallet.connected"
	keyLastAccount = "wallet.lastAccount"
	keySession     = "wallet.session"
)

// accountsRecheckTimeout bounds the eth_accounts call made when the wallet reports an empty account list.
const accountsRecheckTimeout = 5 * time.Second

// walletKeyPrefixes cover every wallet-related key, including WalletConnect-style caches.
var walletKeyPrefixes = []string{"wallet.", "wc@2:", "walletconnect"}

// WalletManagerOptions configures the connection manager.
type WalletManagerOptions struct {
	// DefaultNetwork is the registry key Connect switches to after accounts are granted.
	DefaultNetwork string
	// LocalChainID identifies the local dev chain whose contract addresses are reloaded on switch.
	LocalChainID uint64
	// ReloadLocalChain is called when the wallet switches to LocalChainID.
	ReloadLocalChain func() error
}

type stateListener struct {
	id uint64
	fn func(entity.WalletStateChange)
}

// WalletManagerImpl implements port.WalletManager on top of a chain gateway.
type WalletManagerImpl struct {
	gateway  port.ChainGateway
	registry port.NetworkRegistry
	store    port.SessionStore
	logger   port.Logger
	opts     WalletManagerOptions

	connectGroup singleflight.Group
	initOnce     sync.Once
	unsubscribe  []func()

	mu    sync.Mutex
	state entity.WalletState

	listenersMu sync.Mutex
	listeners   []stateListener
	nextID      uint64
}

var _ port.WalletManager = (*WalletManagerImpl)(nil)

// NewWalletManager creates a manager in the uninitialized state.
func NewWalletManager(
	gw port.ChainGateway,
	registry port.NetworkRegistry,
	store port.SessionStore,
	l port.Logger,
	opts WalletManagerOptions,
) *WalletManagerImpl {
	return &WalletManagerImpl{
		gateway:  gw,
		registry: registry,
		store:    store,
		logger:   l,
		opts:     opts,
		state:    entity.WalletState{State: entity.StateUninitialized},
	}
}

// State returns the current snapshot.
func (m *WalletManagerImpl) State() entity.WalletState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a listener for state changes. Listeners are called synchronously, in registration order.
func (m *WalletManagerImpl) Subscribe(listener func(entity.WalletStateChange)) func() {
	m.listenersMu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, stateListener{id: id, fn: listener})
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Init probes the provider, subscribes to its events and silently restores a stored session.
func (m *WalletManagerImpl) Init(ctx context.Context) {
	m.initOnce.Do(func() {
		m.unsubscribe = append(m.unsubscribe,
			m.gateway.On(entity.EventAccountsChanged, m.handleAccountsChanged),
			m.gateway.On(entity.EventChainChanged, m.handleChainChanged),
			m.gateway.On(entity.EventDisconnect, m.handleDisconnect),
		)
	})

	chainID, err := m.readChainID(ctx)
	if err != nil {
		m.logger.Warn("Wallet provider is not available", "error", err)
		m.setState(func(s *entity.WalletState) {
			*s = entity.WalletState{State: entity.StateDisconnected}
		})
		return
	}

	session, ok := m.loadSession()
	if !ok {
		m.setState(func(s *entity.WalletState) {
			*s = entity.WalletState{State: entity.StateDisconnected, HasProvider: true}
		})
		return
	}

	accounts, err := m.readAccounts(ctx)
	if err != nil || len(accounts) == 0 || !session.Matches(accounts[0], chainID) {
		m.logger.Info("Discarding stale wallet session", "stored_account", session.Account, "stored_chain", session.ChainID)
		m.clearPersisted()
		m.setState(func(s *entity.WalletState) {
			*s = entity.WalletState{State: entity.StateDisconnected, HasProvider: true}
		})
		return
	}

	m.logger.Info("Wallet session restored", "account", accounts[0], "chain_id", chainID)
	m.setState(func(s *entity.WalletState) {
		*s = entity.WalletState{
			State:       entity.StateConnected,
			Account:     accounts[0],
			ChainID:     chainID,
			IsConnected: true,
			HasProvider: true,
		}
	})
}

// Connect requests accounts and switches to the default network. Concurrent callers share one request.
func (m *WalletManagerImpl) Connect(ctx context.Context) bool {
	v, _, _ := m.connectGroup.Do("connect", func() (interface{}, error) {
		return m.connect(ctx), nil
	})
	return v.(bool)
}

func (m *WalletManagerImpl) connect(ctx context.Context) bool {
	if st := m.State(); st.IsConnected {
		return true
	}
	if _, err := m.readChainID(ctx); err != nil {
		m.logger.Warn("Cannot connect: wallet provider is not available", "error", err)
		m.setState(func(s *entity.WalletState) {
			*s = entity.WalletState{State: entity.StateDisconnected}
		})
		return false
	}

	m.setState(func(s *entity.WalletState) {
		*s = entity.WalletState{State: entity.StateConnecting, HasProvider: true}
	})

	var accounts []string
	if err := m.gateway.Request(ctx, "eth_requestAccounts", &accounts); err != nil || len(accounts) == 0 {
		if isUserRejection(err) {
			m.logger.Info("Wallet connection rejected by user")
		} else {
			m.logger.Warn("Wallet connection failed", "error", err)
		}
		m.setState(func(s *entity.WalletState) {
			*s = entity.WalletState{State: entity.StateDisconnected, HasProvider: true}
		})
		return false
	}

	if m.opts.DefaultNetwork != "" {
		if netCfg, ok := m.registry.ByKey(m.opts.DefaultNetwork); ok {
			m.switchOrAdd(ctx, netCfg)
		} else {
			m.logger.Warn("Default network is not in the registry", "network", m.opts.DefaultNetwork)
		}
	}

	chainID, err := m.readChainID(ctx)
	if err != nil {
		m.logger.Warn("Failed to read chain after connecting", "error", err)
		m.setState(func(s *entity.WalletState) {
			*s = entity.WalletState{State: entity.StateDisconnected, HasProvider: true}
		})
		return false
	}

	m.setState(func(s *entity.WalletState) {
		*s = entity.WalletState{
			State:       entity.StateConnected,
			Account:     accounts[0],
			ChainID:     chainID,
			IsConnected: true,
			HasProvider: true,
		}
	})
	m.persistSession(accounts[0], chainID)
	m.logger.Info("Wallet connected", "account", accounts[0], "chain_id", chainID)
	m.maybeReloadLocalChain(chainID)
	return true
}

// Disconnect revokes permissions when the provider supports it and clears all wallet state.
func (m *WalletManagerImpl) Disconnect(ctx context.Context) {
	err := m.gateway.Request(ctx, "wallet_revokePermissions", nil, map[string]interface{}{"eth_accounts": map[string]interface{}{}})
	if err != nil {
		m.logger.Debug("Permission revocation not supported or failed", "error", err)
	}
	m.clearConnection()
	m.logger.Info("Wallet disconnected")
}

// SwitchNetwork asks the wallet to switch chains, adding the chain first when the wallet does not know it.
func (m *WalletManagerImpl) SwitchNetwork(ctx context.Context, chainID uint64) bool {
	netCfg, ok := m.registry.ByChainID(chainID)
	if !ok {
		m.logger.Warn("Cannot switch to unsupported network", "chain_id", chainID)
		return false
	}
	return m.switchOrAdd(ctx, netCfg)
}

// AddNetwork asks the wallet to add the network with the given registry key. Wallets switch to an added chain.
func (m *WalletManagerImpl) AddNetwork(ctx context.Context, key string) bool {
	netCfg, ok := m.registry.ByKey(key)
	if !ok {
		m.logger.Warn("Cannot add unknown network", "network", key)
		return false
	}
	return m.addNetwork(ctx, netCfg)
}

// RefreshConnection re-reads account and chain without prompting and reconciles the snapshot.
func (m *WalletManagerImpl) RefreshConnection(ctx context.Context) {
	accounts, err := m.readAccounts(ctx)
	if err != nil {
		m.logger.Debug("Connection check: failed to read accounts", "error", err)
		return
	}
	chainID, err := m.readChainID(ctx)
	if err != nil {
		m.logger.Debug("Connection check: failed to read chain", "error", err)
		return
	}

	st := m.State()
	switch {
	case st.IsConnected && len(accounts) == 0:
		m.logger.Info("Connection check: wallet no longer exposes accounts")
		m.clearConnection()
	case st.IsConnected:
		m.applyAccount(accounts[0])
		m.applyChain(chainID)
	case len(accounts) > 0:
		// Recovers a session whose in-memory state was dropped by a provider disconnect.
		if session, ok := m.loadSession(); ok && session.Matches(accounts[0], chainID) {
			m.logger.Info("Connection check: wallet session recovered", "account", accounts[0])
			m.setState(func(s *entity.WalletState) {
				*s = entity.WalletState{
					State:       entity.StateConnected,
					Account:     accounts[0],
					ChainID:     chainID,
					IsConnected: true,
					HasProvider: true,
				}
			})
		}
	}
}

// Close removes the provider event subscriptions.
func (m *WalletManagerImpl) Close() {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
}

func (m *WalletManagerImpl) switchOrAdd(ctx context.Context, netCfg entity.NetworkConfig) bool {
	err := m.gateway.Request(ctx, "wallet_switchEthereumChain", nil, map[string]string{"chainId": netCfg.ChainIDHex()})
	if err == nil {
		m.applyChain(netCfg.ChainID)
		return true
	}
	if providerCode(err) == entity.CodeUnrecognizedChain {
		m.logger.Info("Chain not known by the wallet, adding it", "chain_id", netCfg.ChainID)
		return m.addNetwork(ctx, netCfg)
	}
	if isUserRejection(err) {
		m.logger.Info("Network switch rejected by user", "chain_id", netCfg.ChainID)
	} else {
		m.logger.Warn("Network switch failed", "chain_id", netCfg.ChainID, "error", err)
	}
	return false
}

func (m *WalletManagerImpl) addNetwork(ctx context.Context, netCfg entity.NetworkConfig) bool {
	param := entity.AddChainParameter{
		ChainID:           netCfg.ChainIDHex(),
		ChainName:         netCfg.DisplayName,
		RPCURLs:           netCfg.RPCURLs,
		BlockExplorerURLs: netCfg.BlockExplorerURLs,
		NativeCurrency:    netCfg.NativeCurrency,
	}
	if err := m.gateway.Request(ctx, "wallet_addEthereumChain", nil, param); err != nil {
		m.logger.Warn("Adding network failed", "chain_id", netCfg.ChainID, "error", err)
		return false
	}
	if chainID, err := m.readChainID(ctx); err == nil {
		m.applyChain(chainID)
	}
	return true
}

func (m *WalletManagerImpl) handleAccountsChanged(payload any) {
	accounts := toStringSlice(payload)
	st := m.State()
	if len(accounts) == 0 {
		if !st.IsConnected {
			return
		}
		// Событие может прийти после повторного Connect: сверяемся с текущими аккаунтами.
		ctx, cancel := context.WithTimeout(context.Background(), accountsRecheckTimeout)
		current, err := m.readAccounts(ctx)
		cancel()
		if err == nil && len(current) > 0 {
			m.logger.Debug("Ignoring outdated empty accountsChanged", "account", current[0])
			m.applyAccount(current[0])
			return
		}
		m.logger.Info("Wallet reported no accounts, disconnecting")
		m.clearConnection()
		return
	}
	if st.IsConnected {
		m.applyAccount(accounts[0])
	}
}

func (m *WalletManagerImpl) handleChainChanged(payload any) {
	var chainID uint64
	switch v := payload.(type) {
	case string:
		id, err := hexutil.DecodeUint64(v)
		if err != nil {
			m.logger.Warn("Ignoring chainChanged with invalid chain id", "payload", v)
			return
		}
		chainID = id
	case uint64:
		chainID = v
	default:
		m.logger.Warn("Ignoring chainChanged with unexpected payload", "payload", payload)
		return
	}
	m.applyChain(chainID)
}

// handleDisconnect drops in-memory state but keeps the stored session so it can be restored later.
func (m *WalletManagerImpl) handleDisconnect(payload any) {
	m.logger.Warn("Wallet provider disconnected", "reason", payload)
	m.setState(func(s *entity.WalletState) {
		*s = entity.WalletState{State: entity.StateDisconnected, HasProvider: s.HasProvider}
	})
}

func (m *WalletManagerImpl) applyAccount(account string) {
	changed := false
	m.setState(func(s *entity.WalletState) {
		if s.IsConnected && !entity.SameAddress(s.Account, account) {
			s.Account = account
			changed = true
		}
	})
	if changed {
		st := m.State()
		m.persistSession(st.Account, st.ChainID)
		m.logger.Info("Wallet account changed", "account", account)
	}
}

func (m *WalletManagerImpl) applyChain(chainID uint64) {
	changed := false
	m.setState(func(s *entity.WalletState) {
		if s.IsConnected && s.ChainID != chainID {
			s.ChainID = chainID
			changed = true
		}
	})
	if changed {
		st := m.State()
		m.persistSession(st.Account, st.ChainID)
		m.logger.Info("Wallet chain changed", "chain_id", chainID)
		m.maybeReloadLocalChain(chainID)
	}
}

func (m *WalletManagerImpl) maybeReloadLocalChain(chainID uint64) {
	if m.opts.ReloadLocalChain == nil || chainID != m.opts.LocalChainID {
		return
	}
	if err := m.opts.ReloadLocalChain(); err != nil {
		m.logger.Warn("Failed to reload local chain contract addresses", "error", err)
	}
}

func (m *WalletManagerImpl) clearConnection() {
	m.setState(func(s *entity.WalletState) {
		*s = entity.WalletState{State: entity.StateDisconnected, HasProvider: s.HasProvider}
	})
	m.clearPersisted()
}

// setState applies mutate under the lock and notifies listeners outside of it when the snapshot changed.
func (m *WalletManagerImpl) setState(mutate func(s *entity.WalletState)) {
	m.mu.Lock()
	prev := m.state
	mutate(&m.state)
	cur := m.state
	m.mu.Unlock()

	if prev == cur {
		return
	}
	metrics.SetConnected(cur.IsConnected)

	m.listenersMu.Lock()
	listeners := append([]stateListener(nil), m.listeners...)
	m.listenersMu.Unlock()
	change := entity.WalletStateChange{Previous: prev, Current: cur}
	for _, l := range listeners {
		l.fn(change)
	}
}

func (m *WalletManagerImpl) persistSession(account string, chainID uint64) {
	session := entity.WalletSession{
		Account:     account,
		ChainID:     chainID,
		IsConnected: true,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := yaml.Marshal(session)
	if err != nil {
		m.logger.Error("Failed to encode wallet session", "error", err)
		return
	}
	m.store.Set(keySession, string(data))
	m.store.Set(keyConnected, "true")
	m.store.Set(keyLastAccount, account)
}

func (m *WalletManagerImpl) loadSession() (entity.WalletSession, bool) {
	if v, ok := m.store.Get(keyConnected); !ok || v != "true" {
		return entity.WalletSession{}, false
	}
	raw, ok := m.store.Get(keySession)
	if !ok {
		return entity.WalletSession{}, false
	}
	var session entity.WalletSession
	if err := yaml.Unmarshal([]byte(raw), &session); err != nil {
		m.logger.Warn("Stored wallet session is unreadable", "error", err)
		return entity.WalletSession{}, false
	}
	return session, session.IsConnected && session.Account != ""
}

func (m *WalletManagerImpl) clearPersisted() {
	for _, prefix := range walletKeyPrefixes {
		m.store.DeletePrefix(prefix)
	}
}

func (m *WalletManagerImpl) readChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := m.gateway.Request(ctx, "eth_chainId", &id); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (m *WalletManagerImpl) readAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := m.gateway.Request(ctx, "eth_accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func toStringSlice(payload any) []string {
	switch v := payload.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// providerCode extracts the JSON-RPC / EIP-1193 error code, or 0.
func providerCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}

func isUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if providerCode(err) == entity.CodeUserRejected {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

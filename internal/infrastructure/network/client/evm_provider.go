package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"
	"futarchy_wallet/internal/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultRateLimit   = 20
	defaultBurstLimit  = 40

	// transportFailureLimit consecutive transport errors on a dialed client count as a lost connection.
	transportFailureLimit = 3
)

// Keys under which the provider keeps its site permissions, the way a browser wallet does.
const (
	keyPermittedAccounts = "provider.permissions.accounts"
	keyActiveChain       = "provider.activeChain"
)

// ProviderOptions configures an EVMProvider.
type ProviderOptions struct {
	// Accounts returned by eth_requestAccounts. Empty means the node's eth_accounts.
	Accounts          []string
	InitialChainID    uint64
	CallTimeout       time.Duration
	ConnectionTimeout time.Duration
	RateLimit         float64
	BurstLimit        int
	Dial              DialFunc
	Probe             *RPCProbe
	// Permissions persists granted accounts and the active chain across restarts. Nil keeps them in memory.
	Permissions port.SessionStore
}

// EVMProvider is an injected-wallet style provider backed by JSON-RPC endpoints.
// Wallet methods (accounts, chain switching, asset registration) are answered locally,
// everything else is forwarded to the endpoint of the active chain.
type EVMProvider struct {
	registry    port.NetworkRegistry
	pool        *clientPool
	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      port.Logger
	bus         *eventBus
	permissions port.SessionStore

	configured []string

	mu           sync.Mutex
	activeChain  uint64
	addedChains  map[uint64]entity.NetworkConfig
	permitted    bool
	granted      []string
	watched      []entity.WatchAssetOptions
	disconnected bool
	failures     int
}

var _ port.ChainGateway = (*EVMProvider)(nil)

// NewEVMProvider creates a provider. Clients are dialed lazily on the first forwarded call per chain.
func NewEVMProvider(registry port.NetworkRegistry, opts ProviderOptions, log port.Logger) *EVMProvider {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.BurstLimit <= 0 {
		opts.BurstLimit = defaultBurstLimit
	}
	initial := opts.InitialChainID
	if initial == 0 {
		if all := registry.All(); len(all) > 0 {
			initial = all[0].ChainID
		}
	}

	configured := make([]string, 0, len(opts.Accounts))
	for _, a := range opts.Accounts {
		if common.IsHexAddress(a) {
			configured = append(configured, common.HexToAddress(a).Hex())
		} else {
			log.Warn("Skipping invalid wallet account", "account", a)
		}
	}

	p := &EVMProvider{
		registry:    registry,
		pool:        newClientPool(opts.Dial, opts.Probe, opts.ConnectionTimeout, log.Info, log.Error),
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), opts.BurstLimit),
		callTimeout: opts.CallTimeout,
		logger:      log,
		bus:         newEventBus(),
		permissions: opts.Permissions,
		configured:  configured,
		activeChain: initial,
		addedChains: make(map[uint64]entity.NetworkConfig),
	}
	p.restorePermissions()
	return p
}

// restorePermissions reloads accounts granted before a restart. Accounts the wallet no longer holds are dropped.
func (p *EVMProvider) restorePermissions() {
	if p.permissions == nil {
		return
	}
	if raw, ok := p.permissions.Get(keyActiveChain); ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && p.registry.IsSupported(id) {
			p.activeChain = id
		}
	}
	raw, ok := p.permissions.Get(keyPermittedAccounts)
	if !ok || raw == "" {
		return
	}
	var granted []string
	for _, a := range strings.Split(raw, ",") {
		if !common.IsHexAddress(a) {
			continue
		}
		addr := common.HexToAddress(a).Hex()
		if len(p.configured) > 0 && !containsAccount(p.configured, addr) {
			continue
		}
		granted = append(granted, addr)
	}
	if len(granted) == 0 {
		p.permissions.Delete(keyPermittedAccounts)
		return
	}
	p.permitted = true
	p.granted = granted
	p.logger.Info("Wallet permissions restored", "accounts", len(granted), "chain_id", p.activeChain)
}

// On implements port.ChainGateway.
func (p *EVMProvider) On(event entity.ProviderEvent, handler func(payload any)) func() {
	return p.bus.on(event, handler)
}

// Request implements port.ChainGateway.
func (p *EVMProvider) Request(ctx context.Context, method string, result any, params ...any) error {
	err := p.dispatch(ctx, method, result, params)
	metrics.ProviderRequests.WithLabelValues(method, requestOutcome(err)).Inc()
	return err
}

// ResetClient drops the cached client of a chain so the next call dials its current RPC URLs.
func (p *EVMProvider) ResetClient(chainID uint64) {
	p.pool.drop(chainID)
}

// WatchedAssets returns the tokens registered through wallet_watchAsset.
func (p *EVMProvider) WatchedAssets() []entity.WatchAssetOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.WatchAssetOptions(nil), p.watched...)
}

// Close stops event delivery and closes all RPC clients.
func (p *EVMProvider) Close() {
	p.bus.close()
	p.pool.close()
}

func (p *EVMProvider) dispatch(ctx context.Context, method string, result any, params []any) error {
	switch method {
	case "eth_requestAccounts":
		return p.requestAccounts(ctx, result)
	case "eth_accounts":
		p.mu.Lock()
		accounts := []string{}
		if p.permitted {
			accounts = append(accounts, p.granted...)
		}
		p.mu.Unlock()
		return assign(result, accounts)
	case "eth_chainId":
		p.mu.Lock()
		id := p.activeChain
		p.mu.Unlock()
		return assign(result, hexutil.Uint64(id))
	case "wallet_switchEthereumChain":
		return p.switchChain(params, result)
	case "wallet_addEthereumChain":
		return p.addChain(params, result)
	case "wallet_watchAsset":
		return p.watchAsset(params, result)
	case "wallet_revokePermissions":
		p.mu.Lock()
		was := p.permitted
		p.permitted = false
		p.granted = nil
		p.mu.Unlock()
		if p.permissions != nil {
			p.permissions.Delete(keyPermittedAccounts)
		}
		if was {
			p.bus.emit(entity.EventAccountsChanged, []string{})
		}
		return assign(result, nil)
	case "eth_sendTransaction":
		if err := p.authorizeSender(params); err != nil {
			return err
		}
	}
	return p.forward(ctx, method, result, params)
}

func (p *EVMProvider) requestAccounts(ctx context.Context, result any) error {
	accounts := append([]string(nil), p.configured...)
	if len(accounts) == 0 {
		var nodeAccounts []common.Address
		if err := p.forward(ctx, "eth_accounts", &nodeAccounts, nil); err != nil {
			return err
		}
		for _, a := range nodeAccounts {
			accounts = append(accounts, a.Hex())
		}
	}
	if len(accounts) == 0 {
		return entity.NewProviderError(entity.CodeUnauthorized, "no accounts available")
	}

	p.mu.Lock()
	changed := !p.permitted || !sameAccounts(p.granted, accounts)
	p.permitted = true
	p.granted = accounts
	p.mu.Unlock()
	if p.permissions != nil {
		p.permissions.Set(keyPermittedAccounts, strings.Join(accounts, ","))
	}

	if changed {
		p.bus.emit(entity.EventAccountsChanged, append([]string(nil), accounts...))
	}
	return assign(result, accounts)
}

func (p *EVMProvider) switchChain(params []any, result any) error {
	var arg struct {
		ChainID string `json:"chainId"`
	}
	if err := decodeParam(params, 0, &arg); err != nil {
		return err
	}
	chainID, err := hexutil.DecodeUint64(arg.ChainID)
	if err != nil {
		return entity.NewProviderError(entity.CodeInvalidParams, fmt.Sprintf("invalid chainId %q", arg.ChainID))
	}
	if _, ok := p.network(chainID); !ok {
		return entity.NewProviderError(entity.CodeUnrecognizedChain,
			fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", arg.ChainID))
	}
	p.activate(chainID)
	return assign(result, nil)
}

func (p *EVMProvider) addChain(params []any, result any) error {
	var arg entity.AddChainParameter
	if err := decodeParam(params, 0, &arg); err != nil {
		return err
	}
	chainID, err := hexutil.DecodeUint64(arg.ChainID)
	if err != nil || chainID == 0 {
		return entity.NewProviderError(entity.CodeInvalidParams, fmt.Sprintf("invalid chainId %q", arg.ChainID))
	}
	if len(arg.RPCURLs) == 0 {
		return entity.NewProviderError(entity.CodeInvalidParams, "rpcUrls must contain at least one URL")
	}

	if !p.registry.IsSupported(chainID) {
		p.mu.Lock()
		p.addedChains[chainID] = entity.NetworkConfig{
			ChainID:           chainID,
			Key:               fmt.Sprintf("chain-%d", chainID),
			DisplayName:       arg.ChainName,
			RPCURLs:           append([]string(nil), arg.RPCURLs...),
			BlockExplorerURLs: append([]string(nil), arg.BlockExplorerURLs...),
			NativeCurrency:    arg.NativeCurrency,
		}
		p.mu.Unlock()
		p.logger.Info("Chain added to wallet", "chain_id", chainID, "name", arg.ChainName)
	}
	p.activate(chainID)
	return assign(result, nil)
}

func (p *EVMProvider) watchAsset(params []any, result any) error {
	var arg entity.WatchAssetParameter
	if err := decodeParam(params, 0, &arg); err != nil {
		return err
	}
	if !strings.EqualFold(arg.Type, "ERC20") {
		return entity.NewProviderError(entity.CodeInvalidParams, fmt.Sprintf("asset type %q is not supported", arg.Type))
	}
	if !common.IsHexAddress(arg.Options.Address) {
		return entity.NewProviderError(entity.CodeInvalidParams, "invalid token address")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.watched {
		if entity.SameAddress(w.Address, arg.Options.Address) {
			return assign(result, true)
		}
	}
	p.watched = append(p.watched, arg.Options)
	return assign(result, true)
}

func (p *EVMProvider) authorizeSender(params []any) error {
	var tx struct {
		From string `json:"from"`
	}
	if err := decodeParam(params, 0, &tx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.permitted {
		return entity.NewProviderError(entity.CodeUnauthorized, "the requested account has not been authorized")
	}
	for _, a := range p.granted {
		if entity.SameAddress(a, tx.From) {
			return nil
		}
	}
	return entity.NewProviderError(entity.CodeUnauthorized, "the requested account has not been authorized")
}

func (p *EVMProvider) activate(chainID uint64) {
	p.mu.Lock()
	changed := p.activeChain != chainID
	p.activeChain = chainID
	p.mu.Unlock()
	if p.permissions != nil {
		p.permissions.Set(keyActiveChain, strconv.FormatUint(chainID, 10))
	}
	if changed {
		p.logger.Info("Active chain switched", "chain_id", chainID)
		p.bus.emit(entity.EventChainChanged, entity.ChainIDToHex(chainID))
	}
}

func (p *EVMProvider) network(chainID uint64) (entity.NetworkConfig, bool) {
	if n, ok := p.registry.ByChainID(chainID); ok {
		return n, true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.addedChains[chainID]
	return n, ok
}

func (p *EVMProvider) forward(ctx context.Context, method string, result any, params []any) error {
	p.mu.Lock()
	chainID := p.activeChain
	p.mu.Unlock()

	netDef, ok := p.network(chainID)
	if !ok {
		return entity.NewProviderError(entity.CodeChainDisconnected, fmt.Sprintf("chain %d is not configured", chainID))
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	c, err := p.pool.get(ctx, netDef)
	if err != nil {
		p.markDisconnected(err)
		return entity.NewProviderError(entity.CodeDisconnected, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	start := time.Now()
	err = c.CallContext(callCtx, result, method, params...)
	metrics.ObserveSince(method, start)

	var rpcErr rpc.Error
	switch {
	case err == nil, errors.As(err, &rpcErr):
		p.markConnected()
	case ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded):
		p.recordTransportFailure(chainID, err)
	}
	return err
}

// recordTransportFailure emits disconnect only after transportFailureLimit failures in a row.
// The client is dropped at that point so the next call redials and selects an endpoint again.
func (p *EVMProvider) recordTransportFailure(chainID uint64, cause error) {
	p.mu.Lock()
	p.failures++
	failures := p.failures
	p.mu.Unlock()
	if failures < transportFailureLimit {
		p.logger.Warn("RPC transport error", "chain_id", chainID, "consecutive", failures, "error", cause)
		return
	}
	p.pool.drop(chainID)
	p.markDisconnected(cause)
}

func (p *EVMProvider) markDisconnected(cause error) {
	p.mu.Lock()
	was := p.disconnected
	p.disconnected = true
	p.mu.Unlock()
	if !was {
		p.logger.Warn("Provider lost connection to the chain endpoint", "error", cause)
		p.bus.emit(entity.EventDisconnect, entity.NewProviderError(entity.CodeDisconnected, cause.Error()))
	}
}

func (p *EVMProvider) markConnected() {
	p.mu.Lock()
	p.disconnected = false
	p.failures = 0
	p.mu.Unlock()
}

// assign copies v into result through JSON, the same path a remote response takes.
func assign(result any, v any) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

func decodeParam(params []any, i int, dst any) error {
	if len(params) <= i {
		return entity.NewProviderError(entity.CodeInvalidParams, fmt.Sprintf("missing parameter %d", i))
	}
	data, err := json.Marshal(params[i])
	if err != nil {
		return entity.NewProviderError(entity.CodeInvalidParams, err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return entity.NewProviderError(entity.CodeInvalidParams, err.Error())
	}
	return nil
}

func containsAccount(accounts []string, account string) bool {
	for _, a := range accounts {
		if entity.SameAddress(a, account) {
			return true
		}
	}
	return false
}

func sameAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entity.SameAddress(a[i], b[i]) {
			return false
		}
	}
	return true
}

func requestOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return "rpc_error"
	}
	return "transport_error"
}

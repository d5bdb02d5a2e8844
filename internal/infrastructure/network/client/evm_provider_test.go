package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"futarchy_wallet/internal/domain/entity"
	networkdefinition "futarchy_wallet/internal/infrastructure/network/definition"
	"futarchy_wallet/internal/infrastructure/sessionstore"
	"futarchy_wallet/internal/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0x00000000000000000000000000000000000000A1"

type sendTxArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

type testEthService struct {
	block    uint64
	accounts []common.Address

	mu   sync.Mutex
	sent []sendTxArgs
}

func (s *testEthService) BlockNumber() hexutil.Uint64 { return hexutil.Uint64(s.block) }

func (s *testEthService) Accounts() []common.Address { return s.accounts }

func (s *testEthService) SendTransaction(args sendTxArgs) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, args)
	return common.BigToHash(common.Big1)
}

func (s *testEthService) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type testChain struct {
	url string
	svc *testEthService
}

func newInProcDial(t *testing.T, chains ...testChain) DialFunc {
	t.Helper()
	servers := make(map[string]*rpc.Server, len(chains))
	for _, c := range chains {
		srv := rpc.NewServer()
		require.NoError(t, srv.RegisterName("eth", c.svc))
		servers[c.url] = srv
		t.Cleanup(srv.Stop)
	}
	return func(_ context.Context, rawURL string) (*rpc.Client, error) {
		srv, ok := servers[rawURL]
		if !ok {
			return nil, fmt.Errorf("no server at %s", rawURL)
		}
		return rpc.DialInProc(srv), nil
	}
}

func testNetworks(t *testing.T) *networkdefinition.Registry {
	t.Helper()
	amoy := networkdefinition.PolygonAmoy
	amoy.RPCURLs = []string{"inproc://amoy"}
	polygon := networkdefinition.Polygon
	polygon.RPCURLs = []string{"inproc://polygon"}
	reg, err := networkdefinition.NewRegistry(amoy, polygon)
	require.NoError(t, err)
	return reg
}

func newTestProvider(t *testing.T, opts ProviderOptions) *EVMProvider {
	t.Helper()
	p := NewEVMProvider(testNetworks(t), opts, logger.NewDiscard())
	t.Cleanup(p.Close)
	return p
}

func recordEvents(p *EVMProvider, event entity.ProviderEvent) <-chan any {
	ch := make(chan any, 16)
	p.On(event, func(payload any) { ch <- payload })
	return ch
}

func nextEvent(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for provider event")
		return nil
	}
}

func TestEVMProvider_RequestAccounts(t *testing.T) {
	p := newTestProvider(t, ProviderOptions{Accounts: []string{testAccount}, InitialChainID: 80002})
	events := recordEvents(p, entity.EventAccountsChanged)
	ctx := context.Background()

	var before []string
	require.NoError(t, p.Request(ctx, "eth_accounts", &before))
	assert.Empty(t, before)

	var accounts []string
	require.NoError(t, p.Request(ctx, "eth_requestAccounts", &accounts))
	assert.Equal(t, []string{common.HexToAddress(testAccount).Hex()}, accounts)
	assert.Equal(t, accounts, nextEvent(t, events))

	var after []string
	require.NoError(t, p.Request(ctx, "eth_accounts", &after))
	assert.Equal(t, accounts, after)
}

func TestEVMProvider_RequestAccountsFromNode(t *testing.T) {
	node := &testEthService{accounts: []common.Address{common.HexToAddress("0xb0")}}
	p := newTestProvider(t, ProviderOptions{
		InitialChainID: 80002,
		Dial:           newInProcDial(t, testChain{url: "inproc://amoy", svc: node}),
	})

	var accounts []string
	require.NoError(t, p.Request(context.Background(), "eth_requestAccounts", &accounts))
	assert.Equal(t, []string{common.HexToAddress("0xb0").Hex()}, accounts)
}

func TestEVMProvider_SwitchChain(t *testing.T) {
	p := newTestProvider(t, ProviderOptions{InitialChainID: 80002})
	events := recordEvents(p, entity.EventChainChanged)
	ctx := context.Background()

	err := p.Request(ctx, "wallet_switchEthereumChain", nil, map[string]string{"chainId": "0x1"})
	var perr *entity.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, entity.CodeUnrecognizedChain, perr.Code)

	require.NoError(t, p.Request(ctx, "wallet_switchEthereumChain", nil, map[string]string{"chainId": "0x89"}))
	assert.Equal(t, "0x89", nextEvent(t, events))

	var id hexutil.Uint64
	require.NoError(t, p.Request(ctx, "eth_chainId", &id))
	assert.Equal(t, uint64(137), uint64(id))
}

func TestEVMProvider_AddChainThenForward(t *testing.T) {
	custom := &testEthService{block: 7}
	p := newTestProvider(t, ProviderOptions{
		InitialChainID: 80002,
		Dial:           newInProcDial(t, testChain{url: "inproc://custom", svc: custom}),
	})
	ctx := context.Background()

	err := p.Request(ctx, "wallet_addEthereumChain", nil, entity.AddChainParameter{ChainID: "0x2a"})
	var perr *entity.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, entity.CodeInvalidParams, perr.Code)

	require.NoError(t, p.Request(ctx, "wallet_addEthereumChain", nil, entity.AddChainParameter{
		ChainID:   "0x2a",
		ChainName: "Custom",
		RPCURLs:   []string{"inproc://custom"},
	}))

	var block hexutil.Uint64
	require.NoError(t, p.Request(ctx, "eth_blockNumber", &block))
	assert.Equal(t, uint64(7), uint64(block))
}

func TestEVMProvider_SendTransactionRequiresPermission(t *testing.T) {
	node := &testEthService{}
	p := newTestProvider(t, ProviderOptions{
		Accounts:       []string{testAccount},
		InitialChainID: 80002,
		Dial:           newInProcDial(t, testChain{url: "inproc://amoy", svc: node}),
	})
	ctx := context.Background()
	tx := map[string]any{"from": testAccount, "to": "0x00000000000000000000000000000000000000c0", "data": "0x4e71d92d"}

	var hash common.Hash
	err := p.Request(ctx, "eth_sendTransaction", &hash, tx)
	var perr *entity.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, entity.CodeUnauthorized, perr.Code)
	assert.Equal(t, 0, node.sentCount())

	require.NoError(t, p.Request(ctx, "eth_requestAccounts", nil))
	require.NoError(t, p.Request(ctx, "eth_sendTransaction", &hash, tx))
	assert.Equal(t, common.BigToHash(common.Big1), hash)
	assert.Equal(t, 1, node.sentCount())
}

func TestEVMProvider_RevokePermissions(t *testing.T) {
	p := newTestProvider(t, ProviderOptions{Accounts: []string{testAccount}, InitialChainID: 80002})
	events := recordEvents(p, entity.EventAccountsChanged)
	ctx := context.Background()

	require.NoError(t, p.Request(ctx, "eth_requestAccounts", nil))
	nextEvent(t, events)

	require.NoError(t, p.Request(ctx, "wallet_revokePermissions", nil, map[string]any{"eth_accounts": map[string]any{}}))
	assert.Equal(t, []string{}, nextEvent(t, events))

	var accounts []string
	require.NoError(t, p.Request(ctx, "eth_accounts", &accounts))
	assert.Empty(t, accounts)
}

func TestEVMProvider_WatchAsset(t *testing.T) {
	p := newTestProvider(t, ProviderOptions{InitialChainID: 80002})
	ctx := context.Background()

	var ok bool
	err := p.Request(ctx, "wallet_watchAsset", &ok, entity.WatchAssetParameter{Type: "ERC721"})
	require.Error(t, err)

	asset := entity.WatchAssetParameter{
		Type:    "ERC20",
		Options: entity.WatchAssetOptions{Address: networkdefinition.PolygonAmoy.Contracts.PlayToken, Symbol: "PLAY", Decimals: 18},
	}
	require.NoError(t, p.Request(ctx, "wallet_watchAsset", &ok, asset))
	require.NoError(t, p.Request(ctx, "wallet_watchAsset", &ok, asset))
	assert.True(t, ok)
	assert.Len(t, p.WatchedAssets(), 1)
}

func TestEVMProvider_DialFailureEmitsDisconnect(t *testing.T) {
	p := newTestProvider(t, ProviderOptions{InitialChainID: 80002, Dial: newInProcDial(t)})
	events := recordEvents(p, entity.EventDisconnect)

	var block hexutil.Uint64
	err := p.Request(context.Background(), "eth_blockNumber", &block)
	var perr *entity.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, entity.CodeDisconnected, perr.Code)

	payload, ok := nextEvent(t, events).(*entity.ProviderError)
	require.True(t, ok)
	assert.Equal(t, entity.CodeDisconnected, payload.Code)
}

func (p *EVMProvider) isDisconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

func TestEVMProvider_TransportErrorsDisconnectAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dials := 0
	p := newTestProvider(t, ProviderOptions{
		InitialChainID: 80002,
		Dial: func(ctx context.Context, _ string) (*rpc.Client, error) {
			dials++
			return rpc.DialContext(ctx, srv.URL)
		},
	})
	events := recordEvents(p, entity.EventDisconnect)
	ctx := context.Background()

	var block hexutil.Uint64
	for i := 0; i < transportFailureLimit-1; i++ {
		require.Error(t, p.Request(ctx, "eth_blockNumber", &block))
		assert.False(t, p.isDisconnected(), "failure %d", i+1)
	}
	assert.Equal(t, 1, dials)

	require.Error(t, p.Request(ctx, "eth_blockNumber", &block))
	assert.True(t, p.isDisconnected())
	payload, ok := nextEvent(t, events).(*entity.ProviderError)
	require.True(t, ok)
	assert.Equal(t, entity.CodeDisconnected, payload.Code)

	// The client was dropped, so the next call dials again.
	require.Error(t, p.Request(ctx, "eth_blockNumber", &block))
	assert.Equal(t, 2, dials)
}

func TestEVMProvider_SuccessResetsTransportFailures(t *testing.T) {
	node := &testEthService{block: 42}
	p := newTestProvider(t, ProviderOptions{
		InitialChainID: 80002,
		Dial:           newInProcDial(t, testChain{url: "inproc://amoy", svc: node}),
	})
	p.mu.Lock()
	p.failures = transportFailureLimit - 1
	p.mu.Unlock()

	var block hexutil.Uint64
	require.NoError(t, p.Request(context.Background(), "eth_blockNumber", &block))
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Zero(t, p.failures)
	assert.False(t, p.disconnected)
}

func TestEVMProvider_PermissionsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.yml")
	account := common.HexToAddress(testAccount).Hex()

	store, err := sessionstore.NewFileStore(path, logger.NewDiscard())
	require.NoError(t, err)
	first := newTestProvider(t, ProviderOptions{Accounts: []string{testAccount}, InitialChainID: 80002, Permissions: store})
	var granted []string
	require.NoError(t, first.Request(ctx, "eth_requestAccounts", &granted))
	require.NoError(t, first.Request(ctx, "wallet_switchEthereumChain", nil, map[string]string{"chainId": "0x89"}))
	first.Close()

	reopened, err := sessionstore.NewFileStore(path, logger.NewDiscard())
	require.NoError(t, err)
	second := newTestProvider(t, ProviderOptions{Accounts: []string{testAccount}, InitialChainID: 80002, Permissions: reopened})
	var accounts []string
	require.NoError(t, second.Request(ctx, "eth_accounts", &accounts))
	assert.Equal(t, []string{account}, accounts)
	var chainID hexutil.Uint64
	require.NoError(t, second.Request(ctx, "eth_chainId", &chainID))
	assert.Equal(t, hexutil.Uint64(137), chainID)

	require.NoError(t, second.Request(ctx, "wallet_revokePermissions", nil, map[string]any{"eth_accounts": map[string]any{}}))
	_, ok := reopened.Get(keyPermittedAccounts)
	assert.False(t, ok)

	third, err := sessionstore.NewFileStore(path, logger.NewDiscard())
	require.NoError(t, err)
	fresh := newTestProvider(t, ProviderOptions{Accounts: []string{testAccount}, InitialChainID: 80002, Permissions: third})
	accounts = nil
	require.NoError(t, fresh.Request(ctx, "eth_accounts", &accounts))
	assert.Empty(t, accounts)
}

func TestEVMProvider_RestoredAccountsMustStillBeConfigured(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	store.Set(keyPermittedAccounts, "0x00000000000000000000000000000000000000b2")
	store.Set(keyActiveChain, "424242")

	p := newTestProvider(t, ProviderOptions{Accounts: []string{testAccount}, InitialChainID: 80002, Permissions: store})
	var accounts []string
	require.NoError(t, p.Request(context.Background(), "eth_accounts", &accounts))
	assert.Empty(t, accounts)
	var chainID hexutil.Uint64
	require.NoError(t, p.Request(context.Background(), "eth_chainId", &chainID))
	assert.Equal(t, hexutil.Uint64(80002), chainID)
	_, ok := store.Get(keyPermittedAccounts)
	assert.False(t, ok)
}

func TestOrderRPCURLs(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, orderRPCURLs("b", []string{"a", "b", "c"}))
	assert.Equal(t, []string{"a", "b"}, orderRPCURLs("", []string{"a", "b"}))
}

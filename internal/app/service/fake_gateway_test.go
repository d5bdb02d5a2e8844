package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"futarchy_wallet/internal/domain/entity"
	networkdefinition "futarchy_wallet/internal/infrastructure/network/definition"
	"futarchy_wallet/internal/infrastructure/sessionstore"
	"futarchy_wallet/internal/pkg/logger"
	"futarchy_wallet/internal/pkg/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

var testJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	testAccount  = "0x00000000000000000000000000000000000000A1"
	otherAccount = "0x00000000000000000000000000000000000000B2"
	amoyChainID  = uint64(80002)
)

var airdrop = utils.ScaledUnits(1000, 18)

// fakeGateway is an in-memory wallet provider. Events are delivered synchronously.
type fakeGateway struct {
	mu sync.Mutex

	chainID     uint64
	knownChains map[uint64]bool
	accounts    []string
	permitted   bool
	balances    map[string]*big.Int
	claimed     map[string]bool
	receipts    map[common.Hash]uint64
	blockNumber uint64
	gasPrice    *big.Int
	nonce       uint64
	autoConfirm bool

	chainIDErr         error
	requestAccountsErr error
	sendErr            error

	requestGate    chan struct{}
	requestEntered chan struct{}
	// delay runs after a response is computed and before it is returned.
	delay func(method string, params []any)

	calls    map[string]int
	ethCalls map[string]int
	sent     []map[string]interface{}
	handlers map[entity.ProviderEvent][]func(any)
}

func newFakeGateway(chainID uint64) *fakeGateway {
	return &fakeGateway{
		chainID:     chainID,
		knownChains: map[uint64]bool{chainID: true},
		accounts:    []string{testAccount},
		balances:    make(map[string]*big.Int),
		claimed:     make(map[string]bool),
		receipts:    make(map[common.Hash]uint64),
		blockNumber: 100,
		gasPrice:    big.NewInt(30_000_000_000),
		nonce:       7,
		calls:       make(map[string]int),
		ethCalls:    make(map[string]int),
		handlers:    make(map[entity.ProviderEvent][]func(any)),
	}
}

func (f *fakeGateway) On(event entity.ProviderEvent, handler func(payload any)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
	idx := len(f.handlers[event]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[event][idx] = nil
	}
}

func (f *fakeGateway) emit(event entity.ProviderEvent, payload any) {
	f.mu.Lock()
	handlers := append([]func(any){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(payload)
		}
	}
}

func (f *fakeGateway) Request(_ context.Context, method string, result any, params ...any) error {
	f.mu.Lock()
	f.calls[method]++
	gate, entered := f.requestGate, f.requestEntered
	f.mu.Unlock()

	if method == "eth_requestAccounts" && gate != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		<-gate
	}

	value, events, err := f.respond(method, params)
	if f.delay != nil {
		f.delay(method, params)
	}
	for _, ev := range events {
		f.emit(ev.event, ev.payload)
	}
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	data, err := testJSON.Marshal(value)
	if err != nil {
		return err
	}
	return testJSON.Unmarshal(data, result)
}

type fakeEvent struct {
	event   entity.ProviderEvent
	payload any
}

func (f *fakeGateway) respond(method string, params []any) (any, []fakeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch method {
	case "eth_chainId":
		if f.chainIDErr != nil {
			return nil, nil, f.chainIDErr
		}
		return hexutil.Uint64(f.chainID), nil, nil
	case "eth_requestAccounts":
		if f.requestAccountsErr != nil {
			return nil, nil, f.requestAccountsErr
		}
		f.permitted = true
		return f.accounts, nil, nil
	case "eth_accounts":
		if !f.permitted {
			return []string{}, nil, nil
		}
		return f.accounts, nil, nil
	case "wallet_switchEthereumChain":
		var arg struct {
			ChainID string `json:"chainId"`
		}
		decodeTestParam(params, &arg)
		id := hexutil.MustDecodeUint64(arg.ChainID)
		if !f.knownChains[id] {
			return nil, nil, entity.NewProviderError(entity.CodeUnrecognizedChain, "Unrecognized chain ID")
		}
		return nil, f.setChain(id), nil
	case "wallet_addEthereumChain":
		var arg entity.AddChainParameter
		decodeTestParam(params, &arg)
		id := hexutil.MustDecodeUint64(arg.ChainID)
		f.knownChains[id] = true
		return nil, f.setChain(id), nil
	case "wallet_revokePermissions":
		f.permitted = false
		return nil, []fakeEvent{{entity.EventAccountsChanged, []string{}}}, nil
	case "wallet_watchAsset":
		return true, nil, nil
	case "eth_blockNumber":
		f.blockNumber++
		return hexutil.Uint64(f.blockNumber), nil, nil
	case "eth_gasPrice":
		return (*hexutil.Big)(f.gasPrice), nil, nil
	case "eth_getTransactionCount":
		return hexutil.Uint64(f.nonce), nil, nil
	case "eth_call":
		return f.ethCall(params)
	case "eth_sendTransaction":
		return f.sendTransaction(params)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		decodeTestParam(params, &hash)
		status, ok := f.receipts[hash]
		if !ok {
			return nil, nil, nil
		}
		return map[string]interface{}{"status": hexutil.Uint64(status), "blockNumber": "0x1"}, nil, nil
	}
	return nil, nil, entity.NewProviderError(entity.CodeUnsupportedMethod, "unsupported method "+method)
}

func (f *fakeGateway) setChain(id uint64) []fakeEvent {
	if f.chainID == id {
		return nil
	}
	f.chainID = id
	return []fakeEvent{{entity.EventChainChanged, entity.ChainIDToHex(id)}}
}

func (f *fakeGateway) ethCall(params []any) (any, []fakeEvent, error) {
	var msg struct {
		To   common.Address `json:"to"`
		Data hexutil.Bytes  `json:"data"`
	}
	decodeTestParam(params, &msg)
	selector := hexutil.Encode(msg.Data[:4])
	f.ethCalls[selector]++

	word := func(v *big.Int) hexutil.Bytes { return common.LeftPadBytes(v.Bytes(), 32) }
	switch selector {
	case "0x70a08231":
		return word(f.balanceLocked(common.BytesToAddress(msg.Data[4:36]).Hex())), nil, nil
	case hasClaimedSelector:
		if f.claimed[strings.ToLower(common.BytesToAddress(msg.Data[4:36]).Hex())] {
			return word(big.NewInt(1)), nil, nil
		}
		return word(big.NewInt(0)), nil, nil
	case "0x313ce567":
		return word(big.NewInt(18)), nil, nil
	case "0x95d89b41":
		stringType, _ := abi.NewType("string", "", nil)
		packed, err := abi.Arguments{{Type: stringType}}.Pack("PLAY")
		if err != nil {
			return nil, nil, err
		}
		return hexutil.Bytes(packed), nil, nil
	}
	return nil, nil, entity.NewProviderError(3, "execution reverted")
}

func (f *fakeGateway) sendTransaction(params []any) (any, []fakeEvent, error) {
	tx, _ := params[0].(map[string]interface{})
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return nil, nil, f.sendErr
	}
	hash := common.BigToHash(big.NewInt(int64(len(f.sent))))
	if f.autoConfirm {
		from := strings.ToLower(fmt.Sprint(tx["from"]))
		f.claimed[from] = true
		f.balances[from] = new(big.Int).Add(f.balanceLocked(from), airdrop)
		f.receipts[hash] = 1
	}
	return hash, nil, nil
}

func (f *fakeGateway) balanceLocked(account string) *big.Int {
	if b, ok := f.balances[strings.ToLower(account)]; ok {
		return b
	}
	return big.NewInt(0)
}

func (f *fakeGateway) setBalance(account string, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[strings.ToLower(account)] = v
}

// revokeAccounts makes eth_accounts report no accounts, as a wallet does after the user disconnects the site.
func (f *fakeGateway) revokeAccounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permitted = false
}

func (f *fakeGateway) setClaimed(account string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed[strings.ToLower(account)] = true
}

func (f *fakeGateway) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeGateway) ethCallCount(selector string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ethCalls[selector]
}

func (f *fakeGateway) sentTxs() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.sent...)
}

func decodeTestParam(params []any, dst any) {
	if len(params) == 0 {
		return
	}
	data, _ := testJSON.Marshal(params[0])
	_ = testJSON.Unmarshal(data, dst)
}

// harness wires the engines around one fake gateway.
type harness struct {
	gw        *fakeGateway
	store     *sessionstore.Store
	registry  *networkdefinition.Registry
	wallet    *WalletManagerImpl
	token     *TokenServiceImpl
	portfolio *PortfolioServiceImpl
}

func newHarness(t *testing.T, gw *fakeGateway, walletOpts WalletManagerOptions) *harness {
	t.Helper()
	registry := networkdefinition.DefaultRegistry()
	store := sessionstore.NewMemoryStore()
	log := logger.NewDiscard()

	wallet := NewWalletManager(gw, registry, store, log, walletOpts)
	token := NewTokenService(gw, registry, wallet, store, log, TokenServiceOptions{
		AirdropAmount:   airdrop,
		ReceiptInterval: 5 * time.Millisecond,
		ReceiptTimeout:  2 * time.Second,
	})
	portfolio := NewPortfolioService(gw, registry, wallet, stubPositions{}, log)
	t.Cleanup(func() {
		token.Close()
		portfolio.Close()
		wallet.Close()
	})
	return &harness{gw: gw, store: store, registry: registry, wallet: wallet, token: token, portfolio: portfolio}
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.wallet.Init(ctx)
	require.True(t, h.wallet.Connect(ctx))
	require.True(t, h.wallet.State().IsConnected)
}

// stubPositions returns a fixed position set.
type stubPositions struct {
	set   entity.PositionSet
	err   error
	calls *int
}

func (s stubPositions) Positions(context.Context, entity.NetworkConfig, string) (entity.PositionSet, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.set, s.err
}

func hexHash(s string) common.Hash { return common.HexToHash(s) }

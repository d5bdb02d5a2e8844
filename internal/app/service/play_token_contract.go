package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"futarchy_wallet/internal/app/port"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Play token ABI: ERC20 reads plus the airdrop surface.
const playTokenABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"hasClaimed","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"claim","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Raw selectors used on the wire. hasClaimed(address) and claim().
const (
	hasClaimedSelector = "0x73b2e80e"
	claimSelector      = "0x4e71d92d"
)

var (
	parsedPlayTokenABI  abi.ABI
	parsedPlayTokenOnce sync.Once
)

func tokenABI() abi.ABI {
	parsedPlayTokenOnce.Do(func() {
		var err error
		parsedPlayTokenABI, err = abi.JSON(strings.NewReader(playTokenABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse play token ABI: %v", err))
		}
	})
	return parsedPlayTokenABI
}

// playToken reads the play token contract through the gateway.
type playToken struct {
	gateway port.ChainGateway
	address common.Address
}

func newPlayToken(gw port.ChainGateway, address string) playToken {
	return playToken{gateway: gw, address: common.HexToAddress(address)}
}

func (t playToken) call(ctx context.Context, data []byte) ([]byte, error) {
	callArgs := map[string]interface{}{
		"to":   t.address,
		"data": hexutil.Bytes(data),
	}
	var out hexutil.Bytes
	if err := t.gateway.Request(ctx, "eth_call", &out, callArgs, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

func (t playToken) unpackOne(method string, data []byte) (interface{}, error) {
	unpacked, err := tokenABI().Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w. Raw: %s", method, err, hexutil.Encode(data))
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%s unpack returned no data", method)
	}
	return unpacked[0], nil
}

func (t playToken) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	data, err := tokenABI().Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, err
	}
	raw, err := t.call(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return big.NewInt(0), nil
	}
	v, err := t.unpackOne("balanceOf", raw)
	if err != nil {
		return nil, err
	}
	balance, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to assert unpacked balanceOf result to *big.Int. Got: %T", v)
	}
	return balance, nil
}

// HasClaimed calls hasClaimed(address) with the raw selector and a 32-byte padded address.
func (t playToken) HasClaimed(ctx context.Context, account string) (bool, error) {
	padded := common.LeftPadBytes(common.HexToAddress(account).Bytes(), 32)
	data := append(hexutil.MustDecode(hasClaimedSelector), padded...)
	raw, err := t.call(ctx, data)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	v, err := t.unpackOne("hasClaimed", raw)
	if err != nil {
		return false, err
	}
	claimed, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("failed to assert unpacked hasClaimed result to bool. Got: %T", v)
	}
	return claimed, nil
}

func (t playToken) Decimals(ctx context.Context) (uint8, error) {
	data, err := tokenABI().Pack("decimals")
	if err != nil {
		return 0, err
	}
	raw, err := t.call(ctx, data)
	if err != nil {
		return 0, err
	}
	v, err := t.unpackOne("decimals", raw)
	if err != nil {
		return 0, err
	}
	d, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("failed to assert unpacked decimals result to uint8. Got: %T", v)
	}
	return d, nil
}

func (t playToken) Symbol(ctx context.Context) (string, error) {
	data, err := tokenABI().Pack("symbol")
	if err != nil {
		return "", err
	}
	raw, err := t.call(ctx, data)
	if err != nil {
		return "", err
	}
	v, err := t.unpackOne("symbol", raw)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("failed to assert unpacked symbol result to string. Got: %T", v)
	}
	return s, nil
}

// revertReason returns the decoded Error(string) reason carried by an RPC error, if any.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	var raw []byte
	switch d := dataErr.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(d)
		if decErr != nil {
			return ""
		}
		raw = b
	case []byte:
		raw = d
	default:
		return ""
	}
	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil {
		return ""
	}
	return reason
}

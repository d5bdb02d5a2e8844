package client

import (
	"context"
	"fmt"
	"time"

	"futarchy_wallet/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common/hexutil"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const chainIDRequestBody = `{"jsonrpc":"2.0","id":1,"method":"eth_chainId","params":[]}`

type probeResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RPCProbe checks which configured RPC endpoint of a network answers with the expected chain ID.
type RPCProbe struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewRPCProbe creates a probe. A nil logger disables probe logging.
func NewRPCProbe(timeout time.Duration, logger *zap.Logger) *RPCProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCProbe{
		client: &fasthttp.Client{
			Name:                "walletsync-probe",
			MaxConnsPerHost:     4,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: timeout,
		logger:  logger.Named("rpc_probe"),
	}
}

// ChainID asks rpcURL for its chain ID.
func (p *RPCProbe) ChainID(ctx context.Context, rpcURL string) (uint64, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rpcURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyString(chainIDRequestBody)

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := p.client.DoTimeout(req, resp, timeout); err != nil {
		return 0, fmt.Errorf("probe %s: %w", rpcURL, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return 0, fmt.Errorf("probe %s: unexpected status %d", rpcURL, code)
	}

	var out probeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return 0, fmt.Errorf("probe %s: failed to decode response: %w", rpcURL, err)
	}
	if out.Error != nil {
		return 0, fmt.Errorf("probe %s: rpc error %d: %s", rpcURL, out.Error.Code, out.Error.Message)
	}
	id, err := hexutil.DecodeUint64(out.Result)
	if err != nil {
		return 0, fmt.Errorf("probe %s: invalid chain id %q: %w", rpcURL, out.Result, err)
	}
	return id, nil
}

// SelectURL returns the first RPC URL of netDef whose chain ID matches.
func (p *RPCProbe) SelectURL(ctx context.Context, netDef entity.NetworkConfig) (string, error) {
	for _, rpcURL := range netDef.RPCURLs {
		id, err := p.ChainID(ctx, rpcURL)
		if err != nil {
			p.logger.Debug("endpoint unreachable", zap.String("network", netDef.Key), zap.String("rpc", rpcURL), zap.Error(err))
			continue
		}
		if id != netDef.ChainID {
			p.logger.Warn("endpoint serves a different chain",
				zap.String("network", netDef.Key), zap.String("rpc", rpcURL),
				zap.Uint64("expected", netDef.ChainID), zap.Uint64("actual", id))
			continue
		}
		return rpcURL, nil
	}
	return "", fmt.Errorf("no endpoint of %s answered with chain %d", netDef.Key, netDef.ChainID)
}

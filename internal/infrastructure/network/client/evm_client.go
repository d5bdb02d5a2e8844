package client

import (
	"context"
	"fmt"
	"time"

	"futarchy_wallet/internal/domain/entity"

	"github.com/ethereum/go-ethereum/rpc"
)

// DialFunc opens a JSON-RPC client for an endpoint URL.
type DialFunc func(ctx context.Context, rawURL string) (*rpc.Client, error)

// DefaultDial dials HTTP(S) and WS(S) endpoints with go-ethereum's rpc package.
func DefaultDial(ctx context.Context, rawURL string) (*rpc.Client, error) {
	return rpc.DialContext(ctx, rawURL)
}

// orderRPCURLs puts preferred first and keeps the remaining URLs in their configured order.
func orderRPCURLs(preferred string, urls []string) []string {
	if preferred == "" {
		return append([]string(nil), urls...)
	}
	out := []string{preferred}
	for _, u := range urls {
		if u != preferred {
			out = append(out, u)
		}
	}
	return out
}

// dialNetwork tries each RPC URL in order and returns the first client that could be opened.
func dialNetwork(netDef entity.NetworkConfig, urls []string, dial DialFunc, connectionTimeout time.Duration) (*rpc.Client, string, error) {
	if len(urls) == 0 {
		return nil, "", fmt.Errorf("network %s has no rpc urls", netDef.Key)
	}
	var lastErr error
	for _, rpcURL := range urls {
		ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
		c, err := dial(ctx, rpcURL)
		cancel()
		if err == nil {
			return c, rpcURL, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}
	return nil, "", fmt.Errorf("all RPC connection attempts failed for network %s: %w", netDef.Key, lastErr)
}

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"futarchy_wallet/internal/domain/entity"

	"github.com/ethereum/go-ethereum/rpc"
)

const defaultProviderConnectionTimeout = 10 * time.Second

// clientPool caches one rpc.Client per chain ID so each network is dialed once.
type clientPool struct {
	clients           map[uint64]*rpc.Client
	mu                sync.Mutex
	dial              DialFunc
	probe             *RPCProbe
	loggerInfo        func(msg string, args ...any)
	loggerError       func(msg string, args ...any)
	connectionTimeout time.Duration
}

func newClientPool(dial DialFunc, probe *RPCProbe, connectionTimeout time.Duration,
	loggerInfo, loggerError func(msg string, args ...any)) *clientPool {
	if dial == nil {
		dial = DefaultDial
	}
	if connectionTimeout <= 0 {
		connectionTimeout = defaultProviderConnectionTimeout
	}
	return &clientPool{
		clients:           make(map[uint64]*rpc.Client),
		dial:              dial,
		probe:             probe,
		loggerInfo:        loggerInfo,
		loggerError:       loggerError,
		connectionTimeout: connectionTimeout,
	}
}

// get returns the cached client for netDef, dialing it on first use.
func (p *clientPool) get(ctx context.Context, netDef entity.NetworkConfig) (*rpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[netDef.ChainID]; ok {
		return c, nil
	}

	preferred := ""
	if p.probe != nil {
		if u, err := p.probe.SelectURL(ctx, netDef); err == nil {
			preferred = u
		} else {
			p.loggerInfo("RPC probe found no matching endpoint, dialing in configured order", "network", netDef.Key, "error", err)
		}
	}

	c, used, err := dialNetwork(netDef, orderRPCURLs(preferred, netDef.RPCURLs), p.dial, p.connectionTimeout)
	if err != nil {
		p.loggerError("Failed to create RPC client", "network", netDef.Key, "error", err)
		return nil, fmt.Errorf("failed to create RPC client for %s: %w", netDef.Key, err)
	}
	p.clients[netDef.ChainID] = c
	p.loggerInfo("Created RPC client", "network", netDef.Key, "chain_id", netDef.ChainID, "rpc", used)
	return c, nil
}

// drop closes and forgets the client of a chain, e.g. after its RPC URLs changed.
func (p *clientPool) drop(chainID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[chainID]; ok {
		c.Close()
		delete(p.clients, chainID)
	}
}

func (p *clientPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}

package service

import (
	"context"
	"time"

	"futarchy_wallet/internal/app/port"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockWatcher polls eth_blockNumber and reports every advance of the chain head.
type BlockWatcher struct {
	gateway  port.ChainGateway
	interval time.Duration
	logger   port.Logger
}

// NewBlockWatcher creates a watcher that polls at interval.
func NewBlockWatcher(gw port.ChainGateway, interval time.Duration, l port.Logger) *BlockWatcher {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &BlockWatcher{gateway: gw, interval: interval, logger: l}
}

// Run polls until ctx is done. The first observed head is the baseline and does not fire onBlock.
func (w *BlockWatcher) Run(ctx context.Context, onBlock func(ctx context.Context, block uint64)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last uint64
	for {
		var head hexutil.Uint64
		if err := w.gateway.Request(ctx, "eth_blockNumber", &head); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Debug("Block number poll failed", "error", err)
		} else if n := uint64(head); n > last {
			if last != 0 {
				onBlock(ctx, n)
			}
			last = n
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

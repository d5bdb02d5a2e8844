package port

import (
	"context"

	"futarchy_wallet/internal/domain/entity"
)

// ChainGateway is the single capability through which engines talk to the wallet provider.
// Request decodes the JSON-RPC result into result (a pointer), the same way rpc.Client.CallContext does.
type ChainGateway interface {
	Request(ctx context.Context, method string, result any, params ...any) error
	// On registers a handler for a provider event and returns a function that removes it.
	// Handlers are invoked in the order the provider delivers events.
	On(event entity.ProviderEvent, handler func(payload any)) (unsubscribe func())
}

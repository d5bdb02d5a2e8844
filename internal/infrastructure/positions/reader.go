package positions

import (
	"context"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"
)

// Limitation is reported with every empty position set.
const Limitation = "Position balances are not listed yet: market contracts do not expose a positions enumeration API."

// EmptyReader returns no positions until market contracts can enumerate them.
type EmptyReader struct{}

var _ port.PositionReader = EmptyReader{}

func (EmptyReader) Positions(_ context.Context, _ entity.NetworkConfig, _ string) (entity.PositionSet, error) {
	return entity.PositionSet{Positions: []entity.Position{}, Limitation: Limitation}, nil
}

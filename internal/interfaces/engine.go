package interfaces

import (
	"context"

	"quant-council/internal/types"
)

// Engine runs one full decision cycle for a symbol.
type Engine interface {
	Cycle(ctx context.Context, symbol string) (*types.CycleResult, error)
}

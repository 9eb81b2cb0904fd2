package interfaces

import (
	"context"

	"quant-council/internal/types"
)

// Deliberator is the opaque external reasoning collaborator. A failed or
// malformed call must degrade to a no-opinion result, never abort the cycle;
// the engine enforces that on any returned error.
type Deliberator interface {
	Deliberate(ctx context.Context, dc types.DeliberationContext) (types.Opinion, error)
}

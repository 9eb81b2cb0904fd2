package interfaces

import (
	"context"

	"quant-council/internal/types"
)

// AccountSource exposes the account-state collaborator.
type AccountSource interface {
	AccountState(ctx context.Context) (types.AccountState, error)
}

// Executor consumes audited results. The snapshot id is the idempotency key:
// resubmitting the same audit result must return the original receipt instead
// of producing a second order.
type Executor interface {
	Submit(ctx context.Context, audit types.AuditResult) (types.OrderReceipt, error)
}

// Archiver persists the complete lineage of one cycle, append-only.
type Archiver interface {
	Persist(ctx context.Context, rec types.CycleRecord) error
}

// LossHistory hands the risk audit a read-only view of flagged setups.
type LossHistory interface {
	Snapshot() types.LossHistorySnapshot
}

// PositionBook tracks simulated fills across cycles: the engine records each
// non-duplicate fill and marks open positions to the latest price, so the
// exposure preview sees notionals accumulate.
type PositionBook interface {
	Fill(plan types.TradePlan, side types.Action, regime types.RegimeState)
	MarkPrice(symbol string, price float64) (stopped, won []types.OpenPosition)
}

// LossRecorder receives settled trade outcomes from the position book.
type LossRecorder interface {
	RecordLoss(symbol string, dir types.Action, regime types.RegimeState)
	RecordWin(symbol string, dir types.Action, regime types.RegimeState)
}

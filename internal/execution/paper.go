package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"quant-council/internal/interfaces"
	"quant-council/internal/logger"
	"quant-council/internal/trace"
	"quant-council/internal/types"
)

// PaperExecutor simulates order placement. The snapshot id is the idempotency
// key: a resubmit for an already-seen id returns the original receipt marked
// Duplicate instead of opening a second position.
type PaperExecutor struct {
	mu       sync.Mutex
	receipts map[int64]types.OrderReceipt
	now      func() time.Time
}

var _ interfaces.Executor = (*PaperExecutor)(nil)

func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{
		receipts: make(map[int64]types.OrderReceipt),
		now:      time.Now,
	}
}

func (e *PaperExecutor) Submit(ctx context.Context, audit types.AuditResult) (types.OrderReceipt, error) {
	ctx, span := trace.StartSpan(ctx, "execution.Submit")
	defer span.End()

	if audit.FinalAction == types.ActionFlat {
		return types.OrderReceipt{}, fmt.Errorf("refusing FLAT submission for snapshot %d", audit.SnapshotID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.receipts[audit.SnapshotID]; ok {
		dup := prev
		dup.Duplicate = true
		logger.Warn(ctx, "Duplicate submission for snapshot, returning original receipt",
			"symbol", audit.Symbol,
			"snapshot_id", audit.SnapshotID,
			"order_id", prev.OrderID,
		)
		return dup, nil
	}

	receipt := types.OrderReceipt{
		OrderID:     uuid.NewString(),
		SnapshotID:  audit.SnapshotID,
		Status:      "FILLED",
		SubmittedAt: e.now(),
	}
	e.receipts[audit.SnapshotID] = receipt

	logger.Info(ctx, "Paper order filled",
		"symbol", audit.Symbol,
		"snapshot_id", audit.SnapshotID,
		"order_id", receipt.OrderID,
		"action", audit.FinalAction,
		"entry", audit.Plan.Entry,
		"stop", audit.Plan.Stop,
		"take_profit", audit.Plan.TakeProfit,
		"leverage", audit.Plan.Leverage,
	)
	return receipt, nil
}

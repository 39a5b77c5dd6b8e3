package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agoralabs/agora/internal/domain/ledgerstore"
	"github.com/agoralabs/agora/internal/domain/market"
	"github.com/agoralabs/agora/internal/infra/telemetry"
	"github.com/agoralabs/agora/internal/observability"
)

const persistMaxInterval = 2 * time.Second

// mutation describes one committed engine operation for the write-behind
// durable store: the journal metadata plus the transactional table writes.
type mutation struct {
	op        string
	actor     market.AccountID
	orderID   uint64
	listingID uint64
	amount    decimal.Decimal
	detail    map[string]any
	apply     func(context.Context, ledgerstore.Tx) error
}

// persist writes a committed mutation to the durable store. The in-memory
// commit already happened and is authoritative; the write is retried with
// exponential backoff inside the retry budget, and a final failure is
// surfaced through logs and metrics rather than unwinding the commit.
func (e *Engine) persist(ctx context.Context, m mutation) {
	if e.store == nil {
		return
	}

	evt := ledgerstore.Event{
		ID:         uuid.NewString(),
		Op:         m.op,
		Actor:      m.actor,
		OrderID:    m.orderID,
		ListingID:  m.listingID,
		Amount:     m.amount,
		Detail:     m.detail,
		RecordedAt: time.Now().UTC(),
	}
	write := func(ctx context.Context) error {
		return e.store.WithTransaction(ctx, func(ctx context.Context, tx ledgerstore.Tx) error {
			if err := m.apply(ctx, tx); err != nil {
				return err
			}
			return tx.AppendEvent(ctx, evt)
		})
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = persistMaxInterval
	deadline := time.Now().Add(e.retryBudget)

	var lastErr error
	for {
		lastErr = write(ctx)
		if lastErr == nil {
			observability.Telemetry().IncCounter("agora_ledger_writes_total", 1, map[string]string{
				string(telemetry.AttrOperation): m.op,
				string(telemetry.AttrResult):    "ok",
			})
			return
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			break
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = persistMaxInterval
		}
		if remaining := time.Until(deadline); sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(sleep):
			continue
		}
		break
	}

	observability.Telemetry().IncCounter("agora_ledger_writes_total", 1, map[string]string{
		string(telemetry.AttrOperation): m.op,
		string(telemetry.AttrResult):    "failed",
	})
	observability.Log().Error("ledger write failed",
		observability.F("op", m.op),
		observability.F("event", evt.ID),
		observability.F("error", lastErr))
}

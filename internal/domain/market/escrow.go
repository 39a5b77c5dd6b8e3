package market

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// EscrowLedger holds each active order's total from purchase until the
// order resolves. An entry exists iff the order is Pending or Shipped and
// is withdrawn exactly once, by whichever transition resolves the order.
type EscrowLedger struct {
	mu   sync.RWMutex
	held map[uint64]decimal.Decimal
}

// NewEscrowLedger constructs an empty escrow ledger.
func NewEscrowLedger() *EscrowLedger {
	l := new(EscrowLedger)
	l.held = make(map[uint64]decimal.Decimal)
	return l
}

// Hold records amount against the order.
func (l *EscrowLedger) Hold(orderID uint64, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[orderID] = amount
}

// Withdraw removes and returns the amount held for the order. The second
// return is false when no entry exists.
func (l *EscrowLedger) Withdraw(orderID uint64) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, ok := l.held[orderID]
	if !ok {
		return decimal.Zero, false
	}
	delete(l.held, orderID)
	return amount, true
}

// Amount returns the amount currently held for the order without removing it.
func (l *EscrowLedger) Amount(orderID uint64) (decimal.Decimal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	amount, ok := l.held[orderID]
	return amount, ok
}

// Entries returns a snapshot of all escrow entries sorted by order id.
func (l *EscrowLedger) Entries() []EscrowEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]EscrowEntry, 0, len(l.held))
	for id, amount := range l.held {
		out = append(out, EscrowEntry{OrderID: id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// TotalHeld sums every held amount; reporting helper.
func (l *EscrowLedger) TotalHeld() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, amount := range l.held {
		total = total.Add(amount)
	}
	return total
}

// Restore reinstalls a persisted escrow entry. Used only while loading
// durable state.
func (l *EscrowLedger) Restore(e EscrowEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[e.OrderID] = e.Amount
}

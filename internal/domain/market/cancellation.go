package market

import (
	"sort"
	"sync"

	"github.com/agoralabs/agora/internal/errs"
)

// CancellationBook tracks at most one pending cancellation request per
// order. A request is cleared when accepted, rejected, or when the order
// resolves through the unilateral buyer-cancel path.
type CancellationBook struct {
	mu      sync.RWMutex
	pending map[uint64]AccountID
}

// NewCancellationBook constructs an empty cancellation book.
func NewCancellationBook() *CancellationBook {
	b := new(CancellationBook)
	b.pending = make(map[uint64]AccountID)
	return b
}

// Open records requester as the party asking to cancel the order.
func (b *CancellationBook) Open(orderID uint64, requester AccountID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[orderID]; ok {
		return errs.New("cancellations/open", errs.CodeCancellationAlreadyPending,
			errs.WithMessage("cancellation request already pending"))
	}
	b.pending[orderID] = requester
	return nil
}

// Requester returns the party that opened the pending request, if any.
func (b *CancellationBook) Requester(orderID uint64) (AccountID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	requester, ok := b.pending[orderID]
	return requester, ok
}

// Clear removes any pending request for the order. Clearing an order with
// no request is a no-op.
func (b *CancellationBook) Clear(orderID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, orderID)
}

// Pending returns a snapshot of all open requests sorted by order id.
func (b *CancellationBook) Pending() []CancellationRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]CancellationRequest, 0, len(b.pending))
	for id, requester := range b.pending {
		out = append(out, CancellationRequest{OrderID: id, Requester: requester})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// Restore reinstalls a persisted request. Used only while loading durable
// state.
func (b *CancellationBook) Restore(r CancellationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[r.OrderID] = r.Requester
}

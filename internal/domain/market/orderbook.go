package market

import (
	"math"
	"sync"

	"github.com/agoralabs/agora/internal/errs"
)

// OrderBook owns all orders and the order id counter. Orders are created
// only by a successful purchase and never deleted.
type OrderBook struct {
	mu     sync.RWMutex
	orders map[uint64]Order
	ids    []uint64
	nextID uint64
}

// NewOrderBook constructs an empty order book. Order ids start at 1.
func NewOrderBook() *OrderBook {
	b := new(OrderBook)
	b.orders = make(map[uint64]Order)
	b.nextID = 1
	return b
}

// CanAllocate reports whether another order id is still available. The
// engine checks this before reserving stock so a counter-exhaustion
// failure never leaves a partial mutation behind.
func (b *OrderBook) CanAllocate() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID != math.MaxUint64
}

// Create assigns the next order id to o and stores it.
func (b *OrderBook) Create(o Order) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nextID == math.MaxUint64 {
		return 0, errs.New("orders/create", errs.CodeIDOverflow,
			errs.WithMessage("order id counter exhausted"))
	}
	o.ID = b.nextID
	b.orders[o.ID] = o
	b.ids = append(b.ids, o.ID)
	b.nextID++
	return o.ID, nil
}

// Get returns the order with the given id.
func (b *OrderBook) Get(id uint64) (Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return Order{}, errs.New("orders/get", errs.CodeOrderNotFound,
			errs.WithMessage("order does not exist"))
	}
	return o, nil
}

// SetState transitions the stored order to state.
func (b *OrderBook) SetState(id uint64, state OrderState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return errs.New("orders/set-state", errs.CodeOrderNotFound,
			errs.WithMessage("order does not exist"))
	}
	o.State = state
	b.orders[id] = o
	return nil
}

// MarkSellerRated flags that the buyer has rated the seller for this order.
func (b *OrderBook) MarkSellerRated(id uint64) error {
	return b.mark(id, func(o *Order) { o.SellerRated = true })
}

// MarkBuyerRated flags that the seller has rated the buyer for this order.
func (b *OrderBook) MarkBuyerRated(id uint64) error {
	return b.mark(id, func(o *Order) { o.BuyerRated = true })
}

func (b *OrderBook) mark(id uint64, set func(*Order)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return errs.New("orders/mark-rated", errs.CodeOrderNotFound,
			errs.WithMessage("order does not exist"))
	}
	set(&o)
	b.orders[id] = o
	return nil
}

// Orders returns a snapshot of all orders in id order.
func (b *OrderBook) Orders() []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Order, 0, len(b.ids))
	for _, id := range b.ids {
		out = append(out, b.orders[id])
	}
	return out
}

// AccountOrders returns a snapshot of the orders where account is a party.
func (b *OrderBook) AccountOrders(account AccountID) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Order
	for _, id := range b.ids {
		if o := b.orders[id]; o.Party(account) {
			out = append(out, o)
		}
	}
	return out
}

// NextID reports the id the next successful purchase will receive.
func (b *OrderBook) NextID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID
}

// Restore reinstalls a persisted order. Used only while loading durable
// state.
func (b *OrderBook) Restore(o Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[o.ID]; !ok {
		b.ids = append(b.ids, o.ID)
	}
	b.orders[o.ID] = o
}

// RestoreNextID advances the id counter while loading durable state.
func (b *OrderBook) RestoreNextID(next uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if next > b.nextID {
		b.nextID = next
	}
}

package market

import (
	"math"
	"sync"

	"github.com/agoralabs/agora/internal/errs"
)

// Catalog owns published listings and the listing id counter. Listings are
// never deleted; stock moves only through the order engine's reservation
// and restoration steps.
type Catalog struct {
	mu       sync.RWMutex
	listings map[uint64]Listing
	ids      []uint64
	nextID   uint64
}

// NewCatalog constructs an empty catalog. Listing ids start at 1.
func NewCatalog() *Catalog {
	c := new(Catalog)
	c.listings = make(map[uint64]Listing)
	c.nextID = 1
	return c
}

// Publish assigns the next listing id to l and stores it. The id counter
// uses a checked increment: once it reaches its bound no further listing
// can be published.
func (c *Catalog) Publish(l Listing) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextID == math.MaxUint64 {
		return 0, errs.New("catalog/publish", errs.CodeIDOverflow,
			errs.WithMessage("listing id counter exhausted"))
	}
	l.ID = c.nextID
	c.listings[l.ID] = l
	c.ids = append(c.ids, l.ID)
	c.nextID++
	return l.ID, nil
}

// Get returns the listing with the given id.
func (c *Catalog) Get(id uint64) (Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.listings[id]
	if !ok {
		return Listing{}, errs.New("catalog/get", errs.CodeListingNotFound,
			errs.WithMessage("listing does not exist"))
	}
	return l, nil
}

// ReserveStock subtracts qty from the listing's remaining stock.
func (c *Catalog) ReserveStock(id uint64, qty uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[id]
	if !ok {
		return errs.New("catalog/reserve", errs.CodeListingNotFound,
			errs.WithMessage("listing does not exist"))
	}
	if l.Stock < qty {
		return errs.New("catalog/reserve", errs.CodeInsufficientStock,
			errs.WithMessage("remaining stock below requested quantity"))
	}
	l.Stock -= qty
	c.listings[id] = l
	return nil
}

// RestoreStock returns previously reserved stock to the listing, with a
// checked add so the counter can never wrap.
func (c *Catalog) RestoreStock(id uint64, qty uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[id]
	if !ok {
		return errs.New("catalog/restore", errs.CodeListingNotFound,
			errs.WithMessage("listing does not exist"))
	}
	stock, ok := addUint32(l.Stock, qty)
	if !ok {
		return errs.New("catalog/restore", errs.CodeStockOverflow,
			errs.WithMessage("stock restoration would overflow"))
	}
	l.Stock = stock
	c.listings[id] = l
	return nil
}

// Listings returns a snapshot of all listings in id order.
func (c *Catalog) Listings() []Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Listing, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.listings[id])
	}
	return out
}

// SellerListings returns a snapshot of the listings published by seller.
func (c *Catalog) SellerListings(seller AccountID) []Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Listing
	for _, id := range c.ids {
		if l := c.listings[id]; l.Seller == seller {
			out = append(out, l)
		}
	}
	return out
}

// NextID reports the id the next successful publish will receive.
func (c *Catalog) NextID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextID
}

// Restore reinstalls a persisted listing. Used only while loading durable
// state.
func (c *Catalog) Restore(l Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.listings[l.ID]; !ok {
		c.ids = append(c.ids, l.ID)
	}
	c.listings[l.ID] = l
}

// RestoreNextID advances the id counter while loading durable state.
func (c *Catalog) RestoreNextID(next uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next > c.nextID {
		c.nextID = next
	}
}

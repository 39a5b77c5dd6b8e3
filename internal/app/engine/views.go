package engine

import (
	"github.com/shopspring/decimal"

	"github.com/agoralabs/agora/internal/domain/market"
	"github.com/agoralabs/agora/internal/errs"
)

// Participants returns all registered participants in registration order.
func (e *Engine) Participants() []market.Participant {
	return e.registry.Participants()
}

// Listings returns all published listings in id order.
func (e *Engine) Listings() []market.Listing {
	return e.catalog.Listings()
}

// Listing returns a single listing by id.
func (e *Engine) Listing(id uint64) (market.Listing, error) {
	return e.catalog.Get(id)
}

// SellerListings returns the listings published by seller.
func (e *Engine) SellerListings(seller market.AccountID) []market.Listing {
	return e.catalog.SellerListings(seller)
}

// Order returns an order to one of its parties. Lookups by anyone else
// are refused so order details stay between buyer and seller.
func (e *Engine) Order(caller market.AccountID, orderID uint64) (market.Order, error) {
	const op = "engine/order"
	order, err := e.orders.Get(orderID)
	if err != nil {
		return market.Order{}, err
	}
	if !order.Party(caller) {
		return market.Order{}, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("only the order's buyer or seller may view it"))
	}
	return order, nil
}

// AccountOrders returns the orders where account is buyer or seller.
func (e *Engine) AccountOrders(account market.AccountID) []market.Order {
	return e.orders.AccountOrders(account)
}

// ReputationOf returns the rating record accumulated for the account. The
// second return is false when the account was never rated.
func (e *Engine) ReputationOf(account market.AccountID) (market.Reputation, bool) {
	return e.reputation.Reputation(account)
}

// Reputations returns all rating records in first-rating order.
func (e *Engine) Reputations() []market.Reputation {
	return e.reputation.Reputations()
}

// CategoryStats returns the aggregate for one listing category.
func (e *Engine) CategoryStats(category string) (market.RatingAggregate, bool) {
	return e.reputation.CategoryStats(category)
}

// Categories returns all category aggregates in first-rating order.
func (e *Engine) Categories() []market.CategoryStats {
	return e.reputation.Categories()
}

// EscrowEntries returns the currently held escrow amounts by order id.
func (e *Engine) EscrowEntries() []market.EscrowEntry {
	return e.escrow.Entries()
}

// EscrowTotal sums every amount currently held.
func (e *Engine) EscrowTotal() decimal.Decimal {
	return e.escrow.TotalHeld()
}

// PendingCancellations returns all open cancellation requests by order id.
func (e *Engine) PendingCancellations() []market.CancellationRequest {
	return e.cancellations.Pending()
}

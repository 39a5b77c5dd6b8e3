// Package market defines the marketplace ledger data model and its stores.
package market

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/agoralabs/agora/internal/errs"
)

// AccountID is the opaque participant identifier supplied by the caller's
// transport layer.
type AccountID string

// Role describes what a participant is allowed to do on the marketplace.
type Role string

const (
	// RoleBuyer permits purchasing only.
	RoleBuyer Role = "buyer"
	// RoleSeller permits publishing and selling only.
	RoleSeller Role = "seller"
	// RoleBoth permits both sides of the market.
	RoleBoth Role = "both"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleBoth:
		return true
	default:
		return false
	}
}

// CanBuy reports whether the role includes the buyer side.
func (r Role) CanBuy() bool { return r == RoleBuyer || r == RoleBoth }

// CanSell reports whether the role includes the seller side.
func (r Role) CanSell() bool { return r == RoleSeller || r == RoleBoth }

// OrderState tracks an order through its lifecycle.
type OrderState string

const (
	// OrderStatePending marks a freshly purchased order awaiting shipment.
	OrderStatePending OrderState = "pending"
	// OrderStateShipped marks an order the seller has dispatched.
	OrderStateShipped OrderState = "shipped"
	// OrderStateReceived marks an order the buyer has confirmed; terminal.
	OrderStateReceived OrderState = "received"
	// OrderStateCancelled marks a cancelled order; terminal.
	OrderStateCancelled OrderState = "cancelled"
)

// Terminal reports whether no further transition is defined from s.
func (s OrderState) Terminal() bool {
	return s == OrderStateReceived || s == OrderStateCancelled
}

// Participant pairs an account with its registered role.
type Participant struct {
	Account AccountID `json:"account"`
	Role    Role      `json:"role"`
}

// Field bounds for published listings.
const (
	NameMaxLen        = 64
	DescriptionMaxLen = 256
	CategoryMaxLen    = 32
)

// Rating score bounds.
const (
	ScoreMin = 1
	ScoreMax = 5
)

// Listing is a published offer. Stock may reach zero but the listing is
// never deleted.
type Listing struct {
	ID          uint64          `json:"id"`
	Seller      AccountID       `json:"seller"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       uint32          `json:"stock"`
	Category    string          `json:"category"`
}

// Order is created by a successful purchase and never deleted. The seller
// is copied from the listing at purchase time so later listing mutation
// cannot change an existing order.
type Order struct {
	ID          uint64          `json:"id"`
	Buyer       AccountID       `json:"buyer"`
	Seller      AccountID       `json:"seller"`
	ListingID   uint64          `json:"listingId"`
	Quantity    uint32          `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	State       OrderState      `json:"state"`
	SellerRated bool            `json:"sellerRated"`
	BuyerRated  bool            `json:"buyerRated"`
}

// Party reports whether account is the buyer or the seller of the order.
func (o Order) Party(account AccountID) bool {
	return account == o.Buyer || account == o.Seller
}

// Counterparty returns the other side of the order relative to account.
// The boolean is false when account is not a party at all.
func (o Order) Counterparty(account AccountID) (AccountID, bool) {
	switch account {
	case o.Buyer:
		return o.Seller, true
	case o.Seller:
		return o.Buyer, true
	default:
		return "", false
	}
}

// EscrowEntry holds an order's total while the order is Pending or Shipped.
type EscrowEntry struct {
	OrderID uint64          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

// CancellationRequest records who opened the pending negotiation on an order.
type CancellationRequest struct {
	OrderID   uint64    `json:"orderId"`
	Requester AccountID `json:"requester"`
}

// RatingAggregate is a monotonically growing (sum, count) accumulator.
// The average is computed on read, never stored.
type RatingAggregate struct {
	Sum   uint64 `json:"sum"`
	Count uint64 `json:"count"`
}

// Average returns sum/count; ok is false when no rating was recorded yet.
func (a RatingAggregate) Average() (float64, bool) {
	if a.Count == 0 {
		return 0, false
	}
	return float64(a.Sum) / float64(a.Count), true
}

// add folds a score into the accumulator with overflow detection.
func (a RatingAggregate) add(score uint8) (RatingAggregate, bool) {
	sum, ok := addUint64(a.Sum, uint64(score))
	if !ok {
		return a, false
	}
	count, ok := addUint64(a.Count, 1)
	if !ok {
		return a, false
	}
	return RatingAggregate{Sum: sum, Count: count}, true
}

// Reputation accumulates ratings a participant received on each side of
// the market.
type Reputation struct {
	Account  AccountID       `json:"account"`
	AsBuyer  RatingAggregate `json:"asBuyer"`
	AsSeller RatingAggregate `json:"asSeller"`
}

// CategoryStats aggregates seller ratings per listing category.
type CategoryStats struct {
	Category string `json:"category"`
	RatingAggregate
}

// ValidateListingFields checks the publish parameter bounds: non-empty
// strings within their byte-length bound, price strictly positive, stock
// strictly positive.
func ValidateListingFields(op, name, description, category string, price decimal.Decimal, stock uint32) error {
	if l := len(name); l == 0 || l > NameMaxLen {
		return errs.New(op, errs.CodeInvalidParam,
			errs.WithMessage(fmt.Sprintf("name length %d outside 1..%d", l, NameMaxLen)))
	}
	if l := len(description); l == 0 || l > DescriptionMaxLen {
		return errs.New(op, errs.CodeInvalidParam,
			errs.WithMessage(fmt.Sprintf("description length %d outside 1..%d", l, DescriptionMaxLen)))
	}
	if l := len(category); l == 0 || l > CategoryMaxLen {
		return errs.New(op, errs.CodeInvalidParam,
			errs.WithMessage(fmt.Sprintf("category length %d outside 1..%d", l, CategoryMaxLen)))
	}
	if !price.IsPositive() {
		return errs.New(op, errs.CodeInvalidParam, errs.WithMessage("price must be > 0"))
	}
	if stock == 0 {
		return errs.New(op, errs.CodeInvalidParam, errs.WithMessage("stock must be > 0"))
	}
	return nil
}

// ValidScore reports whether score falls inside the 1..5 rating range.
func ValidScore(score uint8) bool {
	return score >= ScoreMin && score <= ScoreMax
}

func addUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

func addUint32(a, b uint32) (uint32, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

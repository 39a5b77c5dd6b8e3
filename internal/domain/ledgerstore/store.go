// Package ledgerstore defines persistence contracts for the marketplace ledger.
package ledgerstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agoralabs/agora/internal/domain/market"
)

// Event is one append-only journal row describing a committed engine
// mutation. The journal is an audit trail; the table rows carry the
// authoritative state.
type Event struct {
	ID         string           `json:"id"`
	Op         string           `json:"op"`
	Actor      market.AccountID `json:"actor"`
	OrderID    uint64           `json:"orderId,omitempty"`
	ListingID  uint64           `json:"listingId,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	Detail     map[string]any   `json:"detail,omitempty"`
	RecordedAt time.Time        `json:"recordedAt"`
}

// State is a full snapshot of the logical ledger tables, used to rebuild
// the in-memory engine on restart.
type State struct {
	Participants  []market.Participant
	Listings      []market.Listing
	NextListingID uint64
	Orders        []market.Order
	NextOrderID   uint64
	Escrow        []market.EscrowEntry
	Cancellations []market.CancellationRequest
	Reputations   []market.Reputation
	Categories    []market.CategoryStats
}

// Tx encapsulates ledger persistence operations executed within a single
// transaction.
type Tx interface {
	UpsertParticipant(ctx context.Context, p market.Participant) error
	UpsertListing(ctx context.Context, l market.Listing) error
	UpsertOrder(ctx context.Context, o market.Order) error
	PutEscrow(ctx context.Context, e market.EscrowEntry) error
	DeleteEscrow(ctx context.Context, orderID uint64) error
	PutCancellation(ctx context.Context, r market.CancellationRequest) error
	DeleteCancellation(ctx context.Context, orderID uint64) error
	UpsertReputation(ctx context.Context, rec market.Reputation) error
	UpsertCategoryStats(ctx context.Context, stats market.CategoryStats) error
	SetCounters(ctx context.Context, nextListingID, nextOrderID uint64) error
	AppendEvent(ctx context.Context, evt Event) error
}

// Store defines the contract for durable ledger persistence.
type Store interface {
	Tx
	WithTransaction(ctx context.Context, fn func(context.Context, Tx) error) error
	Load(ctx context.Context) (State, error)
}

// Package engine implements the marketplace order engine: the single
// entry point for every mutating operation, enforcing role checks, the
// order state machine, escrow custody, cancellation negotiation, and
// reputation accounting across the ledger stores.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agoralabs/agora/internal/domain/ledgerstore"
	"github.com/agoralabs/agora/internal/domain/market"
	"github.com/agoralabs/agora/internal/errs"
	"github.com/agoralabs/agora/internal/infra/telemetry"
	"github.com/agoralabs/agora/internal/observability"
)

const defaultPersistRetryBudget = 10 * time.Second

// Engine orchestrates all marketplace operations. It processes one
// mutating call to completion before the next is considered; the stores
// carry their own read locks so snapshot enumeration stays safe for the
// reporting side.
type Engine struct {
	registry      *market.Registry
	catalog       *market.Catalog
	orders        *market.OrderBook
	escrow        *market.EscrowLedger
	cancellations *market.CancellationBook
	reputation    *market.ReputationStore

	store       ledgerstore.Store
	retryBudget time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore attaches a durable ledger store. Mutations are written behind
// the in-memory commit; see persist for the failure semantics.
func WithStore(store ledgerstore.Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithPersistRetryBudget bounds how long a failed persistence write is
// retried before it is surfaced through logs and metrics.
func WithPersistRetryBudget(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryBudget = d
		}
	}
}

// New constructs an engine with empty stores.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry:      market.NewRegistry(),
		catalog:       market.NewCatalog(),
		orders:        market.NewOrderBook(),
		escrow:        market.NewEscrowLedger(),
		cancellations: market.NewCancellationBook(),
		reputation:    market.NewReputationStore(),
		store:         nil,
		retryBudget:   defaultPersistRetryBudget,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Restore builds an engine from the durable state held in store and keeps
// the store attached for subsequent writes.
func Restore(ctx context.Context, store ledgerstore.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errs.New("engine/restore", errs.CodeStorage,
			errs.WithMessage("ledger store required"))
	}
	e := New(append(opts, WithStore(store))...)

	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	for _, p := range state.Participants {
		e.registry.Restore(p)
	}
	for _, l := range state.Listings {
		e.catalog.Restore(l)
	}
	e.catalog.RestoreNextID(state.NextListingID)
	for _, o := range state.Orders {
		e.orders.Restore(o)
	}
	e.orders.RestoreNextID(state.NextOrderID)
	for _, entry := range state.Escrow {
		e.escrow.Restore(entry)
	}
	for _, req := range state.Cancellations {
		e.cancellations.Restore(req)
	}
	for _, rec := range state.Reputations {
		e.reputation.Restore(rec)
	}
	for _, stats := range state.Categories {
		e.reputation.RestoreCategory(stats)
	}

	observability.Log().Info("ledger state restored",
		observability.F("participants", len(state.Participants)),
		observability.F("listings", len(state.Listings)),
		observability.F("orders", len(state.Orders)))
	return e, nil
}

// Register stores the caller's role. An account registers exactly once.
func (e *Engine) Register(ctx context.Context, caller market.AccountID, role market.Role) error {
	const op = "engine/register"
	if !role.Valid() {
		return e.reject(op, errs.New(op, errs.CodeInvalidParam,
			errs.WithMessage("unknown role")))
	}
	if err := e.registry.Register(caller, role); err != nil {
		return e.reject(op, err)
	}

	e.persist(ctx, mutation{
		op:     op,
		actor:  caller,
		detail: map[string]any{"role": string(role)},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			return tx.UpsertParticipant(ctx, market.Participant{Account: caller, Role: role})
		},
	})
	e.commit(op, observability.F("account", caller), observability.F("role", role))
	return nil
}

// ChangeRole overwrites the caller's role unconditionally.
func (e *Engine) ChangeRole(ctx context.Context, caller market.AccountID, role market.Role) error {
	const op = "engine/change-role"
	if !role.Valid() {
		return e.reject(op, errs.New(op, errs.CodeInvalidParam,
			errs.WithMessage("unknown role")))
	}
	if err := e.registry.ChangeRole(caller, role); err != nil {
		return e.reject(op, err)
	}

	e.persist(ctx, mutation{
		op:     op,
		actor:  caller,
		detail: map[string]any{"role": string(role)},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			return tx.UpsertParticipant(ctx, market.Participant{Account: caller, Role: role})
		},
	})
	e.commit(op, observability.F("account", caller), observability.F("role", role))
	return nil
}

// RoleOf returns the caller's registered role.
func (e *Engine) RoleOf(caller market.AccountID) (market.Role, error) {
	return e.registry.RoleOf(caller)
}

// PublishInput carries the caller-supplied fields of a new listing.
type PublishInput struct {
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Stock       uint32
}

// Publish creates a listing owned by the caller and returns its id.
func (e *Engine) Publish(ctx context.Context, caller market.AccountID, in PublishInput) (uint64, error) {
	const op = "engine/publish"
	role, err := e.registry.RoleOf(caller)
	if err != nil {
		return 0, e.reject(op, err)
	}
	if !role.CanSell() {
		return 0, e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("role does not permit publishing")))
	}
	if err := market.ValidateListingFields(op, in.Name, in.Description, in.Category, in.Price, in.Stock); err != nil {
		return 0, e.reject(op, err)
	}

	listing := market.Listing{
		Seller:      caller,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
	}
	id, err := e.catalog.Publish(listing)
	if err != nil {
		return 0, e.reject(op, err)
	}
	listing.ID = id

	e.persist(ctx, mutation{
		op:        op,
		actor:     caller,
		listingID: id,
		detail:    map[string]any{"category": in.Category, "stock": in.Stock},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			if err := tx.UpsertListing(ctx, listing); err != nil {
				return err
			}
			return tx.SetCounters(ctx, e.catalog.NextID(), e.orders.NextID())
		},
	})
	e.commit(op, observability.F("listing", id), observability.F("seller", caller))
	return id, nil
}

// Purchase creates a Pending order against a listing, reserving stock and
// escrowing the exact total. Validation runs to completion before any
// mutation so a failure never leaves partial state behind.
func (e *Engine) Purchase(ctx context.Context, buyer market.AccountID, listingID uint64, quantity uint32, tendered decimal.Decimal) (uint64, error) {
	const op = "engine/purchase"
	role, err := e.registry.RoleOf(buyer)
	if err != nil {
		return 0, e.reject(op, err)
	}
	if !role.CanBuy() {
		return 0, e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("role does not permit purchasing")))
	}
	if quantity == 0 {
		return 0, e.reject(op, errs.New(op, errs.CodeInvalidParam,
			errs.WithMessage("quantity must be > 0")))
	}
	listing, err := e.catalog.Get(listingID)
	if err != nil {
		return 0, e.reject(op, err)
	}
	if listing.Seller == buyer {
		return 0, e.reject(op, errs.New(op, errs.CodeSelfPurchaseForbidden,
			errs.WithMessage("sellers may not buy their own listing")))
	}
	if listing.Stock < quantity {
		return 0, e.reject(op, errs.New(op, errs.CodeInsufficientStock,
			errs.WithMessage("remaining stock below requested quantity")))
	}
	total := listing.Price.Mul(decimal.NewFromInt(int64(quantity)))
	switch tendered.Cmp(total) {
	case -1:
		return 0, e.reject(op, errs.New(op, errs.CodeInsufficientPayment,
			errs.WithMessage(fmt.Sprintf("tendered %s below total %s", tendered, total))))
	case 1:
		return 0, e.reject(op, errs.New(op, errs.CodeExcessPayment,
			errs.WithMessage(fmt.Sprintf("tendered %s above total %s", tendered, total))))
	}
	if !e.orders.CanAllocate() {
		return 0, e.reject(op, errs.New(op, errs.CodeIDOverflow,
			errs.WithMessage("order id counter exhausted")))
	}

	if err := e.catalog.ReserveStock(listingID, quantity); err != nil {
		return 0, e.reject(op, err)
	}
	order := market.Order{
		Buyer:     buyer,
		Seller:    listing.Seller,
		ListingID: listingID,
		Quantity:  quantity,
		Total:     total,
		State:     market.OrderStatePending,
	}
	id, err := e.orders.Create(order)
	if err != nil {
		// CanAllocate was checked above; undo the reservation anyway.
		_ = e.catalog.RestoreStock(listingID, quantity)
		return 0, e.reject(op, err)
	}
	order.ID = id
	e.escrow.Hold(id, total)

	updated, _ := e.catalog.Get(listingID)
	e.persist(ctx, mutation{
		op:        op,
		actor:     buyer,
		orderID:   id,
		listingID: listingID,
		amount:    total,
		detail:    map[string]any{"quantity": quantity},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			if err := tx.UpsertListing(ctx, updated); err != nil {
				return err
			}
			if err := tx.UpsertOrder(ctx, order); err != nil {
				return err
			}
			if err := tx.PutEscrow(ctx, market.EscrowEntry{OrderID: id, Amount: total}); err != nil {
				return err
			}
			return tx.SetCounters(ctx, e.catalog.NextID(), e.orders.NextID())
		},
	})
	e.commit(op,
		observability.F("order", id),
		observability.F("listing", listingID),
		observability.F("buyer", buyer),
		observability.F("total", total.String()))
	return id, nil
}

// MarkShipped transitions a Pending order to Shipped. Only the order's
// seller may ship.
func (e *Engine) MarkShipped(ctx context.Context, caller market.AccountID, orderID uint64) error {
	const op = "engine/mark-shipped"
	order, err := e.orders.Get(orderID)
	if err != nil {
		return e.reject(op, err)
	}
	if caller != order.Seller {
		return e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("only the order's seller may ship")))
	}
	switch order.State {
	case market.OrderStatePending:
	case market.OrderStateCancelled:
		return e.reject(op, errs.New(op, errs.CodeOrderCancelled,
			errs.WithMessage("order already cancelled")))
	default:
		return e.reject(op, errs.New(op, errs.CodeInvalidState,
			errs.WithMessage("order is not pending")))
	}

	if err := e.orders.SetState(orderID, market.OrderStateShipped); err != nil {
		return e.reject(op, err)
	}
	order.State = market.OrderStateShipped

	e.persist(ctx, mutation{
		op:      op,
		actor:   caller,
		orderID: orderID,
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			return tx.UpsertOrder(ctx, order)
		},
	})
	e.commit(op, observability.F("order", orderID), observability.F("seller", caller))
	return nil
}

// MarkReceived transitions a Shipped order to Received, releases the
// escrowed amount to the seller, and clears any stale cancellation
// request; receipt supersedes an unresolved negotiation.
func (e *Engine) MarkReceived(ctx context.Context, caller market.AccountID, orderID uint64) error {
	const op = "engine/mark-received"
	order, err := e.orders.Get(orderID)
	if err != nil {
		return e.reject(op, err)
	}
	if caller != order.Buyer {
		return e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("only the order's buyer may confirm receipt")))
	}
	switch order.State {
	case market.OrderStateShipped:
	case market.OrderStateCancelled:
		return e.reject(op, errs.New(op, errs.CodeOrderCancelled,
			errs.WithMessage("order already cancelled")))
	default:
		return e.reject(op, errs.New(op, errs.CodeInvalidState,
			errs.WithMessage("order is not shipped")))
	}

	if err := e.orders.SetState(orderID, market.OrderStateReceived); err != nil {
		return e.reject(op, err)
	}
	order.State = market.OrderStateReceived
	released, _ := e.escrow.Withdraw(orderID)
	e.cancellations.Clear(orderID)

	e.persist(ctx, mutation{
		op:      op,
		actor:   caller,
		orderID: orderID,
		amount:  released,
		detail:  map[string]any{"releasedTo": string(order.Seller)},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			if err := tx.UpsertOrder(ctx, order); err != nil {
				return err
			}
			if err := tx.DeleteEscrow(ctx, orderID); err != nil {
				return err
			}
			return tx.DeleteCancellation(ctx, orderID)
		},
	})
	e.commit(op,
		observability.F("order", orderID),
		observability.F("released", released.String()),
		observability.F("seller", order.Seller))
	return nil
}

func (e *Engine) reject(op string, err error) error {
	observability.Telemetry().IncCounter("agora_engine_ops_total", 1, map[string]string{
		string(telemetry.AttrOperation): op,
		string(telemetry.AttrResult):    "rejected",
		string(telemetry.AttrErrorCode): string(errs.CodeOf(err)),
	})
	return err
}

func (e *Engine) commit(op string, fields ...observability.Field) {
	observability.Telemetry().IncCounter("agora_engine_ops_total", 1, map[string]string{
		string(telemetry.AttrOperation): op,
		string(telemetry.AttrResult):    "committed",
	})
	observability.Log().Info(op, fields...)
}

package engine

import (
	"context"

	"github.com/agoralabs/agora/internal/domain/ledgerstore"
	"github.com/agoralabs/agora/internal/domain/market"
	"github.com/agoralabs/agora/internal/errs"
	"github.com/agoralabs/agora/internal/observability"
)

// RequestCancellation asks to unwind an unresolved order. A buyer asking
// while the order is still Pending cancels it immediately; every other
// combination opens a pending request the counterparty must answer.
func (e *Engine) RequestCancellation(ctx context.Context, caller market.AccountID, orderID uint64) error {
	const op = "engine/request-cancellation"
	order, err := e.orders.Get(orderID)
	if err != nil {
		return e.reject(op, err)
	}
	if !order.Party(caller) {
		return e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("only the order's buyer or seller may request cancellation")))
	}
	switch order.State {
	case market.OrderStatePending, market.OrderStateShipped:
	case market.OrderStateCancelled:
		return e.reject(op, errs.New(op, errs.CodeOrderCancelled,
			errs.WithMessage("order already cancelled")))
	default:
		return e.reject(op, errs.New(op, errs.CodeInvalidState,
			errs.WithMessage("order already resolved")))
	}

	if order.State == market.OrderStatePending && caller == order.Buyer {
		return e.cancelOrder(ctx, op, caller, order)
	}

	if err := e.cancellations.Open(orderID, caller); err != nil {
		return e.reject(op, err)
	}
	e.persist(ctx, mutation{
		op:      op,
		actor:   caller,
		orderID: orderID,
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			return tx.PutCancellation(ctx, market.CancellationRequest{OrderID: orderID, Requester: caller})
		},
	})
	e.commit(op, observability.F("order", orderID), observability.F("requester", caller))
	return nil
}

// AcceptCancellation lets the counterparty of a pending request confirm
// it, cancelling the order, restoring stock, and refunding the buyer.
func (e *Engine) AcceptCancellation(ctx context.Context, caller market.AccountID, orderID uint64) error {
	const op = "engine/accept-cancellation"
	order, err := e.answerableRequest(op, caller, orderID)
	if err != nil {
		return err
	}
	return e.cancelOrder(ctx, op, caller, order)
}

// RejectCancellation lets the counterparty decline a pending request. The
// order continues in its current state and a new request may be opened
// later.
func (e *Engine) RejectCancellation(ctx context.Context, caller market.AccountID, orderID uint64) error {
	const op = "engine/reject-cancellation"
	if _, err := e.answerableRequest(op, caller, orderID); err != nil {
		return err
	}

	e.cancellations.Clear(orderID)
	e.persist(ctx, mutation{
		op:      op,
		actor:   caller,
		orderID: orderID,
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			return tx.DeleteCancellation(ctx, orderID)
		},
	})
	e.commit(op, observability.F("order", orderID), observability.F("respondent", caller))
	return nil
}

// answerableRequest validates that caller may answer the pending
// cancellation request on orderID and returns the order.
func (e *Engine) answerableRequest(op string, caller market.AccountID, orderID uint64) (market.Order, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return market.Order{}, e.reject(op, err)
	}
	requester, ok := e.cancellations.Requester(orderID)
	if !ok {
		return market.Order{}, e.reject(op, errs.New(op, errs.CodeNoCancellationPending,
			errs.WithMessage("no cancellation request pending")))
	}
	switch order.State {
	case market.OrderStatePending, market.OrderStateShipped:
	case market.OrderStateCancelled:
		return market.Order{}, e.reject(op, errs.New(op, errs.CodeOrderCancelled,
			errs.WithMessage("order already cancelled")))
	default:
		return market.Order{}, e.reject(op, errs.New(op, errs.CodeInvalidState,
			errs.WithMessage("order already resolved")))
	}
	if caller == requester {
		return market.Order{}, e.reject(op, errs.New(op, errs.CodeRequesterCannotResolve,
			errs.WithMessage("requester may not answer their own request")))
	}
	if !order.Party(caller) {
		return market.Order{}, e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("only the order's counterparty may answer")))
	}
	return order, nil
}

// cancelOrder performs the shared cancellation effect: restore stock,
// refund the escrowed total to the buyer, move the order to Cancelled,
// and drop any pending request. Stock restoration runs first so an
// overflow failure leaves the order untouched.
func (e *Engine) cancelOrder(ctx context.Context, op string, caller market.AccountID, order market.Order) error {
	if err := e.catalog.RestoreStock(order.ListingID, order.Quantity); err != nil {
		return e.reject(op, err)
	}
	refunded, _ := e.escrow.Withdraw(order.ID)
	if err := e.orders.SetState(order.ID, market.OrderStateCancelled); err != nil {
		return e.reject(op, err)
	}
	order.State = market.OrderStateCancelled
	e.cancellations.Clear(order.ID)

	listing, _ := e.catalog.Get(order.ListingID)
	e.persist(ctx, mutation{
		op:        op,
		actor:     caller,
		orderID:   order.ID,
		listingID: order.ListingID,
		amount:    refunded,
		detail:    map[string]any{"refundedTo": string(order.Buyer)},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			if err := tx.UpsertListing(ctx, listing); err != nil {
				return err
			}
			if err := tx.UpsertOrder(ctx, order); err != nil {
				return err
			}
			if err := tx.DeleteEscrow(ctx, order.ID); err != nil {
				return err
			}
			return tx.DeleteCancellation(ctx, order.ID)
		},
	})
	e.commit(op,
		observability.F("order", order.ID),
		observability.F("refunded", refunded.String()),
		observability.F("buyer", order.Buyer))
	return nil
}

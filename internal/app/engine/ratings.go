package engine

import (
	"context"

	"github.com/agoralabs/agora/internal/domain/ledgerstore"
	"github.com/agoralabs/agora/internal/domain/market"
	"github.com/agoralabs/agora/internal/errs"
	"github.com/agoralabs/agora/internal/observability"
)

// RateSeller lets the buyer of a Received order score the seller once.
// The score also feeds the aggregate of the listing's category.
func (e *Engine) RateSeller(ctx context.Context, caller market.AccountID, orderID uint64, score uint8) error {
	const op = "engine/rate-seller"
	order, err := e.ratableOrder(op, orderID, score)
	if err != nil {
		return err
	}
	if caller != order.Buyer {
		return e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("only the order's buyer may rate the seller")))
	}
	if order.SellerRated {
		return e.reject(op, errs.New(op, errs.CodeAlreadyRated,
			errs.WithMessage("seller already rated for this order")))
	}
	listing, err := e.catalog.Get(order.ListingID)
	if err != nil {
		return e.reject(op, err)
	}

	if err := e.reputation.AddSellerScore(order.Seller, score, listing.Category); err != nil {
		return e.reject(op, err)
	}
	if err := e.orders.MarkSellerRated(orderID); err != nil {
		return e.reject(op, err)
	}
	order.SellerRated = true

	rec, _ := e.reputation.Reputation(order.Seller)
	agg, _ := e.reputation.CategoryStats(listing.Category)
	e.persist(ctx, mutation{
		op:        op,
		actor:     caller,
		orderID:   orderID,
		listingID: order.ListingID,
		detail:    map[string]any{"score": score, "category": listing.Category},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			if err := tx.UpsertOrder(ctx, order); err != nil {
				return err
			}
			if err := tx.UpsertReputation(ctx, rec); err != nil {
				return err
			}
			return tx.UpsertCategoryStats(ctx, market.CategoryStats{
				Category:        listing.Category,
				RatingAggregate: agg,
			})
		},
	})
	e.commit(op,
		observability.F("order", orderID),
		observability.F("seller", order.Seller),
		observability.F("score", score))
	return nil
}

// RateBuyer lets the seller of a Received order score the buyer once.
func (e *Engine) RateBuyer(ctx context.Context, caller market.AccountID, orderID uint64, score uint8) error {
	const op = "engine/rate-buyer"
	order, err := e.ratableOrder(op, orderID, score)
	if err != nil {
		return err
	}
	if caller != order.Seller {
		return e.reject(op, errs.New(op, errs.CodeForbidden,
			errs.WithMessage("only the order's seller may rate the buyer")))
	}
	if order.BuyerRated {
		return e.reject(op, errs.New(op, errs.CodeAlreadyRated,
			errs.WithMessage("buyer already rated for this order")))
	}

	if err := e.reputation.AddBuyerScore(order.Buyer, score); err != nil {
		return e.reject(op, err)
	}
	if err := e.orders.MarkBuyerRated(orderID); err != nil {
		return e.reject(op, err)
	}
	order.BuyerRated = true

	rec, _ := e.reputation.Reputation(order.Buyer)
	e.persist(ctx, mutation{
		op:      op,
		actor:   caller,
		orderID: orderID,
		detail:  map[string]any{"score": score},
		apply: func(ctx context.Context, tx ledgerstore.Tx) error {
			if err := tx.UpsertOrder(ctx, order); err != nil {
				return err
			}
			return tx.UpsertReputation(ctx, rec)
		},
	})
	e.commit(op,
		observability.F("order", orderID),
		observability.F("buyer", order.Buyer),
		observability.F("score", score))
	return nil
}

// ratableOrder validates the shared rating preconditions: the order
// exists, has been received, and the score is within range. Every
// non-Received state, Cancelled included, is reported as not received.
func (e *Engine) ratableOrder(op string, orderID uint64, score uint8) (market.Order, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return market.Order{}, e.reject(op, err)
	}
	if order.State != market.OrderStateReceived {
		return market.Order{}, e.reject(op, errs.New(op, errs.CodeOrderNotReceived,
			errs.WithMessage("order has not been received")))
	}
	if !market.ValidScore(score) {
		return market.Order{}, e.reject(op, errs.New(op, errs.CodeInvalidScore,
			errs.WithMessage("score must be between 1 and 5")))
	}
	return order, nil
}

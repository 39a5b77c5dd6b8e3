package engine_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agoralabs/agora/internal/app/engine"
	"github.com/agoralabs/agora/internal/domain/market"
	"github.com/agoralabs/agora/internal/errs"
	"github.com/agoralabs/agora/internal/observability"
)

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newMarket(t *testing.T) (*engine.Engine, context.Context) {
	t.Helper()
	e := engine.New()
	ctx := context.Background()
	if err := e.Register(ctx, "alice", market.RoleBuyer); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if err := e.Register(ctx, "bob", market.RoleSeller); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if err := e.Register(ctx, "carol", market.RoleBoth); err != nil {
		t.Fatalf("register carol: %v", err)
	}
	return e, ctx
}

func publish(t *testing.T, e *engine.Engine, ctx context.Context, seller market.AccountID, unit int64, stock uint32) uint64 {
	t.Helper()
	id, err := e.Publish(ctx, seller, engine.PublishInput{
		Name:        "widget",
		Description: "a widget",
		Category:    "tools",
		Price:       price(unit),
		Stock:       stock,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return id
}

func TestRegisterAndChangeRole(t *testing.T) {
	e := engine.New()
	ctx := context.Background()

	if err := e.Register(ctx, "alice", market.RoleBuyer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.Register(ctx, "alice", market.RoleSeller); !errs.IsCode(err, errs.CodeAlreadyRegistered) {
		t.Fatalf("expected already_registered, got %v", err)
	}
	if err := e.Register(ctx, "bob", market.Role("admin")); !errs.IsCode(err, errs.CodeInvalidParam) {
		t.Fatalf("expected invalid_param for unknown role, got %v", err)
	}
	if err := e.ChangeRole(ctx, "ghost", market.RoleBuyer); !errs.IsCode(err, errs.CodeNotRegistered) {
		t.Fatalf("expected not_registered, got %v", err)
	}

	if err := e.ChangeRole(ctx, "alice", market.RoleBoth); err != nil {
		t.Fatalf("change role: %v", err)
	}
	role, err := e.RoleOf("alice")
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != market.RoleBoth {
		t.Fatalf("role = %q, want both", role)
	}
}

func TestPublishRequiresSellerSide(t *testing.T) {
	e, ctx := newMarket(t)

	input := engine.PublishInput{
		Name: "widget", Description: "a widget", Category: "tools",
		Price: price(10), Stock: 1,
	}
	if _, err := e.Publish(ctx, "alice", input); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("buyer publish: expected forbidden, got %v", err)
	}
	if _, err := e.Publish(ctx, "ghost", input); !errs.IsCode(err, errs.CodeNotRegistered) {
		t.Fatalf("unregistered publish: expected not_registered, got %v", err)
	}

	bad := input
	bad.Price = decimal.Zero
	if _, err := e.Publish(ctx, "bob", bad); !errs.IsCode(err, errs.CodeInvalidParam) {
		t.Fatalf("zero price: expected invalid_param, got %v", err)
	}

	id := publish(t, e, ctx, "bob", 10, 5)
	if id != 1 {
		t.Fatalf("first listing id = %d, want 1", id)
	}
	listing, err := e.Listing(id)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if listing.Seller != "bob" || listing.Stock != 5 {
		t.Fatalf("unexpected listing %+v", listing)
	}
}

func TestPurchaseHappyPath(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 10)

	orderID, err := e.Purchase(ctx, "alice", listingID, 3, price(300))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	order, err := e.Order("alice", orderID)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if order.State != market.OrderStatePending {
		t.Fatalf("state = %q, want pending", order.State)
	}
	if order.Seller != "bob" || order.Quantity != 3 {
		t.Fatalf("unexpected order %+v", order)
	}
	if !order.Total.Equal(price(300)) {
		t.Fatalf("total = %s, want 300", order.Total)
	}

	listing, _ := e.Listing(listingID)
	if listing.Stock != 7 {
		t.Fatalf("stock after purchase = %d, want 7", listing.Stock)
	}
	if !e.EscrowTotal().Equal(price(300)) {
		t.Fatalf("escrow total = %s, want 300", e.EscrowTotal())
	}
}

func TestPurchaseExactPaymentLaw(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 10)

	if _, err := e.Purchase(ctx, "alice", listingID, 3, price(299)); !errs.IsCode(err, errs.CodeInsufficientPayment) {
		t.Fatalf("underpayment: expected insufficient_payment, got %v", err)
	}
	if _, err := e.Purchase(ctx, "alice", listingID, 3, price(301)); !errs.IsCode(err, errs.CodeExcessPayment) {
		t.Fatalf("overpayment: expected excess_payment, got %v", err)
	}

	listing, _ := e.Listing(listingID)
	if listing.Stock != 10 {
		t.Fatalf("stock mutated by rejected purchases: %d", listing.Stock)
	}
	if !e.EscrowTotal().IsZero() {
		t.Fatalf("escrow mutated by rejected purchases: %s", e.EscrowTotal())
	}

	if _, err := e.Purchase(ctx, "alice", listingID, 3, price(300)); err != nil {
		t.Fatalf("exact payment rejected: %v", err)
	}
}

func TestPurchaseRejections(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 2)

	if _, err := e.Purchase(ctx, "ghost", listingID, 1, price(100)); !errs.IsCode(err, errs.CodeNotRegistered) {
		t.Fatalf("unregistered: got %v", err)
	}
	if _, err := e.Purchase(ctx, "bob", listingID, 1, price(100)); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("seller-only role buying: got %v", err)
	}
	if _, err := e.Purchase(ctx, "alice", listingID, 0, price(0)); !errs.IsCode(err, errs.CodeInvalidParam) {
		t.Fatalf("zero quantity: got %v", err)
	}
	if _, err := e.Purchase(ctx, "alice", 404, 1, price(100)); !errs.IsCode(err, errs.CodeListingNotFound) {
		t.Fatalf("missing listing: got %v", err)
	}
	if _, err := e.Purchase(ctx, "alice", listingID, 3, price(300)); !errs.IsCode(err, errs.CodeInsufficientStock) {
		t.Fatalf("over stock: got %v", err)
	}

	// carol has role both and owns the next listing.
	ownID := publish(t, e, ctx, "carol", 50, 1)
	if _, err := e.Purchase(ctx, "carol", ownID, 1, price(50)); !errs.IsCode(err, errs.CodeSelfPurchaseForbidden) {
		t.Fatalf("self purchase: got %v", err)
	}
}

func TestShipAndReceiveLifecycle(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 2, price(200))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := e.MarkShipped(ctx, "alice", orderID); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("buyer shipping: got %v", err)
	}
	if err := e.MarkReceived(ctx, "alice", orderID); !errs.IsCode(err, errs.CodeInvalidState) {
		t.Fatalf("receive before ship: got %v", err)
	}

	if err := e.MarkShipped(ctx, "bob", orderID); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if err := e.MarkShipped(ctx, "bob", orderID); !errs.IsCode(err, errs.CodeInvalidState) {
		t.Fatalf("double ship: got %v", err)
	}

	if err := e.MarkReceived(ctx, "bob", orderID); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("seller receiving: got %v", err)
	}
	if err := e.MarkReceived(ctx, "alice", orderID); err != nil {
		t.Fatalf("mark received: %v", err)
	}

	order, _ := e.Order("alice", orderID)
	if order.State != market.OrderStateReceived {
		t.Fatalf("state = %q, want received", order.State)
	}
	if !e.EscrowTotal().IsZero() {
		t.Fatalf("escrow not released: %s", e.EscrowTotal())
	}

	if err := e.MarkReceived(ctx, "alice", orderID); !errs.IsCode(err, errs.CodeInvalidState) {
		t.Fatalf("double receive: got %v", err)
	}
}

func TestBuyerFastPathCancellation(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 2, price(200))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := e.RequestCancellation(ctx, "alice", orderID); err != nil {
		t.Fatalf("buyer cancel on pending: %v", err)
	}

	order, _ := e.Order("alice", orderID)
	if order.State != market.OrderStateCancelled {
		t.Fatalf("state = %q, want cancelled", order.State)
	}
	listing, _ := e.Listing(listingID)
	if listing.Stock != 5 {
		t.Fatalf("stock not restored: %d", listing.Stock)
	}
	if !e.EscrowTotal().IsZero() {
		t.Fatalf("escrow not refunded: %s", e.EscrowTotal())
	}
	if got := len(e.PendingCancellations()); got != 0 {
		t.Fatalf("pending requests after fast path = %d, want 0", got)
	}

	if err := e.RequestCancellation(ctx, "alice", orderID); !errs.IsCode(err, errs.CodeOrderCancelled) {
		t.Fatalf("cancel on cancelled: got %v", err)
	}
}

func TestNegotiatedCancellationAccept(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 2, price(200))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// A seller request on a pending order must negotiate, never fast-path.
	if err := e.RequestCancellation(ctx, "bob", orderID); err != nil {
		t.Fatalf("seller request: %v", err)
	}
	order, _ := e.Order("bob", orderID)
	if order.State != market.OrderStatePending {
		t.Fatalf("state = %q, want pending while negotiating", order.State)
	}
	if got := len(e.PendingCancellations()); got != 1 {
		t.Fatalf("pending requests = %d, want 1", got)
	}

	if err := e.RequestCancellation(ctx, "alice", orderID); !errs.IsCode(err, errs.CodeCancellationAlreadyPending) {
		t.Fatalf("second request: got %v", err)
	}
	if err := e.AcceptCancellation(ctx, "bob", orderID); !errs.IsCode(err, errs.CodeRequesterCannotResolve) {
		t.Fatalf("requester accepting: got %v", err)
	}

	if err := e.AcceptCancellation(ctx, "alice", orderID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	order, _ = e.Order("alice", orderID)
	if order.State != market.OrderStateCancelled {
		t.Fatalf("state = %q, want cancelled", order.State)
	}
	listing, _ := e.Listing(listingID)
	if listing.Stock != 5 {
		t.Fatalf("stock not restored: %d", listing.Stock)
	}
	if !e.EscrowTotal().IsZero() {
		t.Fatalf("escrow not refunded: %s", e.EscrowTotal())
	}
}

func TestNegotiatedCancellationReject(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 2, price(200))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := e.MarkShipped(ctx, "bob", orderID); err != nil {
		t.Fatalf("ship: %v", err)
	}

	// A buyer request on a shipped order negotiates; the fast path only
	// applies while the order is pending.
	if err := e.RequestCancellation(ctx, "alice", orderID); err != nil {
		t.Fatalf("buyer request on shipped: %v", err)
	}
	order, _ := e.Order("alice", orderID)
	if order.State != market.OrderStateShipped {
		t.Fatalf("state = %q, want shipped", order.State)
	}

	if err := e.RejectCancellation(ctx, "alice", orderID); !errs.IsCode(err, errs.CodeRequesterCannotResolve) {
		t.Fatalf("requester rejecting: got %v", err)
	}
	if err := e.RejectCancellation(ctx, "bob", orderID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := len(e.PendingCancellations()); got != 0 {
		t.Fatalf("pending requests after reject = %d, want 0", got)
	}
	if err := e.RejectCancellation(ctx, "bob", orderID); !errs.IsCode(err, errs.CodeNoCancellationPending) {
		t.Fatalf("reject without request: got %v", err)
	}

	// The order continues normally after a rejected request.
	if err := e.MarkReceived(ctx, "alice", orderID); err != nil {
		t.Fatalf("receive after reject: %v", err)
	}
}

func TestCancellationRequestValidation(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 1, price(100))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := e.RequestCancellation(ctx, "carol", orderID); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("stranger request: got %v", err)
	}
	if err := e.RequestCancellation(ctx, "alice", 404); !errs.IsCode(err, errs.CodeOrderNotFound) {
		t.Fatalf("missing order: got %v", err)
	}
	if err := e.AcceptCancellation(ctx, "bob", orderID); !errs.IsCode(err, errs.CodeNoCancellationPending) {
		t.Fatalf("accept without request: got %v", err)
	}

	if err := e.MarkShipped(ctx, "bob", orderID); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := e.MarkReceived(ctx, "alice", orderID); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := e.RequestCancellation(ctx, "alice", orderID); !errs.IsCode(err, errs.CodeInvalidState) {
		t.Fatalf("request on received order: got %v", err)
	}
}

func receivedOrder(t *testing.T, e *engine.Engine, ctx context.Context) uint64 {
	t.Helper()
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 1, price(100))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := e.MarkShipped(ctx, "bob", orderID); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := e.MarkReceived(ctx, "alice", orderID); err != nil {
		t.Fatalf("receive: %v", err)
	}
	return orderID
}

func TestRateSellerOncePerOrder(t *testing.T) {
	e, ctx := newMarket(t)
	orderID := receivedOrder(t, e, ctx)

	if err := e.RateSeller(ctx, "alice", orderID, 0); !errs.IsCode(err, errs.CodeInvalidScore) {
		t.Fatalf("score 0: got %v", err)
	}
	if err := e.RateSeller(ctx, "alice", orderID, 6); !errs.IsCode(err, errs.CodeInvalidScore) {
		t.Fatalf("score 6: got %v", err)
	}
	if err := e.RateSeller(ctx, "bob", orderID, 5); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("seller rating self: got %v", err)
	}

	if err := e.RateSeller(ctx, "alice", orderID, 5); err != nil {
		t.Fatalf("rate seller: %v", err)
	}
	if err := e.RateSeller(ctx, "alice", orderID, 4); !errs.IsCode(err, errs.CodeAlreadyRated) {
		t.Fatalf("double rating: got %v", err)
	}

	rec, ok := e.ReputationOf("bob")
	if !ok || rec.AsSeller.Sum != 5 || rec.AsSeller.Count != 1 {
		t.Fatalf("bob reputation = %+v, %v", rec, ok)
	}
	agg, ok := e.CategoryStats("tools")
	if !ok || agg.Sum != 5 || agg.Count != 1 {
		t.Fatalf("tools aggregate = %+v, %v", agg, ok)
	}

	// A second received order admits a second rating.
	second := receivedOrder(t, e, ctx)
	if err := e.RateSeller(ctx, "alice", second, 3); err != nil {
		t.Fatalf("rate on second order: %v", err)
	}
	rec, _ = e.ReputationOf("bob")
	if rec.AsSeller.Sum != 8 || rec.AsSeller.Count != 2 {
		t.Fatalf("bob reputation after second rating = %+v", rec.AsSeller)
	}
}

func TestRateBuyerOncePerOrder(t *testing.T) {
	e, ctx := newMarket(t)
	orderID := receivedOrder(t, e, ctx)

	if err := e.RateBuyer(ctx, "alice", orderID, 4); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("buyer rating self: got %v", err)
	}
	if err := e.RateBuyer(ctx, "bob", orderID, 4); err != nil {
		t.Fatalf("rate buyer: %v", err)
	}
	if err := e.RateBuyer(ctx, "bob", orderID, 2); !errs.IsCode(err, errs.CodeAlreadyRated) {
		t.Fatalf("double rating: got %v", err)
	}

	rec, ok := e.ReputationOf("alice")
	if !ok || rec.AsBuyer.Sum != 4 || rec.AsBuyer.Count != 1 {
		t.Fatalf("alice reputation = %+v, %v", rec, ok)
	}
	// Buyer ratings never touch category aggregates; the only entry is
	// from seller ratings, absent here.
	if _, ok := e.CategoryStats("tools"); ok {
		t.Fatal("buyer rating leaked into category aggregate")
	}
}

func TestRatingRequiresReceivedState(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 1, price(100))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := e.RateSeller(ctx, "alice", orderID, 5); !errs.IsCode(err, errs.CodeOrderNotReceived) {
		t.Fatalf("rating pending order: got %v", err)
	}
	if err := e.RequestCancellation(ctx, "alice", orderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Cancelled orders are reported as not received, not as cancelled.
	if err := e.RateSeller(ctx, "alice", orderID, 5); !errs.IsCode(err, errs.CodeOrderNotReceived) {
		t.Fatalf("rating cancelled order: got %v", err)
	}
	if err := e.RateBuyer(ctx, "bob", orderID, 5); !errs.IsCode(err, errs.CodeOrderNotReceived) {
		t.Fatalf("rating cancelled order as seller: got %v", err)
	}
}

func TestOrderLookupRestrictedToParties(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 100, 5)
	orderID, err := e.Purchase(ctx, "alice", listingID, 1, price(100))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if _, err := e.Order("alice", orderID); err != nil {
		t.Fatalf("buyer lookup: %v", err)
	}
	if _, err := e.Order("bob", orderID); err != nil {
		t.Fatalf("seller lookup: %v", err)
	}
	if _, err := e.Order("carol", orderID); !errs.IsCode(err, errs.CodeForbidden) {
		t.Fatalf("stranger lookup: got %v", err)
	}
}

func TestEnumerationViews(t *testing.T) {
	e, ctx := newMarket(t)
	first := publish(t, e, ctx, "bob", 100, 5)
	second := publish(t, e, ctx, "carol", 20, 2)
	if _, err := e.Purchase(ctx, "alice", first, 1, price(100)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := e.Purchase(ctx, "alice", second, 1, price(20)); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if got := len(e.Participants()); got != 3 {
		t.Fatalf("participants = %d, want 3", got)
	}
	if got := len(e.Listings()); got != 2 {
		t.Fatalf("listings = %d, want 2", got)
	}
	if got := len(e.SellerListings("bob")); got != 1 {
		t.Fatalf("bob listings = %d, want 1", got)
	}
	if got := len(e.AccountOrders("alice")); got != 2 {
		t.Fatalf("alice orders = %d, want 2", got)
	}
	if got := len(e.AccountOrders("bob")); got != 1 {
		t.Fatalf("bob orders = %d, want 1", got)
	}
	if got := len(e.EscrowEntries()); got != 2 {
		t.Fatalf("escrow entries = %d, want 2", got)
	}
	if !e.EscrowTotal().Equal(price(120)) {
		t.Fatalf("escrow total = %s, want 120", e.EscrowTotal())
	}
}

func TestStockAndEscrowConservation(t *testing.T) {
	e, ctx := newMarket(t)
	listingID := publish(t, e, ctx, "bob", 10, 10)

	var open []uint64
	for i := 0; i < 4; i++ {
		id, err := e.Purchase(ctx, "alice", listingID, 2, price(20))
		if err != nil {
			t.Fatalf("purchase %d: %v", i, err)
		}
		open = append(open, id)
	}
	listing, _ := e.Listing(listingID)
	if listing.Stock != 2 {
		t.Fatalf("stock = %d, want 2", listing.Stock)
	}
	if !e.EscrowTotal().Equal(price(80)) {
		t.Fatalf("escrow = %s, want 80", e.EscrowTotal())
	}

	// Cancel two, resolve one, keep one open.
	if err := e.RequestCancellation(ctx, "alice", open[0]); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := e.RequestCancellation(ctx, "alice", open[1]); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := e.MarkShipped(ctx, "bob", open[2]); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := e.MarkReceived(ctx, "alice", open[2]); err != nil {
		t.Fatalf("receive: %v", err)
	}

	listing, _ = e.Listing(listingID)
	if listing.Stock != 6 {
		t.Fatalf("stock after cancellations = %d, want 6", listing.Stock)
	}
	if !e.EscrowTotal().Equal(price(20)) {
		t.Fatalf("escrow = %s, want 20 for the single open order", e.EscrowTotal())
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := newFakeStore()
	e := engine.New(engine.WithStore(store), engine.WithPersistRetryBudget(50*time.Millisecond))
	ctx := context.Background()

	if err := e.Register(ctx, "alice", market.RoleBuyer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.Register(ctx, "bob", market.RoleSeller); err != nil {
		t.Fatalf("register: %v", err)
	}
	listingID, err := e.Publish(ctx, "bob", engine.PublishInput{
		Name: "widget", Description: "a widget", Category: "tools",
		Price: price(100), Stock: 5,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	orderID, err := e.Purchase(ctx, "alice", listingID, 2, price(200))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := e.MarkShipped(ctx, "bob", orderID); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := e.RequestCancellation(ctx, "alice", orderID); err != nil {
		t.Fatalf("request cancellation: %v", err)
	}

	if got := len(store.events); got != 6 {
		t.Fatalf("journal events = %d, want 6", got)
	}
	for _, evt := range store.events {
		if evt.ID == "" {
			t.Fatal("journal event missing id")
		}
	}

	restored, err := engine.Restore(ctx, store)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	role, err := restored.RoleOf("alice")
	if err != nil || role != market.RoleBuyer {
		t.Fatalf("restored role = %q, %v", role, err)
	}
	listing, err := restored.Listing(listingID)
	if err != nil {
		t.Fatalf("restored listing: %v", err)
	}
	if listing.Stock != 3 {
		t.Fatalf("restored stock = %d, want 3", listing.Stock)
	}
	order, err := restored.Order("alice", orderID)
	if err != nil {
		t.Fatalf("restored order: %v", err)
	}
	if order.State != market.OrderStateShipped {
		t.Fatalf("restored state = %q, want shipped", order.State)
	}
	if got := len(restored.PendingCancellations()); got != 1 {
		t.Fatalf("restored pending requests = %d, want 1", got)
	}
	if !restored.EscrowTotal().Equal(price(200)) {
		t.Fatalf("restored escrow = %s, want 200", restored.EscrowTotal())
	}

	// Counters resume past the persisted ids.
	nextListing, err := restored.Publish(ctx, "bob", engine.PublishInput{
		Name: "gadget", Description: "a gadget", Category: "tools",
		Price: price(10), Stock: 1,
	})
	if err != nil {
		t.Fatalf("publish after restore: %v", err)
	}
	if nextListing != listingID+1 {
		t.Fatalf("listing id after restore = %d, want %d", nextListing, listingID+1)
	}
}

func TestFailingStoreDoesNotBlockCommits(t *testing.T) {
	store := newFakeStore()
	store.failWrites = true
	e := engine.New(engine.WithStore(store), engine.WithPersistRetryBudget(10*time.Millisecond))
	ctx := context.Background()

	if err := e.Register(ctx, "alice", market.RoleBuyer); err != nil {
		t.Fatalf("register with failing store: %v", err)
	}
	role, err := e.RoleOf("alice")
	if err != nil || role != market.RoleBuyer {
		t.Fatalf("in-memory commit lost: %q, %v", role, err)
	}
	if len(store.events) != 0 {
		t.Fatalf("failing store recorded %d events", len(store.events))
	}
}

func TestCancellationStockOverflowLeavesOrderIntact(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seed := []error{
		store.UpsertParticipant(ctx, market.Participant{Account: "alice", Role: market.RoleBuyer}),
		store.UpsertParticipant(ctx, market.Participant{Account: "bob", Role: market.RoleSeller}),
		store.UpsertListing(ctx, market.Listing{
			ID: 1, Seller: "bob", Name: "widget", Description: "a widget",
			Price: price(100), Stock: math.MaxUint32 - 2, Category: "tools",
		}),
		store.UpsertOrder(ctx, market.Order{
			ID: 1, Buyer: "alice", Seller: "bob", ListingID: 1,
			Quantity: 5, Total: price(500), State: market.OrderStatePending,
		}),
		store.PutEscrow(ctx, market.EscrowEntry{OrderID: 1, Amount: price(500)}),
		store.SetCounters(ctx, 2, 2),
	}
	for _, err := range seed {
		if err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	e, err := engine.Restore(ctx, store)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	// Restoring 5 units onto a near-full stock counter overflows; the
	// buyer fast path must fail before any state changes.
	if err := e.RequestCancellation(ctx, "alice", 1); !errs.IsCode(err, errs.CodeStockOverflow) {
		t.Fatalf("fast-path cancel: got %v", err)
	}
	order, err := e.Order("alice", 1)
	if err != nil || order.State != market.OrderStatePending {
		t.Fatalf("order after failed cancel = %+v, %v", order, err)
	}
	if !e.EscrowTotal().Equal(price(500)) {
		t.Fatalf("escrow total = %s, want 500", e.EscrowTotal())
	}

	// The negotiated path hits the same wall on acceptance: the request
	// stays pending and the order keeps its state and escrow.
	if err := e.RequestCancellation(ctx, "bob", 1); err != nil {
		t.Fatalf("seller request: %v", err)
	}
	if err := e.AcceptCancellation(ctx, "alice", 1); !errs.IsCode(err, errs.CodeStockOverflow) {
		t.Fatalf("accept: got %v", err)
	}
	if pending := e.PendingCancellations(); len(pending) != 1 || pending[0].OrderID != 1 {
		t.Fatalf("pending requests = %+v", pending)
	}
	order, err = e.Order("alice", 1)
	if err != nil || order.State != market.OrderStatePending {
		t.Fatalf("order after failed accept = %+v, %v", order, err)
	}
	if !e.EscrowTotal().Equal(price(500)) {
		t.Fatalf("escrow total after failed accept = %s, want 500", e.EscrowTotal())
	}
	listing, err := e.Listing(1)
	if err != nil || listing.Stock != math.MaxUint32-2 {
		t.Fatalf("listing after failed accept = %+v, %v", listing, err)
	}
}

type recordingMetrics struct {
	samples []counterSample
}

type counterSample struct {
	name   string
	labels map[string]string
}

func (m *recordingMetrics) IncCounter(name string, _ float64, labels map[string]string) {
	m.samples = append(m.samples, counterSample{name: name, labels: labels})
}

func (m *recordingMetrics) ObserveHistogram(string, float64, map[string]string) {}

func (m *recordingMetrics) SetGauge(string, float64, map[string]string) {}

func TestOperationCountersLabelOutcomes(t *testing.T) {
	rec := &recordingMetrics{}
	observability.SetMetrics(rec)
	defer observability.SetMetrics(nil)

	e := engine.New()
	ctx := context.Background()
	if err := e.Register(ctx, "dana", market.RoleBuyer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.Register(ctx, "dana", market.RoleBuyer); !errs.IsCode(err, errs.CodeAlreadyRegistered) {
		t.Fatalf("second registration: got %v", err)
	}

	if len(rec.samples) != 2 {
		t.Fatalf("counter samples = %d, want 2", len(rec.samples))
	}
	committed := rec.samples[0]
	if committed.name != "agora_engine_ops_total" ||
		committed.labels["operation"] != "engine/register" ||
		committed.labels["result"] != "committed" {
		t.Fatalf("committed sample = %+v", committed)
	}
	rejected := rec.samples[1]
	if rejected.labels["result"] != "rejected" ||
		rejected.labels["operation"] != "engine/register" ||
		rejected.labels["error.code"] != string(errs.CodeAlreadyRegistered) {
		t.Fatalf("rejected sample = %+v", rejected)
	}
}

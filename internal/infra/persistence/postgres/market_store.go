// Package postgres implements the durable ledger store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/agoralabs/agora/internal/domain/ledgerstore"
	"github.com/agoralabs/agora/internal/domain/market"
)

// MarketStore persists the marketplace ledger tables and the append-only
// event journal.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore constructs a MarketStore backed by the provided pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const (
	participantUpsertSQL = `
INSERT INTO participants (account, role, created_at, updated_at)
VALUES (@account, @role, NOW(), NOW())
ON CONFLICT (account) DO UPDATE SET
    role = EXCLUDED.role,
    updated_at = NOW();
`

	listingUpsertSQL = `
INSERT INTO listings (id, seller, name, description, price, stock, category, created_at, updated_at)
VALUES (@id, @seller, @name, @description, @price, @stock, @category, NOW(), NOW())
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price = EXCLUDED.price,
    stock = EXCLUDED.stock,
    category = EXCLUDED.category,
    updated_at = NOW();
`

	orderUpsertSQL = `
INSERT INTO orders (id, buyer, seller, listing_id, quantity, total, state, seller_rated, buyer_rated, created_at, updated_at)
VALUES (@id, @buyer, @seller, @listing_id, @quantity, @total, @state, @seller_rated, @buyer_rated, NOW(), NOW())
ON CONFLICT (id) DO UPDATE SET
    state = EXCLUDED.state,
    seller_rated = EXCLUDED.seller_rated,
    buyer_rated = EXCLUDED.buyer_rated,
    updated_at = NOW();
`

	escrowUpsertSQL = `
INSERT INTO escrow_holds (order_id, amount, created_at)
VALUES (@order_id, @amount, NOW())
ON CONFLICT (order_id) DO UPDATE SET amount = EXCLUDED.amount;
`

	escrowDeleteSQL = `DELETE FROM escrow_holds WHERE order_id = @order_id;`

	cancellationUpsertSQL = `
INSERT INTO cancellation_requests (order_id, requester, created_at)
VALUES (@order_id, @requester, NOW())
ON CONFLICT (order_id) DO UPDATE SET requester = EXCLUDED.requester;
`

	cancellationDeleteSQL = `DELETE FROM cancellation_requests WHERE order_id = @order_id;`

	reputationUpsertSQL = `
INSERT INTO reputations (account, seller_sum, seller_count, buyer_sum, buyer_count, updated_at)
VALUES (@account, @seller_sum, @seller_count, @buyer_sum, @buyer_count, NOW())
ON CONFLICT (account) DO UPDATE SET
    seller_sum = EXCLUDED.seller_sum,
    seller_count = EXCLUDED.seller_count,
    buyer_sum = EXCLUDED.buyer_sum,
    buyer_count = EXCLUDED.buyer_count,
    updated_at = NOW();
`

	categoryUpsertSQL = `
INSERT INTO category_ratings (category, score_sum, score_count, updated_at)
VALUES (@category, @score_sum, @score_count, NOW())
ON CONFLICT (category) DO UPDATE SET
    score_sum = EXCLUDED.score_sum,
    score_count = EXCLUDED.score_count,
    updated_at = NOW();
`

	countersUpsertSQL = `
INSERT INTO ledger_counters (id, next_listing_id, next_order_id)
VALUES (1, @next_listing_id, @next_order_id)
ON CONFLICT (id) DO UPDATE SET
    next_listing_id = EXCLUDED.next_listing_id,
    next_order_id = EXCLUDED.next_order_id;
`

	eventInsertSQL = `
INSERT INTO ledger_events (id, op, actor, order_id, listing_id, amount, detail, recorded_at)
VALUES (@id, @op, @actor, @order_id, @listing_id, @amount, @detail::jsonb, @recorded_at)
ON CONFLICT (id) DO NOTHING;
`

	participantSelectSQL = `SELECT account, role FROM participants ORDER BY created_at, account;`

	listingSelectSQL = `
SELECT id, seller, name, description, price::text, stock, category
FROM listings ORDER BY id;
`

	orderSelectSQL = `
SELECT id, buyer, seller, listing_id, quantity, total::text, state, seller_rated, buyer_rated
FROM orders ORDER BY id;
`

	escrowSelectSQL = `SELECT order_id, amount::text FROM escrow_holds ORDER BY order_id;`

	cancellationSelectSQL = `SELECT order_id, requester FROM cancellation_requests ORDER BY order_id;`

	reputationSelectSQL = `
SELECT account, seller_sum, seller_count, buyer_sum, buyer_count
FROM reputations ORDER BY updated_at, account;
`

	categorySelectSQL = `
SELECT category, score_sum, score_count FROM category_ratings ORDER BY updated_at, category;
`

	countersSelectSQL = `SELECT next_listing_id, next_order_id FROM ledger_counters WHERE id = 1;`
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type marketTx struct {
	tx    pgx.Tx
	store *MarketStore
}

func (s *MarketStore) ensurePool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("market store: nil pool")
	}
	return s.pool, nil
}

func (s *MarketStore) upsertParticipantWith(ctx context.Context, exec execer, p market.Participant) error {
	args := pgx.NamedArgs{
		"account": string(p.Account),
		"role":    string(p.Role),
	}
	if _, err := exec.Exec(ctx, participantUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: upsert participant: %w", err)
	}
	return nil
}

func (s *MarketStore) upsertListingWith(ctx context.Context, exec execer, l market.Listing) error {
	args := pgx.NamedArgs{
		"id":          int64(l.ID),
		"seller":      string(l.Seller),
		"name":        l.Name,
		"description": l.Description,
		"price":       l.Price,
		"stock":       int64(l.Stock),
		"category":    l.Category,
	}
	if _, err := exec.Exec(ctx, listingUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: upsert listing: %w", err)
	}
	return nil
}

func (s *MarketStore) upsertOrderWith(ctx context.Context, exec execer, o market.Order) error {
	args := pgx.NamedArgs{
		"id":           int64(o.ID),
		"buyer":        string(o.Buyer),
		"seller":       string(o.Seller),
		"listing_id":   int64(o.ListingID),
		"quantity":     int64(o.Quantity),
		"total":        o.Total,
		"state":        string(o.State),
		"seller_rated": o.SellerRated,
		"buyer_rated":  o.BuyerRated,
	}
	if _, err := exec.Exec(ctx, orderUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: upsert order: %w", err)
	}
	return nil
}

func (s *MarketStore) putEscrowWith(ctx context.Context, exec execer, e market.EscrowEntry) error {
	args := pgx.NamedArgs{
		"order_id": int64(e.OrderID),
		"amount":   e.Amount,
	}
	if _, err := exec.Exec(ctx, escrowUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: put escrow: %w", err)
	}
	return nil
}

func (s *MarketStore) deleteEscrowWith(ctx context.Context, exec execer, orderID uint64) error {
	args := pgx.NamedArgs{"order_id": int64(orderID)}
	if _, err := exec.Exec(ctx, escrowDeleteSQL, args); err != nil {
		return fmt.Errorf("market store: delete escrow: %w", err)
	}
	return nil
}

func (s *MarketStore) putCancellationWith(ctx context.Context, exec execer, r market.CancellationRequest) error {
	args := pgx.NamedArgs{
		"order_id":  int64(r.OrderID),
		"requester": string(r.Requester),
	}
	if _, err := exec.Exec(ctx, cancellationUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: put cancellation: %w", err)
	}
	return nil
}

func (s *MarketStore) deleteCancellationWith(ctx context.Context, exec execer, orderID uint64) error {
	args := pgx.NamedArgs{"order_id": int64(orderID)}
	if _, err := exec.Exec(ctx, cancellationDeleteSQL, args); err != nil {
		return fmt.Errorf("market store: delete cancellation: %w", err)
	}
	return nil
}

func (s *MarketStore) upsertReputationWith(ctx context.Context, exec execer, rec market.Reputation) error {
	args := pgx.NamedArgs{
		"account":      string(rec.Account),
		"seller_sum":   int64(rec.AsSeller.Sum),
		"seller_count": int64(rec.AsSeller.Count),
		"buyer_sum":    int64(rec.AsBuyer.Sum),
		"buyer_count":  int64(rec.AsBuyer.Count),
	}
	if _, err := exec.Exec(ctx, reputationUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: upsert reputation: %w", err)
	}
	return nil
}

func (s *MarketStore) upsertCategoryStatsWith(ctx context.Context, exec execer, stats market.CategoryStats) error {
	args := pgx.NamedArgs{
		"category":    stats.Category,
		"score_sum":   int64(stats.Sum),
		"score_count": int64(stats.Count),
	}
	if _, err := exec.Exec(ctx, categoryUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: upsert category stats: %w", err)
	}
	return nil
}

func (s *MarketStore) setCountersWith(ctx context.Context, exec execer, nextListingID, nextOrderID uint64) error {
	args := pgx.NamedArgs{
		"next_listing_id": int64(nextListingID),
		"next_order_id":   int64(nextOrderID),
	}
	if _, err := exec.Exec(ctx, countersUpsertSQL, args); err != nil {
		return fmt.Errorf("market store: set counters: %w", err)
	}
	return nil
}

func (s *MarketStore) appendEventWith(ctx context.Context, exec execer, evt ledgerstore.Event) error {
	detail, err := encodeDetail(evt.Detail)
	if err != nil {
		return err
	}
	args := pgx.NamedArgs{
		"id":          evt.ID,
		"op":          evt.Op,
		"actor":       string(evt.Actor),
		"order_id":    nullableID(evt.OrderID),
		"listing_id":  nullableID(evt.ListingID),
		"amount":      evt.Amount,
		"detail":      detail,
		"recorded_at": evt.RecordedAt,
	}
	if _, err := exec.Exec(ctx, eventInsertSQL, args); err != nil {
		return fmt.Errorf("market store: append event: %w", err)
	}
	return nil
}

// UpsertParticipant writes a participant row.
func (s *MarketStore) UpsertParticipant(ctx context.Context, p market.Participant) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.upsertParticipantWith(ctx, pool, p)
}

// UpsertListing writes a listing row.
func (s *MarketStore) UpsertListing(ctx context.Context, l market.Listing) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.upsertListingWith(ctx, pool, l)
}

// UpsertOrder writes an order row.
func (s *MarketStore) UpsertOrder(ctx context.Context, o market.Order) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.upsertOrderWith(ctx, pool, o)
}

// PutEscrow writes an escrow hold row.
func (s *MarketStore) PutEscrow(ctx context.Context, e market.EscrowEntry) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.putEscrowWith(ctx, pool, e)
}

// DeleteEscrow removes the escrow hold for the order.
func (s *MarketStore) DeleteEscrow(ctx context.Context, orderID uint64) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.deleteEscrowWith(ctx, pool, orderID)
}

// PutCancellation writes a pending cancellation request row.
func (s *MarketStore) PutCancellation(ctx context.Context, r market.CancellationRequest) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.putCancellationWith(ctx, pool, r)
}

// DeleteCancellation removes the pending cancellation request for the order.
func (s *MarketStore) DeleteCancellation(ctx context.Context, orderID uint64) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.deleteCancellationWith(ctx, pool, orderID)
}

// UpsertReputation writes a reputation row.
func (s *MarketStore) UpsertReputation(ctx context.Context, rec market.Reputation) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.upsertReputationWith(ctx, pool, rec)
}

// UpsertCategoryStats writes a category aggregate row.
func (s *MarketStore) UpsertCategoryStats(ctx context.Context, stats market.CategoryStats) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.upsertCategoryStatsWith(ctx, pool, stats)
}

// SetCounters writes the id counter row.
func (s *MarketStore) SetCounters(ctx context.Context, nextListingID, nextOrderID uint64) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.setCountersWith(ctx, pool, nextListingID, nextOrderID)
}

// AppendEvent inserts an event journal row.
func (s *MarketStore) AppendEvent(ctx context.Context, evt ledgerstore.Event) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.appendEventWith(ctx, pool, evt)
}

// WithTransaction executes the supplied callback within a database transaction.
func (s *MarketStore) WithTransaction(ctx context.Context, fn func(context.Context, ledgerstore.Tx) error) error {
	if fn == nil {
		return fmt.Errorf("market store: transaction callback required")
	}
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	var txOptions pgx.TxOptions
	txOptions.IsoLevel = pgx.ReadCommitted
	txOptions.AccessMode = pgx.ReadWrite
	txOptions.DeferrableMode = pgx.NotDeferrable

	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return fmt.Errorf("market store: begin tx: %w", err)
	}
	wrapped := &marketTx{tx: tx, store: s}
	runErr := fn(ctx, wrapped)
	if runErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("market store: rollback tx: %w (original error: %v)", rbErr, runErr)
		}
		return runErr
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("market store: commit tx: %w", err)
	}
	return nil
}

// Load reads the full ledger state for engine restoration.
func (s *MarketStore) Load(ctx context.Context) (ledgerstore.State, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return ledgerstore.State{}, err
	}

	var state ledgerstore.State
	state.NextListingID = 1
	state.NextOrderID = 1

	if err := s.loadParticipants(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	if err := s.loadListings(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	if err := s.loadOrders(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	if err := s.loadEscrow(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	if err := s.loadCancellations(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	if err := s.loadReputations(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	if err := s.loadCategories(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	if err := s.loadCounters(ctx, pool, &state); err != nil {
		return ledgerstore.State{}, err
	}
	return state, nil
}

func (s *MarketStore) loadParticipants(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	rows, err := pool.Query(ctx, participantSelectSQL)
	if err != nil {
		return fmt.Errorf("market store: list participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var account, role string
		if err := rows.Scan(&account, &role); err != nil {
			return fmt.Errorf("market store: scan participant: %w", err)
		}
		state.Participants = append(state.Participants, market.Participant{
			Account: market.AccountID(account),
			Role:    market.Role(role),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("market store: iterate participants: %w", err)
	}
	return nil
}

func (s *MarketStore) loadListings(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	rows, err := pool.Query(ctx, listingSelectSQL)
	if err != nil {
		return fmt.Errorf("market store: list listings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          int64
			seller      string
			name        string
			description string
			price       string
			stock       int64
			category    string
		)
		if err := rows.Scan(&id, &seller, &name, &description, &price, &stock, &category); err != nil {
			return fmt.Errorf("market store: scan listing: %w", err)
		}
		parsed, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("market store: parse listing price: %w", err)
		}
		state.Listings = append(state.Listings, market.Listing{
			ID:          uint64(id),
			Seller:      market.AccountID(seller),
			Name:        name,
			Description: description,
			Price:       parsed,
			Stock:       uint32(stock),
			Category:    category,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("market store: iterate listings: %w", err)
	}
	return nil
}

func (s *MarketStore) loadOrders(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	rows, err := pool.Query(ctx, orderSelectSQL)
	if err != nil {
		return fmt.Errorf("market store: list orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          int64
			buyer       string
			seller      string
			listingID   int64
			quantity    int64
			total       string
			orderState  string
			sellerRated bool
			buyerRated  bool
		)
		if err := rows.Scan(&id, &buyer, &seller, &listingID, &quantity, &total, &orderState, &sellerRated, &buyerRated); err != nil {
			return fmt.Errorf("market store: scan order: %w", err)
		}
		parsed, err := decimal.NewFromString(total)
		if err != nil {
			return fmt.Errorf("market store: parse order total: %w", err)
		}
		state.Orders = append(state.Orders, market.Order{
			ID:          uint64(id),
			Buyer:       market.AccountID(buyer),
			Seller:      market.AccountID(seller),
			ListingID:   uint64(listingID),
			Quantity:    uint32(quantity),
			Total:       parsed,
			State:       market.OrderState(orderState),
			SellerRated: sellerRated,
			BuyerRated:  buyerRated,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("market store: iterate orders: %w", err)
	}
	return nil
}

func (s *MarketStore) loadEscrow(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	rows, err := pool.Query(ctx, escrowSelectSQL)
	if err != nil {
		return fmt.Errorf("market store: list escrow holds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			amount  string
		)
		if err := rows.Scan(&orderID, &amount); err != nil {
			return fmt.Errorf("market store: scan escrow hold: %w", err)
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("market store: parse escrow amount: %w", err)
		}
		state.Escrow = append(state.Escrow, market.EscrowEntry{
			OrderID: uint64(orderID),
			Amount:  parsed,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("market store: iterate escrow holds: %w", err)
	}
	return nil
}

func (s *MarketStore) loadCancellations(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	rows, err := pool.Query(ctx, cancellationSelectSQL)
	if err != nil {
		return fmt.Errorf("market store: list cancellation requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID   int64
			requester string
		)
		if err := rows.Scan(&orderID, &requester); err != nil {
			return fmt.Errorf("market store: scan cancellation request: %w", err)
		}
		state.Cancellations = append(state.Cancellations, market.CancellationRequest{
			OrderID:   uint64(orderID),
			Requester: market.AccountID(requester),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("market store: iterate cancellation requests: %w", err)
	}
	return nil
}

func (s *MarketStore) loadReputations(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	rows, err := pool.Query(ctx, reputationSelectSQL)
	if err != nil {
		return fmt.Errorf("market store: list reputations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			account     string
			sellerSum   int64
			sellerCount int64
			buyerSum    int64
			buyerCount  int64
		)
		if err := rows.Scan(&account, &sellerSum, &sellerCount, &buyerSum, &buyerCount); err != nil {
			return fmt.Errorf("market store: scan reputation: %w", err)
		}
		state.Reputations = append(state.Reputations, market.Reputation{
			Account:  market.AccountID(account),
			AsSeller: market.RatingAggregate{Sum: uint64(sellerSum), Count: uint64(sellerCount)},
			AsBuyer:  market.RatingAggregate{Sum: uint64(buyerSum), Count: uint64(buyerCount)},
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("market store: iterate reputations: %w", err)
	}
	return nil
}

func (s *MarketStore) loadCategories(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	rows, err := pool.Query(ctx, categorySelectSQL)
	if err != nil {
		return fmt.Errorf("market store: list category ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category   string
			scoreSum   int64
			scoreCount int64
		)
		if err := rows.Scan(&category, &scoreSum, &scoreCount); err != nil {
			return fmt.Errorf("market store: scan category rating: %w", err)
		}
		state.Categories = append(state.Categories, market.CategoryStats{
			Category:        category,
			RatingAggregate: market.RatingAggregate{Sum: uint64(scoreSum), Count: uint64(scoreCount)},
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("market store: iterate category ratings: %w", err)
	}
	return nil
}

func (s *MarketStore) loadCounters(ctx context.Context, pool *pgxpool.Pool, state *ledgerstore.State) error {
	var nextListingID, nextOrderID int64
	err := pool.QueryRow(ctx, countersSelectSQL).Scan(&nextListingID, &nextOrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("market store: load counters: %w", err)
	}
	state.NextListingID = uint64(nextListingID)
	state.NextOrderID = uint64(nextOrderID)
	return nil
}

func (t *marketTx) UpsertParticipant(ctx context.Context, p market.Participant) error {
	return t.store.upsertParticipantWith(ctx, t.tx, p)
}

func (t *marketTx) UpsertListing(ctx context.Context, l market.Listing) error {
	return t.store.upsertListingWith(ctx, t.tx, l)
}

func (t *marketTx) UpsertOrder(ctx context.Context, o market.Order) error {
	return t.store.upsertOrderWith(ctx, t.tx, o)
}

func (t *marketTx) PutEscrow(ctx context.Context, e market.EscrowEntry) error {
	return t.store.putEscrowWith(ctx, t.tx, e)
}

func (t *marketTx) DeleteEscrow(ctx context.Context, orderID uint64) error {
	return t.store.deleteEscrowWith(ctx, t.tx, orderID)
}

func (t *marketTx) PutCancellation(ctx context.Context, r market.CancellationRequest) error {
	return t.store.putCancellationWith(ctx, t.tx, r)
}

func (t *marketTx) DeleteCancellation(ctx context.Context, orderID uint64) error {
	return t.store.deleteCancellationWith(ctx, t.tx, orderID)
}

func (t *marketTx) UpsertReputation(ctx context.Context, rec market.Reputation) error {
	return t.store.upsertReputationWith(ctx, t.tx, rec)
}

func (t *marketTx) UpsertCategoryStats(ctx context.Context, stats market.CategoryStats) error {
	return t.store.upsertCategoryStatsWith(ctx, t.tx, stats)
}

func (t *marketTx) SetCounters(ctx context.Context, nextListingID, nextOrderID uint64) error {
	return t.store.setCountersWith(ctx, t.tx, nextListingID, nextOrderID)
}

func (t *marketTx) AppendEvent(ctx context.Context, evt ledgerstore.Event) error {
	return t.store.appendEventWith(ctx, t.tx, evt)
}

func encodeDetail(detail map[string]any) ([]byte, error) {
	if len(detail) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("market store: encode event detail: %w", err)
	}
	return data, nil
}

func nullableID(id uint64) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}

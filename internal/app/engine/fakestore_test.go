package engine_test

import (
	"context"
	"errors"

	"github.com/agoralabs/agora/internal/domain/ledgerstore"
	"github.com/agoralabs/agora/internal/domain/market"
)

// fakeStore is an in-memory ledgerstore.Store used to exercise the
// write-behind recorder and engine restoration without a database.
type fakeStore struct {
	participants  map[market.AccountID]market.Participant
	partOrder     []market.AccountID
	listings      map[uint64]market.Listing
	orders        map[uint64]market.Order
	escrow        map[uint64]market.EscrowEntry
	cancellations map[uint64]market.CancellationRequest
	reputations   map[market.AccountID]market.Reputation
	repOrder      []market.AccountID
	categories    map[string]market.CategoryStats
	catOrder      []string
	nextListingID uint64
	nextOrderID   uint64
	events        []ledgerstore.Event

	failWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants:  make(map[market.AccountID]market.Participant),
		listings:      make(map[uint64]market.Listing),
		orders:        make(map[uint64]market.Order),
		escrow:        make(map[uint64]market.EscrowEntry),
		cancellations: make(map[uint64]market.CancellationRequest),
		reputations:   make(map[market.AccountID]market.Reputation),
		categories:    make(map[string]market.CategoryStats),
		nextListingID: 1,
		nextOrderID:   1,
	}
}

func (s *fakeStore) UpsertParticipant(_ context.Context, p market.Participant) error {
	if _, ok := s.participants[p.Account]; !ok {
		s.partOrder = append(s.partOrder, p.Account)
	}
	s.participants[p.Account] = p
	return nil
}

func (s *fakeStore) UpsertListing(_ context.Context, l market.Listing) error {
	s.listings[l.ID] = l
	return nil
}

func (s *fakeStore) UpsertOrder(_ context.Context, o market.Order) error {
	s.orders[o.ID] = o
	return nil
}

func (s *fakeStore) PutEscrow(_ context.Context, e market.EscrowEntry) error {
	s.escrow[e.OrderID] = e
	return nil
}

func (s *fakeStore) DeleteEscrow(_ context.Context, orderID uint64) error {
	delete(s.escrow, orderID)
	return nil
}

func (s *fakeStore) PutCancellation(_ context.Context, r market.CancellationRequest) error {
	s.cancellations[r.OrderID] = r
	return nil
}

func (s *fakeStore) DeleteCancellation(_ context.Context, orderID uint64) error {
	delete(s.cancellations, orderID)
	return nil
}

func (s *fakeStore) UpsertReputation(_ context.Context, rec market.Reputation) error {
	if _, ok := s.reputations[rec.Account]; !ok {
		s.repOrder = append(s.repOrder, rec.Account)
	}
	s.reputations[rec.Account] = rec
	return nil
}

func (s *fakeStore) UpsertCategoryStats(_ context.Context, stats market.CategoryStats) error {
	if _, ok := s.categories[stats.Category]; !ok {
		s.catOrder = append(s.catOrder, stats.Category)
	}
	s.categories[stats.Category] = stats
	return nil
}

func (s *fakeStore) SetCounters(_ context.Context, nextListingID, nextOrderID uint64) error {
	s.nextListingID = nextListingID
	s.nextOrderID = nextOrderID
	return nil
}

func (s *fakeStore) AppendEvent(_ context.Context, evt ledgerstore.Event) error {
	s.events = append(s.events, evt)
	return nil
}

func (s *fakeStore) WithTransaction(ctx context.Context, fn func(context.Context, ledgerstore.Tx) error) error {
	if s.failWrites {
		return errors.New("fake store: writes disabled")
	}
	return fn(ctx, s)
}

func (s *fakeStore) Load(_ context.Context) (ledgerstore.State, error) {
	state := ledgerstore.State{
		NextListingID: s.nextListingID,
		NextOrderID:   s.nextOrderID,
	}
	for _, account := range s.partOrder {
		state.Participants = append(state.Participants, s.participants[account])
	}
	for _, l := range s.listings {
		state.Listings = append(state.Listings, l)
	}
	for _, o := range s.orders {
		state.Orders = append(state.Orders, o)
	}
	for _, e := range s.escrow {
		state.Escrow = append(state.Escrow, e)
	}
	for _, r := range s.cancellations {
		state.Cancellations = append(state.Cancellations, r)
	}
	for _, account := range s.repOrder {
		state.Reputations = append(state.Reputations, s.reputations[account])
	}
	for _, category := range s.catOrder {
		state.Categories = append(state.Categories, s.categories[category])
	}
	return state, nil
}

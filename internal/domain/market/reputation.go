package market

import (
	"sync"

	"github.com/agoralabs/agora/internal/errs"
)

// ReputationStore accumulates ratings per participant and per listing
// category. Accumulators only ever grow; they are never decremented or
// reset.
type ReputationStore struct {
	mu         sync.RWMutex
	records    map[AccountID]Reputation
	order      []AccountID
	categories map[string]RatingAggregate
	catOrder   []string
}

// NewReputationStore constructs an empty reputation store.
func NewReputationStore() *ReputationStore {
	s := new(ReputationStore)
	s.records = make(map[AccountID]Reputation)
	s.categories = make(map[string]RatingAggregate)
	return s
}

// AddSellerScore folds score into the seller's aggregate and into the
// category aggregate in one unit: both adds are overflow-checked before
// either is applied, so a failure mutates nothing.
func (s *ReputationStore) AddSellerScore(seller AccountID, score uint8, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(seller)
	asSeller, ok := rec.AsSeller.add(score)
	if !ok {
		return errs.New("reputation/add-seller", errs.CodeArithmeticOverflow,
			errs.WithMessage("seller rating accumulator would overflow"))
	}
	catAgg, ok := s.categories[category].add(score)
	if !ok {
		return errs.New("reputation/add-seller", errs.CodeArithmeticOverflow,
			errs.WithMessage("category rating accumulator would overflow"))
	}

	rec.AsSeller = asSeller
	s.putLocked(rec)
	if _, seen := s.categories[category]; !seen {
		s.catOrder = append(s.catOrder, category)
	}
	s.categories[category] = catAgg
	return nil
}

// AddBuyerScore folds score into the buyer's aggregate.
func (s *ReputationStore) AddBuyerScore(buyer AccountID, score uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(buyer)
	asBuyer, ok := rec.AsBuyer.add(score)
	if !ok {
		return errs.New("reputation/add-buyer", errs.CodeArithmeticOverflow,
			errs.WithMessage("buyer rating accumulator would overflow"))
	}
	rec.AsBuyer = asBuyer
	s.putLocked(rec)
	return nil
}

// Reputation returns the participant's record. A participant that was
// never rated yields a zero-valued record with ok=false.
func (s *ReputationStore) Reputation(account AccountID) (Reputation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[account]
	if !ok {
		return Reputation{Account: account}, false
	}
	return rec, true
}

// Reputations returns a snapshot of all records in first-rating order.
func (s *ReputationStore) Reputations() []Reputation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reputation, 0, len(s.order))
	for _, account := range s.order {
		out = append(out, s.records[account])
	}
	return out
}

// CategoryStats returns the (sum, count) aggregate for a category; ok is
// false when the category has no ratings yet.
func (s *ReputationStore) CategoryStats(category string) (RatingAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.categories[category]
	return agg, ok
}

// Categories returns a snapshot of all category aggregates in first-rating
// order.
func (s *ReputationStore) Categories() []CategoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CategoryStats, 0, len(s.catOrder))
	for _, category := range s.catOrder {
		out = append(out, CategoryStats{Category: category, RatingAggregate: s.categories[category]})
	}
	return out
}

func (s *ReputationStore) recordLocked(account AccountID) Reputation {
	rec, ok := s.records[account]
	if !ok {
		rec = Reputation{Account: account}
	}
	return rec
}

func (s *ReputationStore) putLocked(rec Reputation) {
	if _, ok := s.records[rec.Account]; !ok {
		s.order = append(s.order, rec.Account)
	}
	s.records[rec.Account] = rec
}

// Restore reinstalls a persisted reputation record. Used only while
// loading durable state.
func (s *ReputationStore) Restore(rec Reputation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(rec)
}

// RestoreCategory reinstalls a persisted category aggregate. Used only
// while loading durable state.
func (s *ReputationStore) RestoreCategory(stats CategoryStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[stats.Category]; !ok {
		s.catOrder = append(s.catOrder, stats.Category)
	}
	s.categories[stats.Category] = stats.RatingAggregate
}

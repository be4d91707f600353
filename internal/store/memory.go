package store

import (
	"context"
	"sync"
)

type MemoryAuctionStore struct {
	mu      sync.RWMutex
	records []AuctionRecord
	byID    map[string]int
}

func NewMemoryAuctionStore() *MemoryAuctionStore {
	return &MemoryAuctionStore{byID: map[string]int{}}
}

func (s *MemoryAuctionStore) Save(ctx context.Context, rec AuctionRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[rec.AuctionID]; ok {
		s.records[i] = rec
		return nil
	}
	s.byID[rec.AuctionID] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryAuctionStore) Get(ctx context.Context, auctionID string) (*AuctionRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[auctionID]
	if !ok {
		return nil, nil
	}
	out := s.records[i]
	return &out, nil
}

// Recent returns up to limit records, newest first
func (s *MemoryAuctionStore) Recent(ctx context.Context, limit int) ([]AuctionRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuctionRecord, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

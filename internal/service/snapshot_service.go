package service

import (
	"sort"
	"sync"

	"tradebot/internal/domain"
)

// SnapshotService holds the latest market snapshot of every monitored market.
// Monitors of different exchanges write to it concurrently.
type SnapshotService struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.MarketSnapshot
}

// NewSnapshotService creates an empty SnapshotService
func NewSnapshotService() *SnapshotService {
	return &SnapshotService{
		snapshots: make(map[string]*domain.MarketSnapshot),
	}
}

// GetAllData returns all snapshots sorted by exchange then market
func (s *SnapshotService) GetAllData() []*domain.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.MarketSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		result = append(result, snap)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key() < result[j].Key()
	})

	return result
}

// GetData returns the snapshot for one market, or nil.
func (s *SnapshotService) GetData(exchange, marketID string) *domain.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshots[exchange+"/"+marketID]
}

// Process stores snapshots, replacing older ones for the same market.
// Stored snapshots are never mutated afterwards, so readers may keep them.
func (s *SnapshotService) Process(snaps ...*domain.MarketSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		if prev, ok := s.snapshots[snap.Key()]; ok && prev.UpdatedAt.After(snap.UpdatedAt) {
			continue
		}
		s.snapshots[snap.Key()] = snap
	}
}

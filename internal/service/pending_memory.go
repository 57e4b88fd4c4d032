package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"Showtimes_Sync/internal/model"
)

// MemoryPendingSet 进程内的待重推集合，重启即丢失；用于测试和一次性的命令行工具
type MemoryPendingSet struct {
	mu      sync.Mutex
	entries map[uint64]model.ResyncEntry
	now     func() time.Time
}

func NewMemoryPendingSet() *MemoryPendingSet {
	return &MemoryPendingSet{entries: map[uint64]model.ResyncEntry{}, now: time.Now}
}

func (m *MemoryPendingSet) Mark(_ context.Context, communityID uint64, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[communityID]; ok {
		return nil
	}
	entry := model.ResyncEntry{CommunityID: communityID, FirstFailure: m.now().UTC()}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	m.entries[communityID] = entry
	return nil
}

func (m *MemoryPendingSet) Update(_ context.Context, entry model.ResyncEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.CommunityID]; !ok {
		return nil
	}
	m.entries[entry.CommunityID] = entry
	return nil
}

func (m *MemoryPendingSet) Remove(_ context.Context, communityID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, communityID)
	return nil
}

func (m *MemoryPendingSet) Contains(_ context.Context, communityID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[communityID]
	return ok, nil
}

func (m *MemoryPendingSet) Entries(_ context.Context) ([]model.ResyncEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ResyncEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommunityID < out[j].CommunityID })
	return out, nil
}

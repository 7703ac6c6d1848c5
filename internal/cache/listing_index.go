package cache

import (
	"context"
	"sync"

	"dropsync-api/internal/domain"
)

// ListingIndex caches per-account SKU -> marketplace listing mappings.
// Entries are created lazily on first successful resolution and evicted when
// a previously-resolved SKU stops matching a live listing.
type ListingIndex interface {
	// Get returns the cached entry or nil on a miss.
	Get(ctx context.Context, accountID int64, sku string) (*domain.ListingEntry, error)
	Put(ctx context.Context, accountID int64, sku string, entry domain.ListingEntry) error
	// PutAll replaces or extends the account's index in one shot, used
	// after a full listing refresh.
	PutAll(ctx context.Context, accountID int64, entries map[string]domain.ListingEntry) error
	Evict(ctx context.Context, accountID int64, sku string) error
	// Size returns the number of cached SKUs for the account.
	Size(ctx context.Context, accountID int64) (int64, error)
}

// MemoryListingIndex is the in-process fallback used when Redis is
// unavailable. Per-account maps mean no lock contention across accounts
// beyond the outer map.
type MemoryListingIndex struct {
	mu       sync.RWMutex
	accounts map[int64]map[string]domain.ListingEntry
}

// NewMemoryListingIndex creates an empty in-memory index.
func NewMemoryListingIndex() *MemoryListingIndex {
	return &MemoryListingIndex{
		accounts: make(map[int64]map[string]domain.ListingEntry),
	}
}

func (m *MemoryListingIndex) Get(_ context.Context, accountID int64, sku string) (*domain.ListingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.accounts[accountID][sku]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *MemoryListingIndex) Put(_ context.Context, accountID int64, sku string, entry domain.ListingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accounts[accountID] == nil {
		m.accounts[accountID] = make(map[string]domain.ListingEntry)
	}
	m.accounts[accountID][sku] = entry
	return nil
}

func (m *MemoryListingIndex) PutAll(_ context.Context, accountID int64, entries map[string]domain.ListingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accounts[accountID] == nil {
		m.accounts[accountID] = make(map[string]domain.ListingEntry, len(entries))
	}
	for sku, entry := range entries {
		m.accounts[accountID][sku] = entry
	}
	return nil
}

func (m *MemoryListingIndex) Evict(_ context.Context, accountID int64, sku string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accounts[accountID], sku)
	return nil
}

func (m *MemoryListingIndex) Size(_ context.Context, accountID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.accounts[accountID])), nil
}

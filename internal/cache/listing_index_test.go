package cache

import (
	"context"
	"testing"
	"time"

	"dropsync-api/internal/domain"
)

func TestMemoryListingIndex_PutGetEvict(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryListingIndex()

	entry, err := idx.Get(ctx, 1, "A1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if entry != nil {
		t.Fatal("expected miss on empty index")
	}

	put := domain.ListingEntry{ItemID: "1001", LastPushed: 3, RefreshedAt: time.Now()}
	if err := idx.Put(ctx, 1, "A1", put); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, err = idx.Get(ctx, 1, "A1")
	if err != nil || entry == nil {
		t.Fatalf("expected hit, got entry=%v err=%v", entry, err)
	}
	if entry.ItemID != "1001" || entry.LastPushed != 3 {
		t.Errorf("unexpected entry: %+v", entry)
	}

	// Accounts are isolated.
	other, _ := idx.Get(ctx, 2, "A1")
	if other != nil {
		t.Error("expected miss for other account")
	}

	if err := idx.Evict(ctx, 1, "A1"); err != nil {
		t.Fatalf("evict: %v", err)
	}
	entry, _ = idx.Get(ctx, 1, "A1")
	if entry != nil {
		t.Error("expected miss after evict")
	}
}

func TestMemoryListingIndex_PutAllAndSize(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryListingIndex()

	entries := map[string]domain.ListingEntry{
		"A1": {ItemID: "1"},
		"A2": {ItemID: "2"},
		"A3": {ItemID: "3"},
	}
	if err := idx.PutAll(ctx, 7, entries); err != nil {
		t.Fatalf("putall: %v", err)
	}

	n, err := idx.Size(ctx, 7)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if n != 3 {
		t.Errorf("expected size 3, got %d", n)
	}

	entry, _ := idx.Get(ctx, 7, "A2")
	if entry == nil || entry.ItemID != "2" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

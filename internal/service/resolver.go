package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"dropsync-api/internal/cache"
	"dropsync-api/internal/domain"
)

// Resolution pairs a normalized stock record with its marketplace listing.
// Found is false when the marketplace has no listing for the SKU, which is
// an expected, non-fatal outcome.
type Resolution struct {
	Record     domain.StockRecord
	ItemID     string
	CurrentQty int
	Found      bool
}

// Resolver maps SKUs to marketplace listing IDs through the per-account
// ListingIndex. A cache miss triggers one full listing refresh per run;
// SKUs still unmatched after the refresh are NotFound, and cached entries
// that no longer match a live listing are evicted as stale.
type Resolver struct {
	index cache.ListingIndex
	log   *logrus.Logger
}

// NewResolver creates a resolver over the given listing index.
func NewResolver(index cache.ListingIndex, log *logrus.Logger) *Resolver {
	return &Resolver{index: index, log: log}
}

// fetchListings loads the account's live listings; provided by the
// orchestrator so the resolver stays free of credentials.
type fetchListingsFunc func(ctx context.Context) ([]domain.Listing, error)

// ResolveAll resolves every record for one account. It returns an error
// only when a needed listing refresh fails entirely; individual misses are
// reported per record.
func (r *Resolver) ResolveAll(ctx context.Context, accountID int64, records []domain.StockRecord, fetch fetchListingsFunc) ([]Resolution, error) {
	cached := make(map[string]*domain.ListingEntry, len(records))
	misses := 0
	for _, rec := range records {
		entry, err := r.index.Get(ctx, accountID, rec.SKU)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			misses++
		}
		cached[rec.SKU] = entry
	}

	// Every SKU cached: trust the index, no marketplace round trip.
	if misses == 0 {
		resolutions := make([]Resolution, len(records))
		for i, rec := range records {
			entry := cached[rec.SKU]
			resolutions[i] = Resolution{
				Record:     rec,
				ItemID:     entry.ItemID,
				CurrentQty: entry.LastPushed,
				Found:      true,
			}
		}
		return resolutions, nil
	}

	// At least one miss: refresh the index from the live listing set and
	// resolve everything against it. The live set is authoritative, so a
	// cached SKU absent from it is stale and gets evicted.
	listings, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"component": "resolver",
		"account":   accountID,
		"misses":    misses,
		"listings":  len(listings),
	}).Info("refreshed listing index")

	now := time.Now().UTC()
	live := make(map[string]domain.Listing, len(listings))
	entries := make(map[string]domain.ListingEntry, len(listings))
	for _, l := range listings {
		live[l.SKU] = l
		entries[l.SKU] = domain.ListingEntry{
			ItemID:      l.ItemID,
			LastPushed:  l.Quantity,
			RefreshedAt: now,
		}
	}
	if err := r.index.PutAll(ctx, accountID, entries); err != nil {
		return nil, err
	}

	resolutions := make([]Resolution, len(records))
	for i, rec := range records {
		listing, ok := live[rec.SKU]
		if !ok {
			if cached[rec.SKU] != nil {
				if err := r.index.Evict(ctx, accountID, rec.SKU); err != nil {
					return nil, err
				}
			}
			resolutions[i] = Resolution{Record: rec}
			continue
		}
		resolutions[i] = Resolution{
			Record:     rec,
			ItemID:     listing.ItemID,
			CurrentQty: listing.Quantity,
			Found:      true,
		}
	}
	return resolutions, nil
}

// RecordPush updates the cached last-pushed quantity after a successful
// marketplace write.
func (r *Resolver) RecordPush(ctx context.Context, accountID int64, sku, itemID string, qty int) error {
	return r.index.Put(ctx, accountID, sku, domain.ListingEntry{
		ItemID:      itemID,
		LastPushed:  qty,
		RefreshedAt: time.Now().UTC(),
	})
}

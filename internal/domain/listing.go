package domain

import "time"

// Listing is one active marketplace listing as reported by the seller API.
type Listing struct {
	ItemID   string
	SKU      string
	Quantity int // quantity available (total minus sold)
}

// ListingEntry is a cached SKU -> listing mapping for one account, plus the
// last quantity pushed for it. Owned exclusively by the engine.
type ListingEntry struct {
	ItemID      string    `json:"item_id"`
	LastPushed  int       `json:"last_pushed"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// QuantityUpdate is one pending marketplace write.
type QuantityUpdate struct {
	ItemID string
	SKU    string
	OldQty int
	NewQty int
}

// UpdateOutcome is the per-SKU result of a marketplace update call.
type UpdateOutcome struct {
	SKU     string
	ItemID  string
	Updated bool
	Reason  string // populated when Updated is false
}

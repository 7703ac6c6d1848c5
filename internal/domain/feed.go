package domain

import "time"

// FeedFormat selects the parser strategy for a supplier feed.
type FeedFormat string

const (
	FormatAzureGreen FeedFormat = "azuregreen"
	FormatDiecast    FeedFormat = "diecast"
	FormatCustom     FeedFormat = "custom"
)

// Feed is a supplier data source: a CSV export reachable over HTTP.
type Feed struct {
	ID        int64
	AccountID int64
	Name      string
	URL       string
	Format    FeedFormat

	// Column mapping, custom format only.
	SKUColumn      string
	QuantityColumn string

	IsActive      bool
	TotalSKUs     int
	LastFetchedAt *time.Time
	CreatedAt     time.Time
}

// StockRecord is one normalized supplier row: SKU plus non-negative quantity.
type StockRecord struct {
	SKU      string
	Quantity int
}

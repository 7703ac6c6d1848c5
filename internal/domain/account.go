package domain

import "time"

// SyncFrequency controls when the scheduler triggers an account.
type SyncFrequency string

const (
	FrequencyManual SyncFrequency = "manual"
	FrequencyHourly SyncFrequency = "hourly"
	FrequencyDaily  SyncFrequency = "daily"
)

// QuantityMode is the per-account transform applied to supplier quantities.
type QuantityMode string

const (
	// QuantityModeExact pushes supplier quantities as-is.
	QuantityModeExact QuantityMode = "exact"
	// QuantityModeBinary collapses any positive quantity to 1.
	QuantityModeBinary QuantityMode = "binary"
)

// Credentials is the marketplace credential bundle. The engine never
// interprets it beyond handing it to the marketplace client.
type Credentials struct {
	AppID     string
	DevID     string
	CertID    string
	UserToken string
}

// Account is a connected marketplace seller account.
type Account struct {
	ID            int64
	StoreName     string
	Credentials   Credentials
	SyncEnabled   bool
	SyncFrequency SyncFrequency
	SyncTime      string // "HH:MM", daily frequency only
	QuantityMode  QuantityMode
	LastSyncAt    *time.Time
	CreatedAt     time.Time
}

package feed

import "dropsync-api/internal/domain"

// Transform applies the account's quantity policy to normalized records.
// Pure and idempotent: binary mode collapses any positive quantity to 1,
// exact mode passes quantities through unchanged.
func Transform(records []domain.StockRecord, mode domain.QuantityMode) []domain.StockRecord {
	if mode != domain.QuantityModeBinary {
		return records
	}

	out := make([]domain.StockRecord, len(records))
	for i, rec := range records {
		qty := 0
		if rec.Quantity > 0 {
			qty = 1
		}
		out[i] = domain.StockRecord{SKU: rec.SKU, Quantity: qty}
	}
	return out
}

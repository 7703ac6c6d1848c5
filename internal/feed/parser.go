package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dropsync-api/internal/domain"
)

// Default column names for custom feeds without an explicit mapping.
const (
	defaultSKUColumn      = "NUMBER"
	defaultQuantityColumn = "UNITS"
)

// ParseResult is the normalized output shared by every feed format.
type ParseResult struct {
	// Records is ordered by first appearance and deduplicated by SKU.
	// On duplicate rows the last occurrence wins.
	Records []domain.StockRecord
	// Malformed counts rows skipped for an empty SKU or unparseable
	// quantity. These are charged to the run's failed tally.
	Malformed int
}

// Parser normalizes one supplier feed format into (sku, quantity) records.
type Parser interface {
	Parse(r io.Reader) (*ParseResult, error)
}

// ParserFor selects the parser strategy from the feed's format tag.
func ParserFor(f domain.Feed) (Parser, error) {
	switch f.Format {
	case domain.FormatAzureGreen:
		return azureGreenParser{}, nil
	case domain.FormatDiecast:
		return diecastParser{}, nil
	case domain.FormatCustom:
		skuCol := f.SKUColumn
		if skuCol == "" {
			skuCol = defaultSKUColumn
		}
		qtyCol := f.QuantityColumn
		if qtyCol == "" {
			qtyCol = defaultQuantityColumn
		}
		return customParser{skuCol: skuCol, qtyCol: qtyCol}, nil
	default:
		return nil, &domain.SchemaError{Err: fmt.Errorf("unknown feed format %q", f.Format)}
	}
}

// azureGreenParser handles the AzureGreen distributor export:
// NUMBER is the SKU, UNITS the stock count, CANTSELL a blocking flag.
type azureGreenParser struct{}

func (azureGreenParser) Parse(r io.Reader) (*ParseResult, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	skuIdx, ok := header["NUMBER"]
	if !ok {
		return nil, &domain.SchemaError{Column: "NUMBER"}
	}
	qtyIdx, ok := header["UNITS"]
	if !ok {
		return nil, &domain.SchemaError{Column: "UNITS"}
	}
	cantSellIdx, hasCantSell := header["CANTSELL"]

	res := newResultBuilder()
	for _, row := range rows {
		sku := strings.TrimSpace(field(row, skuIdx))
		if sku == "" {
			res.malformed++
			continue
		}

		qty, err := parseQuantity(field(row, qtyIdx))
		if err != nil {
			res.malformed++
			continue
		}

		// A set CANTSELL flag zeroes the quantity regardless of stock.
		if hasCantSell && strings.TrimSpace(field(row, cantSellIdx)) == "1" {
			qty = 0
		}

		res.add(sku, qty)
	}

	return res.done(), nil
}

// diecastParser handles the Diecast Models export, where availability is a
// textual flag ("Product Visible") rather than a stock count.
type diecastParser struct{}

func (diecastParser) Parse(r io.Reader) (*ParseResult, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	skuIdx, ok := header["Product ID"]
	if !ok {
		return nil, &domain.SchemaError{Column: "Product ID"}
	}
	visIdx, ok := header["Product Visible"]
	if !ok {
		return nil, &domain.SchemaError{Column: "Product Visible"}
	}

	res := newResultBuilder()
	for _, row := range rows {
		sku := strings.TrimSpace(field(row, skuIdx))
		if sku == "" {
			res.malformed++
			continue
		}

		raw := strings.TrimSpace(field(row, visIdx))
		qty, err := parseQuantity(raw)
		if err != nil {
			// Textual availability markers map to in-stock.
			switch strings.ToLower(raw) {
			case "yes", "true", "available":
				qty = 1
			default:
				qty = 0
			}
		}
		if qty > 0 {
			qty = 1
		}

		res.add(sku, qty)
	}

	return res.done(), nil
}

// customParser handles delimited feeds with user-supplied column names.
type customParser struct {
	skuCol string
	qtyCol string
}

func (p customParser) Parse(r io.Reader) (*ParseResult, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	skuIdx, ok := header[p.skuCol]
	if !ok {
		return nil, &domain.SchemaError{Column: p.skuCol}
	}
	qtyIdx, ok := header[p.qtyCol]
	if !ok {
		return nil, &domain.SchemaError{Column: p.qtyCol}
	}

	res := newResultBuilder()
	for _, row := range rows {
		sku := strings.TrimSpace(field(row, skuIdx))
		if sku == "" {
			res.malformed++
			continue
		}

		qty, err := parseQuantity(field(row, qtyIdx))
		if err != nil {
			res.malformed++
			continue
		}

		res.add(sku, qty)
	}

	return res.done(), nil
}

// readCSV reads the header row into a name->index map plus the data rows.
func readCSV(r io.Reader) (map[string]int, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // tolerate ragged rows
	cr.TrimLeadingSpace = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, &domain.SchemaError{Err: err}
	}
	if len(all) == 0 {
		return nil, nil, &domain.SchemaError{Err: fmt.Errorf("missing header row")}
	}

	header := make(map[string]int, len(all[0]))
	for i, name := range all[0] {
		header[strings.TrimSpace(name)] = i
	}

	return header, all[1:], nil
}

// field returns the column at idx or "" when the row is too short.
func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseQuantity accepts integers and float-formatted integers ("12.0").
// Negative values clamp to zero: supplier exports occasionally carry
// oversell corrections the marketplace cannot represent.
func parseQuantity(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric quantity %q", raw)
	}

	qty := int(f)
	if qty < 0 {
		qty = 0
	}
	return qty, nil
}

// resultBuilder accumulates records with last-occurrence-wins dedup while
// preserving first-appearance order.
type resultBuilder struct {
	order      []string
	quantities map[string]int
	malformed  int
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{quantities: make(map[string]int)}
}

func (b *resultBuilder) add(sku string, qty int) {
	if _, seen := b.quantities[sku]; !seen {
		b.order = append(b.order, sku)
	}
	b.quantities[sku] = qty
}

func (b *resultBuilder) done() *ParseResult {
	records := make([]domain.StockRecord, 0, len(b.order))
	for _, sku := range b.order {
		records = append(records, domain.StockRecord{SKU: sku, Quantity: b.quantities[sku]})
	}
	return &ParseResult{Records: records, Malformed: b.malformed}
}

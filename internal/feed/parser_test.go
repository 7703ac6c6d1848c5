package feed

import (
	"errors"
	"strings"
	"testing"

	"dropsync-api/internal/domain"
)

func TestParserFor_UnknownFormat(t *testing.T) {
	_, err := ParserFor(domain.Feed{Format: "xml-dump"})
	if err == nil {
		t.Fatal("expected error for unknown format, got nil")
	}
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Errorf("expected SchemaError, got %T", err)
	}
}

func TestAzureGreen_ParsesAndHonorsCantSell(t *testing.T) {
	body := `NUMBER,UNITS,CANTSELL
AG-100,12,0
AG-101,5,1
AG-102,0,0
,3,0
AG-103,abc,0
`
	p, err := ParserFor(domain.Feed{Format: domain.FormatAzureGreen})
	if err != nil {
		t.Fatalf("expected parser, got %v", err)
	}

	res, err := p.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := map[string]int{"AG-100": 12, "AG-101": 0, "AG-102": 0}
	if len(res.Records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(res.Records))
	}
	for _, rec := range res.Records {
		if want[rec.SKU] != rec.Quantity {
			t.Errorf("sku %s: expected qty %d, got %d", rec.SKU, want[rec.SKU], rec.Quantity)
		}
	}
	// Empty SKU row and non-numeric quantity row are malformed.
	if res.Malformed != 2 {
		t.Errorf("expected 2 malformed rows, got %d", res.Malformed)
	}
}

func TestAzureGreen_FloatQuantities(t *testing.T) {
	body := "NUMBER,UNITS\nAG-1,12.0\nAG-2,-3\n"

	p, _ := ParserFor(domain.Feed{Format: domain.FormatAzureGreen})
	res, err := p.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if res.Records[0].Quantity != 12 {
		t.Errorf("expected 12.0 to parse as 12, got %d", res.Records[0].Quantity)
	}
	if res.Records[1].Quantity != 0 {
		t.Errorf("expected negative quantity clamped to 0, got %d", res.Records[1].Quantity)
	}
}

func TestDiecast_TextualAvailability(t *testing.T) {
	body := `Product ID,Product Visible
DC-1,yes
DC-2,Available
DC-3,no
DC-4,1
DC-5,7
`
	p, _ := ParserFor(domain.Feed{Format: domain.FormatDiecast})
	res, err := p.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := map[string]int{"DC-1": 1, "DC-2": 1, "DC-3": 0, "DC-4": 1, "DC-5": 1}
	for _, rec := range res.Records {
		if want[rec.SKU] != rec.Quantity {
			t.Errorf("sku %s: expected qty %d, got %d", rec.SKU, want[rec.SKU], rec.Quantity)
		}
	}
}

func TestCustom_MissingColumnFails(t *testing.T) {
	body := "SKU,Stock\nA1,5\n"

	p, _ := ParserFor(domain.Feed{
		Format:         domain.FormatCustom,
		SKUColumn:      "SKU",
		QuantityColumn: "Qty",
	})

	_, err := p.Parse(strings.NewReader(body))
	if err == nil {
		t.Fatal("expected SchemaError for missing column, got nil")
	}
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %T", err)
	}
	if se.Column != "Qty" {
		t.Errorf("expected missing column Qty, got %q", se.Column)
	}
}

func TestCustom_DuplicateSKULastWins(t *testing.T) {
	body := "SKU,Qty\nA1,5\nA2,0\nA1,3\n"

	p, _ := ParserFor(domain.Feed{
		Format:         domain.FormatCustom,
		SKUColumn:      "SKU",
		QuantityColumn: "Qty",
	})

	res, err := p.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(res.Records) != 2 {
		t.Fatalf("expected 2 deduplicated records, got %d", len(res.Records))
	}
	if res.Records[0].SKU != "A1" || res.Records[0].Quantity != 3 {
		t.Errorf("expected A1 last occurrence qty 3, got %s=%d", res.Records[0].SKU, res.Records[0].Quantity)
	}
	if res.Records[1].SKU != "A2" || res.Records[1].Quantity != 0 {
		t.Errorf("expected A2 qty 0, got %s=%d", res.Records[1].SKU, res.Records[1].Quantity)
	}
}

func TestCustom_DefaultColumns(t *testing.T) {
	body := "NUMBER,UNITS\nX1,4\n"

	p, _ := ParserFor(domain.Feed{Format: domain.FormatCustom})
	res, err := p.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("expected default NUMBER/UNITS mapping to work, got %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Quantity != 4 {
		t.Errorf("unexpected records: %+v", res.Records)
	}
}

func TestParse_EmptyBody(t *testing.T) {
	p, _ := ParserFor(domain.Feed{Format: domain.FormatAzureGreen})
	_, err := p.Parse(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for empty feed, got nil")
	}
}

package feed

import (
	"testing"

	"dropsync-api/internal/domain"
)

func TestTransform_Exact(t *testing.T) {
	in := []domain.StockRecord{{SKU: "A", Quantity: 7}, {SKU: "B", Quantity: 0}}

	out := Transform(in, domain.QuantityModeExact)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("exact mode changed record %d: %+v -> %+v", i, in[i], out[i])
		}
	}
}

func TestTransform_Binary(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"positive collapses to one", 7, 1},
		{"one stays one", 1, 1},
		{"zero stays zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Transform([]domain.StockRecord{{SKU: "X", Quantity: tt.in}}, domain.QuantityModeBinary)
			if out[0].Quantity != tt.want {
				t.Errorf("expected %d, got %d", tt.want, out[0].Quantity)
			}
		})
	}
}

func TestTransform_BinaryIdempotent(t *testing.T) {
	in := []domain.StockRecord{
		{SKU: "A", Quantity: 42},
		{SKU: "B", Quantity: 1},
		{SKU: "C", Quantity: 0},
	}

	once := Transform(in, domain.QuantityModeBinary)
	twice := Transform(once, domain.QuantityModeBinary)

	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("binary transform not idempotent at %d: %+v vs %+v", i, once[i], twice[i])
		}
		if once[i].Quantity != 0 && once[i].Quantity != 1 {
			t.Errorf("binary output outside {0,1}: %+v", once[i])
		}
	}
}

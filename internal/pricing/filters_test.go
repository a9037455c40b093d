package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinktrader/internal/domain"
)

func TestRoundToStep(t *testing.T) {
	filters := domain.SymbolFilters{MinQty: 0.01, MaxQty: 1000, StepSize: 0.01}

	tests := []struct {
		name    string
		qty     float64
		filters domain.SymbolFilters
		want    float64
		wantErr bool
	}{
		{name: "exact multiple unchanged", qty: 1.25, filters: filters, want: 1.25},
		{name: "rounds down to step", qty: 1.2599, filters: filters, want: 1.25},
		{name: "rounds down not up", qty: 0.019, filters: filters, want: 0.01},
		{name: "minimum quantity accepted", qty: 0.01, filters: filters, want: 0.01},
		{name: "below minimum rejected", qty: 0.009, filters: filters, wantErr: true},
		{name: "above maximum rejected", qty: 1000.02, filters: filters, wantErr: true},
		{name: "zero step size rejected", qty: 1, filters: domain.SymbolFilters{MinQty: 0.01, MaxQty: 1000}, wantErr: true},
		{
			// 0.3/0.1 is 2.9999... in binary; the rounding must not
			// floor it to 0.2
			name:    "float division noise",
			qty:     0.3,
			filters: domain.SymbolFilters{MinQty: 0.1, MaxQty: 100, StepSize: 0.1},
			want:    0.3,
		},
		{
			name:    "coarse step",
			qty:     123.7,
			filters: domain.SymbolFilters{MinQty: 1, MaxQty: 10000, StepSize: 1},
			want:    123,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoundToStep(tt.qty, tt.filters)
			if tt.wantErr {
				require.Error(t, err)
				var qe *QuantityError
				require.True(t, errors.As(err, &qe), "expected a *QuantityError, got %T", err)
				assert.Equal(t, tt.qty, qe.Requested)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestRoundToStepErrorCarriesRoundedValue(t *testing.T) {
	filters := domain.SymbolFilters{MinQty: 1, MaxQty: 10, StepSize: 1}

	_, err := RoundToStep(0.7, filters)
	require.Error(t, err)

	var qe *QuantityError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 0.7, qe.Requested)
	assert.Equal(t, 0.0, qe.Rounded)
	assert.Equal(t, filters, qe.Filters)
	assert.Contains(t, qe.Error(), "outside lot-size bounds")
}

func TestFilterSetLookup(t *testing.T) {
	fs := FilterSet{
		"ETHBTC": {MinQty: 0.001, MaxQty: 100000, StepSize: 0.001},
	}

	got, ok := fs.Lookup("ETHBTC")
	require.True(t, ok)
	assert.Equal(t, 0.001, got.StepSize)

	_, ok = fs.Lookup("DOGEBTC")
	assert.False(t, ok)

	var empty FilterSet
	_, ok = empty.Lookup("ETHBTC")
	assert.False(t, ok)
}

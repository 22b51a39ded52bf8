package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stocksaga/internal/service/inventory/domain"
)

func TestDefaultRules(t *testing.T) {
	c, err := NewCELClassifier(nil)
	require.NoError(t, err)

	cases := []struct {
		name      string
		physical  int
		reserved  int
		threshold int
		want      domain.AlertType
		wantOK    bool
	}{
		{"healthy", 20, 0, 5, "", false},
		{"at threshold", 5, 0, 5, domain.AlertLowStock, true},
		{"below threshold after reserve", 10, 7, 5, domain.AlertLowStock, true},
		{"empty", 0, 0, 5, domain.AlertOutOfStock, true},
		{"fully reserved", 4, 4, 0, domain.AlertOutOfStock, true},
		{"over reserved", 2, 4, 0, domain.AlertOutOfStock, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := domain.NewStockLedgerEntry(101, tc.physical, tc.threshold)
			e.Reserved = tc.reserved
			e.Available = max(tc.physical-tc.reserved, 0)

			got, ok, err := c.Classify(e)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCustomRules(t *testing.T) {
	c, err := NewCELClassifier([]Rule{
		{Type: domain.AlertLowStock, Expr: "reserved * 2 > physicalStock"},
	})
	require.NoError(t, err)

	e := domain.NewStockLedgerEntry(7, 10, 0)
	e.Reserved = 6
	got, ok, err := c.Classify(e)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.AlertLowStock, got)
}

func TestInvalidRules(t *testing.T) {
	_, err := NewCELClassifier([]Rule{{Type: domain.AlertLowStock, Expr: "available <="}})
	assert.Error(t, err)

	_, err = NewCELClassifier([]Rule{{Type: domain.AlertLowStock, Expr: "available + 1"}})
	assert.Error(t, err, "non-bool rule")

	_, err = NewCELClassifier([]Rule{{Type: "EXPIRED", Expr: "true"}})
	assert.Error(t, err)
}

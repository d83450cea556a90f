package archive

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vansales/internal/report"
)

func TestMemoryArchive(t *testing.T) {
	ctx := context.Background()
	a := NewMemory()
	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-01"} {
		require.NoError(t, a.Save(ctx, report.DailySummary{Date: d, Sales: decimal.NewFromInt(1)}))
	}
	require.NoError(t, a.Save(ctx, report.DailySummary{Date: "2024-01-02", Sales: decimal.NewFromInt(9)}))

	got, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2024-01-03", got[0].Date)
	assert.True(t, got[1].Sales.Equal(decimal.NewFromInt(9)), "saving a date again replaces it")

	got, err = a.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 5, NormalizeLimit(0, 5))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-1, 100))
	assert.Equal(t, 2, NormalizeLimit(2, 5))
	assert.Equal(t, 0, NormalizeLimit(3, 0))
}

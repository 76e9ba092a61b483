package steps

import (
	"strings"
	"testing"

	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bigRows(n int, cellSize int) []hub.Row {
	rows := make([]hub.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, hub.Row{"text": strings.Repeat("x", cellSize)})
	}
	return rows
}

func TestTruncateRowItemsNoop(t *testing.T) {
	items := buildRowItems(bigRows(3, 10))
	kept, truncated := truncateRowItems(items, 10_000, 1, 100)
	assert.False(t, truncated)
	assert.Len(t, kept, 3)
	for _, item := range kept {
		assert.Empty(t, item.TruncatedCells)
	}
}

func TestTruncateRowItemsCells(t *testing.T) {
	// 10 rows of ~1KB against a 6KB budget: cells from the end get cut
	items := buildRowItems(bigRows(10, 1000))
	kept, truncated := truncateRowItems(items, 6_000, 2, 20)
	assert.True(t, truncated)
	require.NotEmpty(t, kept)

	// The first row survives untouched, the last is truncated
	assert.Empty(t, kept[0].TruncatedCells)
	last := kept[len(kept)-1]
	require.Equal(t, []string{"text"}, last.TruncatedCells)
	value, ok := last.Row["text"].(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len(value), 20)
}

func TestTruncateRowItemsDropsRows(t *testing.T) {
	// Budget far below even truncated rows: fall back to dropping rows,
	// never below the floor
	items := buildRowItems(bigRows(10, 1000))
	kept, truncated := truncateRowItems(items, 100, 2, 10)
	assert.True(t, truncated)
	assert.Len(t, kept, 2)
}

func TestTruncateRowItemsZeroBudget(t *testing.T) {
	items := buildRowItems(bigRows(3, 10))
	kept, truncated := truncateRowItems(items, 0, 1, 10)
	assert.False(t, truncated)
	assert.Len(t, kept, 3)
}

package steps

import (
	"encoding/json"

	"github.com/burrowhq/burrow/pkg/hub"
)

// buildRowItems wraps raw hub rows into indexed row items
func buildRowItems(rows []hub.Row) []RowItem {
	items := make([]RowItem, 0, len(rows))
	for i, row := range rows {
		items = append(items, RowItem{RowIdx: i, Row: row, TruncatedCells: []string{}})
	}
	return items
}

// rowItemSize estimates the serialized size of one row item
func rowItemSize(item *RowItem) int {
	data, err := json.Marshal(item)
	if err != nil {
		return 0
	}
	return len(data)
}

// truncateCell replaces a cell value with a prefix of its serialized
// form. The result is always a string, so readers must honor the
// truncated_cells list before interpreting the value.
func truncateCell(value any, minBytes int) any {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	if len(data) <= minBytes {
		return string(data)
	}
	return string(data[:minBytes])
}

// truncateRowItems shrinks a row list to fit the byte budget. Cells are
// truncated row by row from the end, never touching the first minRows
// rows' count: if cell truncation is not enough, whole rows are dropped
// from the end down to minRows. Returns the kept rows and whether any
// truncation happened.
func truncateRowItems(items []RowItem, maxBytes, minRows, cellMinBytes int) ([]RowItem, bool) {
	if maxBytes <= 0 {
		return items, false
	}

	sizes := make([]int, len(items))
	total := 0
	for i := range items {
		sizes[i] = rowItemSize(&items[i])
		total += sizes[i]
	}
	if total <= maxBytes {
		return items, false
	}

	truncated := false
	for i := len(items) - 1; i >= 0 && total > maxBytes; i-- {
		item := &items[i]
		for column, value := range item.Row {
			item.Row[column] = truncateCell(value, cellMinBytes)
			item.TruncatedCells = append(item.TruncatedCells, column)
		}
		truncated = true
		newSize := rowItemSize(item)
		total += newSize - sizes[i]
		sizes[i] = newSize
	}

	for len(items) > minRows && total > maxBytes {
		total -= sizes[len(items)-1]
		items = items[:len(items)-1]
		truncated = true
	}
	return items, truncated
}

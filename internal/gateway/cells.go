package gateway

import "fmt"

// ColumnName converts a zero-based column index to its spreadsheet letter
// name: 0→"A", 25→"Z", 26→"AA", 27→"AB". The mapping has to be exact because
// it addresses real cells in the backing workbook.
func ColumnName(index int) string {
	if index < 0 {
		return ""
	}
	name := ""
	for index >= 0 {
		name = string(rune('A'+index%26)) + name
		index = index/26 - 1
	}
	return name
}

// CellAddress renders a cell address from a zero-based column index and a
// one-based row number, e.g. (2, 4) → "C4".
func CellAddress(column, row int) string {
	return fmt.Sprintf("%s%d", ColumnName(column), row)
}

// RangeAddress renders a rectangular range address from zero-based column
// indexes and one-based row numbers.
func RangeAddress(startColumn, startRow, endColumn, endRow int) string {
	return fmt.Sprintf("%s:%s", CellAddress(startColumn, startRow), CellAddress(endColumn, endRow))
}

package feed

import "strings"

// fallbackHashColumn is used when the header names no hash column
const fallbackHashColumn = 3

// HashColumn finds the hash column of header: "hash", then "block hash",
// then the fourth column.
func HashColumn(header []string) int {
	for _, name := range []string{"hash", ColHash} {
		for i, h := range header {
			if strings.ToLower(strings.TrimSpace(h)) == name {
				return i
			}
		}
	}
	return fallbackHashColumn
}

// CollapseByHashChange keeps the rows where the block hash changes. Rows
// without a hash are skipped; a row whose hash equals the previous kept row's
// is dropped. The header is returned unchanged.
func CollapseByHashChange(header []string, rows [][]string) ([]string, [][]string) {
	col := HashColumn(header)
	out := make([][]string, 0, len(rows))
	prev := ""
	for _, row := range rows {
		h := strings.TrimSpace(Cell(row, col))
		if h == "" || h == prev {
			continue
		}
		out = append(out, row)
		prev = h
	}
	return header, out
}

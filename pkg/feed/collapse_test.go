package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashColumn(t *testing.T) {
	assert.Equal(t, 1, HashColumn([]string{"height", " Hash ", "block hash"}))
	assert.Equal(t, 2, HashColumn(CanonicalHeader))
	assert.Equal(t, 3, HashColumn([]string{"a", "b", "c", "d"}))
	assert.Equal(t, 3, HashColumn(nil))
}

func TestCollapseByHashChange(t *testing.T) {
	cases := []struct {
		name   string
		header []string
		rows   [][]string
		want   [][]string
	}{
		{
			name:   "consecutive duplicates",
			header: []string{"ts", "hash"},
			rows:   [][]string{{"1", "0xa"}, {"2", "0xa"}, {"3", "0xb"}, {"4", "0xb"}, {"5", "0xa"}},
			want:   [][]string{{"1", "0xa"}, {"3", "0xb"}, {"5", "0xa"}},
		},
		{
			name:   "empty hashes skipped",
			header: []string{"ts", "hash"},
			rows:   [][]string{{"1", ""}, {"2", "0xa"}, {"3", " "}, {"4", "0xa"}, {"5"}},
			want:   [][]string{{"2", "0xa"}},
		},
		{
			name:   "fallback column",
			header: []string{"w", "x", "y", "z"},
			rows:   [][]string{{"1", "", "", "0xa"}, {"2", "", "", "0xa"}, {"3", "", "", "0xc"}},
			want:   [][]string{{"1", "", "", "0xa"}, {"3", "", "", "0xc"}},
		},
		{
			name:   "no rows",
			header: []string{"hash"},
			want:   [][]string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header, rows := CollapseByHashChange(tc.header, tc.rows)
			assert.Equal(t, tc.header, header)
			assert.Equal(t, tc.want, rows)
		})
	}
}

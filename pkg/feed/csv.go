package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/username/orphanrun/pkg/core"
)

// CanonicalHeader is the header written by FormatRecords
var CanonicalHeader = []string{ColTimestamp, ColHeight, ColHash, ColExtraNonce, ColIsOrphan, ColIsQubic, ColDifficulty}

// ReadCSV reads a block log. Rows may have any number of fields and blank
// lines are skipped. Empty input yields an empty header and no rows.
func ReadCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var header []string
	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if header == nil {
			header = rec
			continue
		}
		rows = append(rows, rec)
	}
	if header == nil {
		header = []string{}
	}
	return header, rows, nil
}

// FormatRecords renders records as rows under CanonicalHeader, in a form Parse reads back
func FormatRecords(records []core.BlockRecord) ([]string, [][]string) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		diff := ""
		if !math.IsNaN(r.Difficulty) {
			diff = strconv.FormatFloat(r.Difficulty, 'f', -1, 64)
		}
		rows = append(rows, []string{
			r.TimestampString(),
			strconv.FormatInt(r.Height, 10),
			r.Hash,
			r.ExtraNonce,
			formatFlag(r.IsOrphan),
			formatFlag(r.IsQubic),
			diff,
		})
	}
	header := make([]string, len(CanonicalHeader))
	copy(header, CanonicalHeader)
	return header, rows
}

// WriteCSV writes header and rows as CSV
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func formatFlag(b bool) string {
	return strings.ToUpper(strconv.FormatBool(b))
}

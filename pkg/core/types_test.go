package core

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockRecordJSON(t *testing.T) {
	b := BlockRecord{
		Height:     3_100_000,
		Hash:       "0xabc",
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 250e6, time.FixedZone("CEST", 2*3600)),
		IsQubic:    true,
		Difficulty: math.NaN(),
	}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"height": 3100000,
		"hash": "0xabc",
		"ts": "2024-05-01T10:00:00.250Z",
		"is_qubic": true,
		"is_orphan": false,
		"difficulty": null
	}`, string(data))

	var back BlockRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Timestamp.Equal(b.Timestamp))
	assert.True(t, math.IsNaN(back.Difficulty))
}

func TestBlockRecordJSON_AbsentTimestamp(t *testing.T) {
	data, err := json.Marshal(BlockRecord{Height: 1, Difficulty: 2.5})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"ts"`)
	assert.Contains(t, string(data), `"difficulty":2.5`)

	var back BlockRecord
	require.Error(t, json.Unmarshal([]byte(`{"height":1,"ts":"yesterday"}`), &back))
}

func TestResultJSON(t *testing.T) {
	res := Result{
		Summary: Summary{MinRunLength: 3, RowsSeen: 10, QualifyingRuns: 1, Elapsed: 1500 * time.Microsecond},
		Runs:    []Run{{StartHeight: 5, EndHeight: 7}},
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	meta := m["meta"].(map[string]interface{})
	assert.EqualValues(t, 1, meta["ms"])
	assert.EqualValues(t, 3, meta["minRun"])
	assert.EqualValues(t, 1, meta["run_count_qubic"])
	assert.NotContains(t, meta, "source")
	assert.Equal(t, int64(3), res.Runs[0].Length())
}

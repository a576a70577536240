package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/feed"
)

const sample = `Timestamp,Height,Block Hash,is_orphan,is_qubic,difficulty
1714557600,"3,100,000",0xaaa,TRUE,FALSE,"289,000,000,000"
1714557720,3100001,0xbbb,false,true,
`

func TestSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	src := New(path, nil)
	f, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "csv:"+path, src.Describe())
	assert.Equal(t, int64(len(sample)), f.Size)
	assert.False(t, f.ModTime.IsZero())
	require.Len(t, f.Rows, 2)

	snap := feed.Parse(f.Header, f.Rows)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, int64(3_100_000), snap.Records[0].Height)
	assert.True(t, snap.Records[0].IsOrphan)
	assert.Equal(t, 289e9, snap.Records[0].Difficulty)
	assert.True(t, snap.Records[1].IsQubic)
}

func TestSource_Missing(t *testing.T) {
	src := New(filepath.Join(t.TempDir(), "nope.csv"), nil)
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, core.ErrFeedUnavailable)
}

func TestSource_SubscribeChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan struct{}, 1)
	sub, err := New(path, nil).SubscribeChanges(ctx, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	select {
	case <-ch:
		t.Fatal("unexpected signal for unrelated file")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, WriteRecords(path, []core.BlockRecord{{Height: 1, Hash: "0x1", IsOrphan: true}}))
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after replacing the feed")
	}
}

func TestWriteRecords_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.csv")
	in := []core.BlockRecord{
		{Height: 10, Hash: "0xa", IsOrphan: true, Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Difficulty: 5},
		{Height: 11, Hash: "0xb", IsQubic: true, Difficulty: 6},
	}
	require.NoError(t, WriteRecords(path, in))

	f, err := New(path, nil).Fetch(context.Background())
	require.NoError(t, err)
	snap := feed.Parse(f.Header, f.Rows)
	assert.Equal(t, in, snap.Records)
}

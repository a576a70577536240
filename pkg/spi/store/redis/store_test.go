package redis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/detector"
	"github.com/username/orphanrun/pkg/feed"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	s.now = func() time.Time { return time.UnixMilli(1_714_557_600_000) }
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_FirstRecordWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.SaveRecords(ctx, []core.BlockRecord{
		{Height: 100, Hash: "0xfirst", IsOrphan: true, Difficulty: math.NaN()},
		{Height: 100, Hash: "0xmain", IsQubic: true, Difficulty: 7},
		{Height: 100, Hash: "0xsecond", IsOrphan: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SaveRecords(ctx, []core.BlockRecord{{Height: 100, Hash: "0xlate", IsQubic: true}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0xfirst", got[0].Hash)
	assert.True(t, math.IsNaN(got[0].Difficulty))
	assert.Equal(t, "0xmain", got[1].Hash)
	assert.Equal(t, 7.0, got[1].Difficulty)
}

func TestStore_FetchFeedsDetection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Fetch(ctx)
	assert.ErrorIs(t, err, core.ErrFeedUnavailable)

	var records []core.BlockRecord
	for h := int64(10); h <= 12; h++ {
		records = append(records,
			core.BlockRecord{Height: h, Hash: "o", IsOrphan: true},
			core.BlockRecord{Height: h, Hash: "m", IsQubic: true})
	}
	_, err = s.SaveRecords(ctx, records)
	require.NoError(t, err)

	f, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), f.Size)
	assert.Equal(t, time.UnixMilli(1_714_557_600_000).UTC(), f.ModTime)

	res := detector.Detect(feed.Parse(f.Header, f.Rows), detector.Options{MinRunLength: 3})
	require.Len(t, res.Runs, 1)
	assert.Equal(t, int64(10), res.Runs[0].StartHeight)
	assert.Equal(t, int64(12), res.Runs[0].EndHeight)
}

func TestStore_Batches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	records := make([]core.BlockRecord, batchSize*2+3)
	for i := range records {
		records[i] = core.BlockRecord{Height: int64(i), IsOrphan: true}
	}
	n, err := s.SaveRecords(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, len(records), n)

	got, err := s.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, got, len(records))
	assert.Equal(t, int64(batchSize), got[batchSize].Height)
	assert.Equal(t, "redis:"+s.addr, s.Describe())
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SaveRecords(ctx, []core.BlockRecord{{Height: 1, IsOrphan: true}, {Height: 1}})
	require.NoError(t, err)
	require.NoError(t, s.client.Set(ctx, "unrelated", "keep", 0).Err())

	require.NoError(t, s.Clear(ctx))
	_, err = s.Fetch(ctx)
	assert.ErrorIs(t, err, core.ErrFeedUnavailable)
	assert.Equal(t, "keep", s.client.Get(ctx, "unrelated").Val())

	n, err := s.SaveRecords(ctx, []core.BlockRecord{{Height: 1, IsOrphan: true}})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "cleared keys no longer block inserts")
}

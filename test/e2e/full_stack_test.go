//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/username/orphanrun"
	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/spi/store/pg"
	"github.com/username/orphanrun/pkg/spi/store/redis"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type storeFeed interface {
	core.FeedSource
	core.RecordStore
	Clear(ctx context.Context) error
}

// runStoreScenario ingests one run, watches the store, then ingests a second
// run plus a conflicting duplicate and expects exactly one more update.
func runStoreScenario(t *testing.T, st storeFeed) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, st.Clear(ctx))
	n, err := st.SaveRecords(ctx, selfishRun(100, 103))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	logger := zaptest.NewLogger(t)
	analyzer := orphanrun.New(st,
		orphanrun.WithLogger(logger),
		orphanrun.WithRetry(3, 100*time.Millisecond),
		orphanrun.WithPollInterval(100*time.Millisecond))

	updates := make(chan *core.Result, 8)
	analyzer.OnUpdate(func(ctx context.Context, res *core.Result) error {
		updates <- res
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- analyzer.Run(ctx) }()

	first := <-updates
	require.Len(t, first.Runs, 1)
	assert.Equal(t, int64(103), first.Runs[0].EndHeight)

	// the duplicate orphan at 100 loses to the stored one
	more := append(selfishRun(300, 302), core.BlockRecord{Height: 100, Hash: "0xlate", IsOrphan: true})
	n, err = st.SaveRecords(ctx, more)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	second := <-updates
	require.Len(t, second.Runs, 2)
	assert.Equal(t, "0xorphan", second.Runs[0].OrphanBlocks[0].Hash)

	cancel()
	assert.NoError(t, <-done)
}

func TestFullStack_Postgres(t *testing.T) {
	dsn := getEnv("ORPHANRUN_E2E_POSTGRES_DSN", "host=localhost user=orphanrun password=password dbname=orphanrun_e2e port=5432 sslmode=disable")
	st, err := pg.NewStore(dsn)
	require.NoError(t, err, "postgres must be reachable at %s", dsn)
	defer st.Close()

	runStoreScenario(t, st)
}

func TestFullStack_Redis(t *testing.T) {
	addr := getEnv("ORPHANRUN_E2E_REDIS_ADDR", "localhost:6379")
	st, err := redis.NewStore(addr, os.Getenv("ORPHANRUN_E2E_REDIS_PASSWORD"), 15)
	require.NoError(t, err, "redis must be reachable at %s", addr)
	defer st.Close()

	runStoreScenario(t, st)
}

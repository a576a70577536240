package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/feed"
)

const batchSize = 500

// saveScript inserts each record under its (chain, height) key unless one is
// already there and appends inserted records to the arrival log.
// KEYS: record keys..., log key, meta key. ARGV: payloads..., now (unix ms).
var saveScript = redis.NewScript(`
local n = #ARGV - 1
local logKey = KEYS[n + 1]
local metaKey = KEYS[n + 2]
local added = 0
for i = 1, n do
  if redis.call('SETNX', KEYS[i], ARGV[i]) == 1 then
    redis.call('RPUSH', logKey, ARGV[i])
    added = added + 1
  end
end
if added > 0 then
  redis.call('HSET', metaKey, 'updated_at', ARGV[n + 1])
  redis.call('HINCRBY', metaKey, 'count', added)
end
return added
`)

type Store struct {
	client *redis.Client
	prefix string
	addr   string
	now    func() time.Time
}

// Ensure Store implements the record store and feed source contracts
var (
	_ core.RecordStore = (*Store)(nil)
	_ core.FeedSource  = (*Store)(nil)
)

func NewStore(addr string, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewStoreWithClient(rdb), nil
}

// NewStoreWithClient wraps an existing client
func NewStoreWithClient(rdb *redis.Client) *Store {
	return &Store{
		client: rdb,
		prefix: "orphanrun:",
		addr:   rdb.Options().Addr,
		now:    time.Now,
	}
}

func (s *Store) recordKey(b core.BlockRecord) string {
	chain := "main"
	if b.IsOrphan {
		chain = "orphan"
	}
	// key: orphanrun:record:<chain>:<height>
	return fmt.Sprintf("%srecord:%s:%d", s.prefix, chain, b.Height)
}

func (s *Store) logKey() string  { return s.prefix + "log" }
func (s *Store) metaKey() string { return s.prefix + "meta" }

// SaveRecords stores records whose (chain, height) pair is new; earlier records win
func (s *Store) SaveRecords(ctx context.Context, records []core.BlockRecord) (int, error) {
	total := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		keys := make([]string, 0, len(batch)+2)
		args := make([]interface{}, 0, len(batch)+1)
		for _, b := range batch {
			data, err := json.Marshal(b)
			if err != nil {
				return total, fmt.Errorf("failed to marshal record: %w", err)
			}
			keys = append(keys, s.recordKey(b))
			args = append(args, string(data))
		}
		keys = append(keys, s.logKey(), s.metaKey())
		args = append(args, s.now().UnixMilli())

		n, err := saveScript.Run(ctx, s.client, keys, args...).Int()
		if err != nil {
			return total, fmt.Errorf("failed to save records: %w", err)
		}
		total += n
	}
	return total, nil
}

// LoadRecords returns every stored record in arrival order
func (s *Store) LoadRecords(ctx context.Context) ([]core.BlockRecord, error) {
	vals, err := s.client.LRange(ctx, s.logKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	out := make([]core.BlockRecord, 0, len(vals))
	for _, v := range vals {
		var b core.BlockRecord
		if err := json.Unmarshal([]byte(v), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Fetch renders the stored records as a feed. The last write time and the
// record count stand in for the file modification time and size.
func (s *Store) Fetch(ctx context.Context) (*core.Feed, error) {
	meta, err := s.client.HGetAll(ctx, s.metaKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read store meta: %w", err)
	}
	count, _ := strconv.ParseInt(meta["count"], 10, 64)
	if count == 0 {
		return nil, fmt.Errorf("redis %s: %w", s.addr, core.ErrFeedUnavailable)
	}
	updated, _ := strconv.ParseInt(meta["updated_at"], 10, 64)

	records, err := s.LoadRecords(ctx)
	if err != nil {
		return nil, err
	}
	header, rows := feed.FormatRecords(records)
	return &core.Feed{
		Header:  header,
		Rows:    rows,
		ModTime: time.UnixMilli(updated).UTC(),
		Size:    count,
	}, nil
}

// Clear deletes every key under the store prefix
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", batchSize).Iterator()
	keys := make([]string, 0, batchSize)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batchSize {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to clear store: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan store keys: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	}
	return nil
}

// Describe names the source
func (s *Store) Describe() string { return "redis:" + s.addr }

// Close releases the client
func (s *Store) Close() error { return s.client.Close() }

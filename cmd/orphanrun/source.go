package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/config"
	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/spi/csvfile"
	"github.com/username/orphanrun/pkg/spi/store/pg"
	"github.com/username/orphanrun/pkg/spi/store/redis"
)

// store is a feed that can also ingest records
type store interface {
	core.FeedSource
	core.RecordStore
	Clear(ctx context.Context) error
	Close() error
}

// openSource opens the feed selected by the configured driver. The returned
// close function is never nil.
func openSource(c *config.Config, log *zap.Logger) (core.FeedSource, func(), error) {
	switch c.FeedDriver {
	case config.DriverCSV:
		log.Info("using csv feed", zap.String("path", c.BlocksCSVPath))
		return csvfile.New(c.BlocksCSVPath, log), func() {}, nil
	case config.DriverRedis, config.DriverPostgres:
		st, err := openStore(c, log)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed driver %q. Supported: csv, redis, postgres", c.FeedDriver)
	}
}

func openStore(c *config.Config, log *zap.Logger) (store, error) {
	switch c.FeedDriver {
	case config.DriverRedis:
		log.Info("using redis store", zap.String("addr", c.RedisAddr), zap.Int("db", c.RedisDB))
		st, err := redis.NewStore(c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		return st, nil
	case config.DriverPostgres:
		log.Info("using postgres store")
		st, err := pg.NewStore(c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("feed driver %q cannot store records; use redis or postgres", c.FeedDriver)
	}
}

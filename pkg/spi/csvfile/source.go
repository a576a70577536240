// Package csvfile reads the block log from a CSV file on disk.
package csvfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/feed"
	"github.com/username/orphanrun/pkg/spi"
)

// Source implements core.FeedSource and spi.SubscriptionSource for a CSV file
type Source struct {
	path   string
	logger *zap.Logger
}

// New creates a Source for path
func New(path string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{path: path, logger: logger}
}

// Path returns the watched file path
func (s *Source) Path() string { return s.path }

// Describe names the source
func (s *Source) Describe() string { return "csv:" + s.path }

// Fetch reads the whole file. A missing file yields core.ErrFeedUnavailable.
func (s *Source) Fetch(ctx context.Context) (*core.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.path, core.ErrFeedUnavailable)
		}
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat feed: %w", err)
	}
	header, rows, err := feed.ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return &core.Feed{
		Header:  header,
		Rows:    rows,
		ModTime: st.ModTime(),
		Size:    st.Size(),
	}, nil
}

// SubscribeChanges watches the file's directory so that atomic replacement
// (write to temp, rename) is seen as well as in-place writes.
func (s *Source) SubscribeChanges(ctx context.Context, ch chan<- struct{}) (spi.Subscription, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	sub := &subscription{watcher: w, errCh: make(chan error, 1), done: make(chan struct{})}
	target := filepath.Clean(s.path)
	go func() {
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case <-sub.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op == fsnotify.Chmod {
					continue
				}
				s.logger.Debug("feed file changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				select {
				case sub.errCh <- err:
				default:
				}
				return
			}
		}
	}()
	return sub, nil
}

type subscription struct {
	watcher *fsnotify.Watcher
	errCh   chan error
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.watcher.Close()
	})
}

func (s *subscription) Err() <-chan error { return s.errCh }

// WriteRecords writes records to path in the canonical column order,
// replacing the file atomically.
func WriteRecords(path string, records []core.BlockRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blocks-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	header, rows := feed.FormatRecords(records)
	if err := feed.WriteCSV(tmp, header, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace feed: %w", err)
	}
	return nil
}

package pg

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/feed"
)

const batchSize = 500

// RecordModel is one ingested block record; (height, orphan) is unique
type RecordModel struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	Height     int64      `gorm:"not null;uniqueIndex:idx_records_height_chain,priority:1"`
	Orphan     bool       `gorm:"not null;uniqueIndex:idx_records_height_chain,priority:2"`
	Hash       string     `gorm:"size:128"`
	BlockTime  *time.Time `gorm:"index"`
	Qubic      bool       `gorm:"not null;default:false"`
	Difficulty *float64
	ExtraNonce string `gorm:"size:64"`
	CreatedAt  time.Time
}

func (RecordModel) TableName() string { return "block_records" }

// Store implements core.RecordStore and core.FeedSource using PostgreSQL
type Store struct {
	db  *gorm.DB
	dsn string
}

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.FeedSource  = (*Store)(nil)
)

// NewStore creates a new PostgreSQL store
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn), // Warn level for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return NewStoreWithDB(db, dsn)
}

// NewStoreWithDB migrates and wraps an open connection
func NewStoreWithDB(db *gorm.DB, name string) (*Store, error) {
	if err := db.AutoMigrate(&RecordModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{db: db, dsn: name}, nil
}

// SaveRecords inserts records whose (height, chain) pair is not yet stored.
// Conflicting rows are skipped, so earlier records win.
func (s *Store) SaveRecords(ctx context.Context, records []core.BlockRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	models := make([]RecordModel, 0, len(records))
	for _, r := range records {
		models = append(models, toModel(r))
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&models, batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to save records: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// LoadRecords returns every stored record in insertion order
func (s *Store) LoadRecords(ctx context.Context) ([]core.BlockRecord, error) {
	var models []RecordModel
	if err := s.db.WithContext(ctx).Order("id asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	out := make([]core.BlockRecord, 0, len(models))
	for i := range models {
		out = append(out, toRecord(&models[i]))
	}
	return out, nil
}

type feedStats struct {
	Count   int64
	Updated *time.Time
}

// Fetch renders the stored records as a feed. The newest insert time and the
// row count stand in for the file modification time and size.
func (s *Store) Fetch(ctx context.Context) (*core.Feed, error) {
	var st feedStats
	err := s.db.WithContext(ctx).Model(&RecordModel{}).
		Select("count(*) AS count, max(created_at) AS updated").
		Scan(&st).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}
	if st.Count == 0 {
		return nil, fmt.Errorf("postgres: %w", core.ErrFeedUnavailable)
	}

	records, err := s.LoadRecords(ctx)
	if err != nil {
		return nil, err
	}
	header, rows := feed.FormatRecords(records)
	f := &core.Feed{Header: header, Rows: rows, Size: st.Count}
	if st.Updated != nil {
		f.ModTime = st.Updated.UTC()
	}
	return f, nil
}

// Clear deletes every stored record
func (s *Store) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&RecordModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

// Describe names the source
func (s *Store) Describe() string { return "postgres" }

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(r core.BlockRecord) RecordModel {
	m := RecordModel{
		Height:     r.Height,
		Orphan:     r.IsOrphan,
		Hash:       r.Hash,
		Qubic:      r.IsQubic,
		ExtraNonce: r.ExtraNonce,
	}
	if r.HasTimestamp() {
		ts := r.Timestamp.UTC()
		m.BlockTime = &ts
	}
	if !math.IsNaN(r.Difficulty) && !math.IsInf(r.Difficulty, 0) {
		d := r.Difficulty
		m.Difficulty = &d
	}
	return m
}

func toRecord(m *RecordModel) core.BlockRecord {
	r := core.BlockRecord{
		Height:     m.Height,
		Hash:       m.Hash,
		IsOrphan:   m.Orphan,
		IsQubic:    m.Qubic,
		ExtraNonce: m.ExtraNonce,
		Difficulty: math.NaN(),
	}
	if m.BlockTime != nil {
		r.Timestamp = m.BlockTime.UTC()
	}
	if m.Difficulty != nil {
		r.Difficulty = *m.Difficulty
	}
	return r
}

package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gramwatch/internal/domain"
)

// ShardManager lazily opens one sqlite database per group under
// <root>/<group_id>/media.db. Handles are cached for the lifetime of
// the manager and released together on Close.
type ShardManager struct {
	root   string
	logger zerolog.Logger

	mu     sync.Mutex
	shards map[int64]*gorm.DB
	closed bool
}

func NewShardManager(root string, logger zerolog.Logger) *ShardManager {
	return &ShardManager{
		root:   root,
		logger: logger.With().Str("component", "media_shards").Logger(),
		shards: make(map[int64]*gorm.DB),
	}
}

// Shard returns the media store for the given group, opening and
// migrating it on first use.
func (m *ShardManager) Shard(groupID int64) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, domain.ErrShardClosed
	}
	if db, ok := m.shards[groupID]; ok {
		return db, nil
	}

	dir := filepath.Join(m.root, strconv.FormatInt(groupID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shard directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "media.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open media shard for group %d: %w", groupID, err)
	}
	if err := db.AutoMigrate(&domain.Media{}); err != nil {
		return nil, fmt.Errorf("migrate media shard for group %d: %w", groupID, err)
	}

	m.shards[groupID] = db
	m.logger.Debug().Int64("group_id", groupID).Msg("media shard opened")
	return db, nil
}

// Dir returns the on-disk directory backing a group's shard. The
// directory also holds the group's downloaded attachment files.
func (m *ShardManager) Dir(groupID int64) string {
	return filepath.Join(m.root, strconv.FormatInt(groupID, 10))
}

// Close releases every open shard. The manager refuses new shards
// afterwards.
func (m *ShardManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for groupID, db := range m.shards {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close media shard for group %d: %w", groupID, err)
		}
	}
	m.shards = nil
	return firstErr
}

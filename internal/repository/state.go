package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gramwatch/internal/domain"
)

// StateRepository holds path-keyed values such as sink dedup hashes and
// rolling export bookkeeping. Entries may carry a TTL; expired entries
// behave as absent and are reclaimed by PurgeExpired.
type StateRepository struct {
	db *gorm.DB
}

func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

func (r *StateRepository) Put(ctx context.Context, path, value string, ttl time.Duration) error {
	entry := domain.StateEntry{
		Path:      path,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	if ttl > 0 {
		expires := entry.CreatedAt.Add(ttl)
		entry.ExpiresAt = &expires
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("put state %q: %w", path, err)
	}
	return nil
}

func (r *StateRepository) Get(ctx context.Context, path string) (string, error) {
	var entry domain.StateEntry
	err := r.db.WithContext(ctx).First(&entry, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get state %q: %w", path, err)
	}
	if entry.Expired(time.Now().UTC()) {
		return "", domain.ErrStateNotFound
	}
	return entry.Value, nil
}

func (r *StateRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&domain.StateEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired state: %w", res.Error)
	}
	return res.RowsAffected, nil
}

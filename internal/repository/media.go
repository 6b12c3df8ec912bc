package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/database"
)

// MediaRepository routes each call to the owning group's shard store.
type MediaRepository struct {
	shards *database.ShardManager
}

func NewMediaRepository(shards *database.ShardManager) *MediaRepository {
	return &MediaRepository{shards: shards}
}

func (r *MediaRepository) Insert(ctx context.Context, m *domain.Media) (int64, error) {
	db, err := r.shards.Shard(m.GroupID)
	if err != nil {
		return 0, err
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return 0, fmt.Errorf("insert media for group %d: %w", m.GroupID, err)
	}
	return m.ID, nil
}

func (r *MediaRepository) Get(ctx context.Context, groupID, id int64) (*domain.Media, error) {
	db, err := r.shards.Shard(groupID)
	if err != nil {
		return nil, err
	}
	var m domain.Media
	err = db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media %d for group %d: %w", id, groupID, err)
	}
	return &m, nil
}

func (r *MediaRepository) Delete(ctx context.Context, groupID, id int64) error {
	db, err := r.shards.Shard(groupID)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Delete(&domain.Media{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete media %d for group %d: %w", id, groupID, err)
	}
	return nil
}

func (r *MediaRepository) Count(ctx context.Context, groupID int64) (int64, error) {
	db, err := r.shards.Shard(groupID)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Media{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count media for group %d: %w", groupID, err)
	}
	return n, nil
}

func (r *MediaRepository) Close() error {
	return r.shards.Close()
}

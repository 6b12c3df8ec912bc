// Package repository implements the domain store interfaces on top of
// the gorm-backed main store and per-group media shards.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gramwatch/internal/domain"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Upsert(ctx context.Context, g *domain.Group) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(g).Error
	if err != nil {
		return fmt.Errorf("upsert group %d: %w", g.ID, err)
	}
	return nil
}

func (r *GroupRepository) Get(ctx context.Context, id int64) (*domain.Group, error) {
	var g domain.Group
	err := r.db.WithContext(ctx).First(&g, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	return &g, nil
}

func (r *GroupRepository) ByUsername(ctx context.Context, username string) (*domain.Group, error) {
	var g domain.Group
	err := r.db.WithContext(ctx).First(&g, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group by username %q: %w", username, err)
	}
	return &g, nil
}

func (r *GroupRepository) All(ctx context.Context) ([]domain.Group, error) {
	var groups []domain.Group
	if err := r.db.WithContext(ctx).Order("id").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

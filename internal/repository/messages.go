package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gramwatch/internal/domain"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert writes the row unless the (id, group_id) pair already exists.
// Re-syncing over persisted history is expected, so duplicates are not
// an error.
func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}, {Name: "group_id"}},
		DoNothing: true,
	}).Create(m)
	if res.Error != nil {
		return false, fmt.Errorf("insert message %d/%d: %w", m.GroupID, m.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageRepository) MaxID(ctx context.Context, groupID int64) (int64, error) {
	var maxID int64
	err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("group_id = ?", groupID).
		Select("COALESCE(MAX(id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return 0, fmt.Errorf("max message id for group %d: %w", groupID, err)
	}
	return maxID, nil
}

func (r *MessageRepository) ForGroup(ctx context.Context, groupID int64, since time.Time, ascending bool) ([]domain.Message, error) {
	order := "date DESC, id DESC"
	if ascending {
		order = "date ASC, id ASC"
	}
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if !since.IsZero() {
		q = q.Where("date >= ?", since)
	}
	var msgs []domain.Message
	if err := q.Order(order).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("load messages for group %d: %w", groupID, err)
	}
	return msgs, nil
}

func (r *MessageRepository) Count(ctx context.Context, groupID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("group_id = ?", groupID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count messages for group %d: %w", groupID, err)
	}
	return n, nil
}

// DeleteOlderThan removes the group's rows older than cutoff and
// returns them so the caller can release the referenced media.
func (r *MessageRepository) DeleteOlderThan(ctx context.Context, groupID int64, cutoff time.Time) ([]domain.Message, error) {
	var victims []domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND date < ?", groupID, cutoff).Find(&victims).Error; err != nil {
			return err
		}
		if len(victims) == 0 {
			return nil
		}
		return tx.Where("group_id = ? AND date < ?", groupID, cutoff).
			Delete(&domain.Message{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("purge messages for group %d: %w", groupID, err)
	}
	return victims, nil
}

package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/updates"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// updatesState persists the account-wide pts/qts/date/seq tuple the gap
// engine needs to replay missed updates after a restart.
type updatesState struct {
	UserID int64 `gorm:"primaryKey;column:user_id"`
	Pts    int   `gorm:"column:pts;default:0"`
	Qts    int   `gorm:"column:qts;default:0"`
	Date   int   `gorm:"column:date;default:0"`
	Seq    int   `gorm:"column:seq;default:0"`
}

func (updatesState) TableName() string {
	return "updates_state"
}

// channelState persists the per-channel pts.
type channelState struct {
	UserID    int64 `gorm:"primaryKey;column:user_id"`
	ChannelID int64 `gorm:"primaryKey;column:channel_id"`
	Pts       int   `gorm:"column:pts;default:0"`
}

func (channelState) TableName() string {
	return "updates_channel_state"
}

// GapStateStorage implements updates.StateStorage on the main store.
type GapStateStorage struct {
	db *gorm.DB
}

func NewGapStateStorage(db *gorm.DB) (*GapStateStorage, error) {
	if err := db.AutoMigrate(&updatesState{}, &channelState{}); err != nil {
		return nil, fmt.Errorf("migrate updates state schema: %w", err)
	}
	return &GapStateStorage{db: db}, nil
}

func (s *GapStateStorage) GetState(ctx context.Context, userID int64) (updates.State, bool, error) {
	var state updatesState
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return updates.State{}, false, nil
	}
	if err != nil {
		return updates.State{}, false, err
	}
	return updates.State{
		Pts:  state.Pts,
		Qts:  state.Qts,
		Date: state.Date,
		Seq:  state.Seq,
	}, true, nil
}

func (s *GapStateStorage) SetState(ctx context.Context, userID int64, state updates.State) error {
	record := updatesState{
		UserID: userID,
		Pts:    state.Pts,
		Qts:    state.Qts,
		Date:   state.Date,
		Seq:    state.Seq,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pts", "qts", "date", "seq"}),
	}).Create(&record).Error
}

func (s *GapStateStorage) SetPts(ctx context.Context, userID int64, pts int) error {
	return s.setColumn(ctx, userID, "pts", updatesState{UserID: userID, Pts: pts})
}

func (s *GapStateStorage) SetQts(ctx context.Context, userID int64, qts int) error {
	return s.setColumn(ctx, userID, "qts", updatesState{UserID: userID, Qts: qts})
}

func (s *GapStateStorage) SetDate(ctx context.Context, userID int64, date int) error {
	return s.setColumn(ctx, userID, "date", updatesState{UserID: userID, Date: date})
}

func (s *GapStateStorage) SetSeq(ctx context.Context, userID int64, seq int) error {
	return s.setColumn(ctx, userID, "seq", updatesState{UserID: userID, Seq: seq})
}

func (s *GapStateStorage) SetDateSeq(ctx context.Context, userID int64, date, seq int) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"date", "seq"}),
	}).Create(&updatesState{UserID: userID, Date: date, Seq: seq}).Error
}

func (s *GapStateStorage) setColumn(ctx context.Context, userID int64, column string, record updatesState) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{column}),
	}).Create(&record).Error
}

func (s *GapStateStorage) GetChannelPts(ctx context.Context, userID, channelID int64) (int, bool, error) {
	var state channelState
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return state.Pts, true, nil
}

func (s *GapStateStorage) SetChannelPts(ctx context.Context, userID, channelID int64, pts int) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pts"}),
	}).Create(&channelState{UserID: userID, ChannelID: channelID, Pts: pts}).Error
}

func (s *GapStateStorage) ForEachChannels(ctx context.Context, userID int64, f func(ctx context.Context, channelID int64, pts int) error) error {
	var states []channelState
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&states).Error; err != nil {
		return err
	}
	for _, state := range states {
		if err := f(ctx, state.ChannelID, state.Pts); err != nil {
			return err
		}
	}
	return nil
}

// Ensure GapStateStorage implements updates.StateStorage interface
var _ updates.StateStorage = (*GapStateStorage)(nil)

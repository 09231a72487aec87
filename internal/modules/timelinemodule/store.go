package timelinemodule

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlaybackProgress is the persisted resume point for one asset. One row per
// asset; reports upsert it.
type PlaybackProgress struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AssetID    string    `gorm:"uniqueIndex;not null" json:"asset_id"`
	PositionMs int64     `json:"position_ms"`
	DurationMs int64     `json:"duration_ms"`
	Event      string    `json:"event"`
	UpdatedAt  time.Time `json:"updated_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists playback progress.
type Store struct {
	db *gorm.DB
}

// NewStore creates a progress store on an existing database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the progress table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&PlaybackProgress{})
}

// Upsert records the latest position for an asset, inserting or updating as
// needed.
func (s *Store) Upsert(assetID string, positionMs, durationMs int64, event string) error {
	row := PlaybackProgress{
		AssetID:    assetID,
		PositionMs: positionMs,
		DurationMs: durationMs,
		Event:      event,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position_ms", "duration_ms", "event", "updated_at"}),
	}).Create(&row).Error
}

// Get returns the saved progress for an asset, or nil when none exists.
func (s *Store) Get(assetID string) (*PlaybackProgress, error) {
	var row PlaybackProgress
	err := s.db.Where("asset_id = ?", assetID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes the saved progress for an asset.
func (s *Store) Delete(assetID string) error {
	return s.db.Where("asset_id = ?", assetID).Delete(&PlaybackProgress{}).Error
}

package store

import (
	"context"

	"homesync/internal/models"

	"github.com/jinzhu/gorm"
)

const upsertProfileOption = "ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, color = excluded.color, updated_at = excluded.updated_at"

// GetProfile returns the profile of user id.
func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&profile).Error
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile inserts the profile or updates its display fields.
func (s *Store) UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	var saved models.Profile
	err := s.Transaction(ctx, func(tx *Store) error {
		row := *profile
		if err := tx.db.Set("gorm:insert_option", upsertProfileOption).Create(&row).Error; err != nil {
			return err
		}
		return tx.db.Where("id = ?", profile.ID).First(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ListProfiles returns the profiles whose ids are in ids. Unknown ids are
// skipped.
func (s *Store) ListProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	var profiles []models.Profile
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("id IN (?)", ids).Find(&profiles).Error
	})
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

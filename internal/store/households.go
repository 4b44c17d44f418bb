package store

import (
	"context"

	"homesync/internal/models"

	"github.com/jinzhu/gorm"
)

// CreateHousehold inserts a household and makes creatorID its admin.
func (s *Store) CreateHousehold(ctx context.Context, name, creatorID string) (*models.Household, error) {
	household := &models.Household{Name: name}
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.Create(household).Error; err != nil {
			return err
		}
		return tx.db.Create(&models.HouseholdMember{
			HouseholdID: household.ID,
			UserID:      creatorID,
			Role:        models.RoleAdmin,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return household, nil
}

// GetHousehold returns the household with the given id.
func (s *Store) GetHousehold(ctx context.Context, id string) (*models.Household, error) {
	var household models.Household
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&household).Error
	})
	if err != nil {
		return nil, err
	}
	return &household, nil
}

// ListMembers returns the membership rows of a household, oldest first.
func (s *Store) ListMembers(ctx context.Context, householdID string) ([]models.HouseholdMember, error) {
	var members []models.HouseholdMember
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("household_id = ?", householdID).Order("created_at, user_id").Find(&members).Error
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// AddMember inserts a membership row. A duplicate returns ErrConflict.
func (s *Store) AddMember(ctx context.Context, member *models.HouseholdMember) error {
	return s.run(ctx, func(db *gorm.DB) error {
		return db.Create(member).Error
	})
}

// JoinHousehold adds userID as a plain member unless it already belongs to the
// household, and returns the resulting membership row.
func (s *Store) JoinHousehold(ctx context.Context, householdID, userID string) (*models.HouseholdMember, error) {
	var member models.HouseholdMember
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.Where("id = ?", householdID).First(&models.Household{}).Error; err != nil {
			return err
		}
		err := tx.db.Set("gorm:insert_option", "ON CONFLICT (household_id, user_id) DO NOTHING").
			Create(&models.HouseholdMember{
				HouseholdID: householdID,
				UserID:      userID,
				Role:        models.RoleMember,
			}).Error
		if err != nil {
			return err
		}
		return tx.db.Where("household_id = ? AND user_id = ?", householdID, userID).First(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetMembership returns userID's membership in householdID.
func (s *Store) GetMembership(ctx context.Context, householdID, userID string) (*models.HouseholdMember, error) {
	var member models.HouseholdMember
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("household_id = ? AND user_id = ?", householdID, userID).First(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListMembershipsForUser returns every household userID belongs to, with the
// household name filled in by a second lookup.
func (s *Store) ListMembershipsForUser(ctx context.Context, userID string) ([]models.UserHousehold, error) {
	var result []models.UserHousehold
	err := s.Transaction(ctx, func(tx *Store) error {
		var members []models.HouseholdMember
		if err := tx.db.Where("user_id = ?", userID).Order("created_at, household_id").Find(&members).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}

		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.HouseholdID)
		}
		var households []models.Household
		if err := tx.db.Where("id IN (?)", ids).Find(&households).Error; err != nil {
			return err
		}
		names := make(map[string]string, len(households))
		for _, h := range households {
			names[h.ID] = h.Name
		}

		result = make([]models.UserHousehold, 0, len(members))
		for _, m := range members {
			result = append(result, models.UserHousehold{
				HouseholdID:   m.HouseholdID,
				HouseholdName: names[m.HouseholdID],
				Role:          m.Role,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []models.UserHousehold{}
	}
	return result, nil
}

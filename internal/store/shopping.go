package store

import (
	"context"

	"homesync/internal/models"

	"github.com/jinzhu/gorm"
)

// ListItems returns every shopping list item of one week scope.
func (s *Store) ListItems(ctx context.Context, householdID, weekStart string) ([]models.ShoppingListItem, error) {
	items := []models.ShoppingListItem{}
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("household_id = ? AND week_start = ?", householdID, weekStart).
			Order("created_at, id").
			Find(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListCheckedItems returns the checked items of one week scope.
func (s *Store) ListCheckedItems(ctx context.Context, householdID, weekStart string) ([]models.ShoppingListItem, error) {
	var items []models.ShoppingListItem
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("household_id = ? AND week_start = ? AND checked = ?", householdID, weekStart, true).
			Find(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteUncheckedItems removes the unchecked items of one week scope and
// reports how many rows went.
func (s *Store) DeleteUncheckedItems(ctx context.Context, householdID, weekStart string) (int64, error) {
	var deleted int64
	err := s.run(ctx, func(db *gorm.DB) error {
		res := db.Where("household_id = ? AND week_start = ? AND checked = ?", householdID, weekStart, false).
			Delete(&models.ShoppingListItem{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

// InsertItems inserts items in one transaction, filling in their ids.
func (s *Store) InsertItems(ctx context.Context, items []models.ShoppingListItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(tx *Store) error {
		for i := range items {
			if err := tx.db.Create(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItem returns the shopping list item with the given id.
func (s *Store) GetItem(ctx context.Context, id string) (*models.ShoppingListItem, error) {
	var item models.ShoppingListItem
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetItemChecked updates the checked flag of item id and returns the row.
func (s *Store) SetItemChecked(ctx context.Context, id string, checked bool) (*models.ShoppingListItem, error) {
	var item models.ShoppingListItem
	err := s.Transaction(ctx, func(tx *Store) error {
		res := tx.db.Model(&models.ShoppingListItem{}).Where("id = ?", id).Update("checked", checked)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.db.Where("id = ?", id).First(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// CategoryOrder is the display order of shopping list categories.
var CategoryOrder = []string{"produce", "meat", "dairy", "grains", "pantry", DefaultCategory}

// ShoppingListItem is one line of a household's weekly shopping list.
// Checked is only ever changed by users; regeneration leaves checked rows alone.
type ShoppingListItem struct {
	ID          string    `gorm:"primary_key;type:varchar(36)" json:"id"`
	HouseholdID string    `gorm:"type:varchar(36);not null;index:idx_shopping_scope" json:"household_id"`
	WeekStart   string    `gorm:"type:varchar(10);not null;index:idx_shopping_scope" json:"week_start"`
	Name        string    `gorm:"not null" json:"name"`
	Quantity    *float64  `json:"quantity"`
	Unit        *string   `json:"unit"`
	Category    string    `gorm:"not null" json:"category"`
	Checked     bool      `gorm:"not null" json:"checked"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName sets the table name for ShoppingListItem
func (ShoppingListItem) TableName() string {
	return "shopping_list_items"
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (i *ShoppingListItem) BeforeCreate(scope *gorm.Scope) error {
	if i.ID == "" {
		return scope.SetColumn("ID", uuid.NewString())
	}
	return nil
}

// All returns every model that belongs in the schema, in migration order.
func All() []interface{} {
	return []interface{}{
		&Household{},
		&HouseholdMember{},
		&Profile{},
		&Task{},
		&ShoppingListItem{},
	}
}

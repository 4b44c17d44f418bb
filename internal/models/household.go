package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// Role is a member's role inside a household.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Household is a group of users sharing tasks and a shopping list.
type Household struct {
	ID        string    `gorm:"primary_key;type:varchar(36)" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name for Household
func (Household) TableName() string {
	return "households"
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (h *Household) BeforeCreate(scope *gorm.Scope) error {
	if h.ID == "" {
		return scope.SetColumn("ID", uuid.NewString())
	}
	return nil
}

// HouseholdMember links a user to a household.
type HouseholdMember struct {
	HouseholdID string    `gorm:"primary_key;type:varchar(36)" json:"household_id"`
	UserID      string    `gorm:"primary_key;type:varchar(36);index" json:"user_id"`
	Role        Role      `gorm:"type:varchar(16);not null" json:"role"`
	Color       *string   `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName sets the table name for HouseholdMember
func (HouseholdMember) TableName() string {
	return "household_members"
}

// Profile holds a user's display settings. Its ID is the identity subject.
type Profile struct {
	ID          string    `gorm:"primary_key;type:varchar(36)" json:"id"`
	DisplayName string    `gorm:"not null" json:"display_name"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName sets the table name for Profile
func (Profile) TableName() string {
	return "profiles"
}

// MemberView is a membership row flattened with the member's profile.
type MemberView struct {
	HouseholdID string  `json:"household_id"`
	UserID      string  `json:"user_id"`
	Role        Role    `json:"role"`
	Color       *string `json:"color"`
	DisplayName *string `json:"display_name"`
}

// HouseholdDetail is a household together with its members.
type HouseholdDetail struct {
	Household
	Members []MemberView `json:"members"`
}

// UserHousehold is one entry of the caller's household list.
type UserHousehold struct {
	HouseholdID   string `json:"household_id"`
	HouseholdName string `json:"household_name"`
	Role          Role   `json:"role"`
}

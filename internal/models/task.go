package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// TaskType distinguishes chores from meals. Only meals carry ingredients.
type TaskType string

const (
	TaskTypeChore TaskType = "chore"
	TaskTypeMeal  TaskType = "meal"
)

// TaskState is the lifecycle state of a proposed task.
type TaskState string

const (
	TaskStateProposed TaskState = "proposed"
	TaskStateAccepted TaskState = "accepted"
	TaskStateDeclined TaskState = "declined"
)

// DayWindows lists the valid values of Task.DayWindow in week order.
var DayWindows = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DefaultCategory is used when an ingredient does not name one.
const DefaultCategory = "other"

// Task is a chore or meal planned for a household. Tasks without a week_start
// sit in the household backlog.
type Task struct {
	ID              string      `gorm:"primary_key;type:varchar(36)" json:"id"`
	HouseholdID     string      `gorm:"type:varchar(36);not null;index:idx_tasks_scope" json:"household_id"`
	Title           string      `gorm:"not null" json:"title"`
	Description     *string     `json:"description"`
	TaskType        TaskType    `gorm:"type:varchar(16);not null" json:"task_type"`
	State           TaskState   `gorm:"type:varchar(16);not null" json:"state"`
	ProposedBy      *string     `gorm:"type:varchar(36)" json:"proposed_by"`
	AssignedTo      *string     `gorm:"type:varchar(36)" json:"assigned_to"`
	DayWindow       *string     `gorm:"type:varchar(16)" json:"day_window"`
	TimeOfDay       *string     `json:"time_of_day"`
	DurationMinutes *int        `json:"duration_minutes"`
	WeekStart       *string     `gorm:"type:varchar(10);index:idx_tasks_scope" json:"week_start"`
	Ingredients     Ingredients `gorm:"type:text" json:"ingredients"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName sets the table name for Task
func (Task) TableName() string {
	return "tasks"
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (t *Task) BeforeCreate(scope *gorm.Scope) error {
	if t.ID == "" {
		return scope.SetColumn("ID", uuid.NewString())
	}
	return nil
}

// Ingredient is one line of a meal's ingredient list.
type Ingredient struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"`
	Unit     *string  `json:"unit"`
	Category string   `json:"category"`
}

// Ingredients is stored as JSON text. Rows written by other clients sometimes
// hold the list double-encoded (a JSON string containing the JSON array), so
// both Scan and UnmarshalJSON accept either form.
type Ingredients []Ingredient

// Value converts the list to a JSON string for storage
func (in Ingredients) Value() (driver.Value, error) {
	if len(in) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]Ingredient(in))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan converts the database value back to a list
func (in *Ingredients) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*in = Ingredients{}
		return nil
	case []byte:
		return in.decode(v)
	case string:
		return in.decode([]byte(v))
	default:
		return fmt.Errorf("unsupported type %T for Ingredients", value)
	}
}

// UnmarshalJSON accepts an array, a string holding an array, or null.
func (in *Ingredients) UnmarshalJSON(data []byte) error {
	return in.decode(data)
}

// MarshalJSON always emits an array, never null.
func (in Ingredients) MarshalJSON() ([]byte, error) {
	if in == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Ingredient(in))
}

func (in *Ingredients) decode(data []byte) error {
	list, err := DecodeIngredients(data)
	if err != nil {
		return err
	}
	*in = list
	return nil
}

// ErrIngredientEncoding is returned when an ingredient list is neither a JSON
// array nor a JSON string wrapping one.
var ErrIngredientEncoding = errors.New("ingredients: unsupported encoding")

// DecodeIngredients normalizes the raw column or request value into a typed
// list. Empty input and JSON null decode to an empty list.
func DecodeIngredients(data []byte) (Ingredients, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Ingredients{}, nil
	}

	switch data[0] {
	case '[':
		var list []Ingredient
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("ingredients: %w", err)
		}
		return Ingredients(list), nil
	case '"':
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("ingredients: %w", err)
		}
		inner = string(bytes.TrimSpace([]byte(inner)))
		if inner == "" || inner == "null" {
			return Ingredients{}, nil
		}
		if inner[0] != '[' {
			return nil, ErrIngredientEncoding
		}
		var list []Ingredient
		if err := json.Unmarshal([]byte(inner), &list); err != nil {
			return nil, fmt.Errorf("ingredients: %w", err)
		}
		return Ingredients(list), nil
	default:
		return nil, ErrIngredientEncoding
	}
}

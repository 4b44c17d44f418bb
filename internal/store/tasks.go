package store

import (
	"context"

	"homesync/internal/models"

	"github.com/jinzhu/gorm"
)

// ListTasks returns a household's tasks, optionally limited to one week.
func (s *Store) ListTasks(ctx context.Context, householdID string, weekStart *string) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.run(ctx, func(db *gorm.DB) error {
		q := db.Where("household_id = ?", householdID)
		if weekStart != nil {
			q = q.Where("week_start = ?", *weekStart)
		}
		return q.Order("created_at, id").Find(&tasks).Error
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask inserts task and fills in its generated fields.
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	return s.run(ctx, func(db *gorm.DB) error {
		return db.Create(task).Error
	})
}

// GetTask returns the task with the given id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&task).Error
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask sets the given columns on task id and returns the updated row.
// A nil value clears the column.
func (s *Store) UpdateTask(ctx context.Context, id string, columns map[string]interface{}) (*models.Task, error) {
	var task models.Task
	err := s.Transaction(ctx, func(tx *Store) error {
		res := tx.db.Model(&models.Task{}).Where("id = ?", id).Updates(columns)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.db.Where("id = ?", id).First(&task).Error
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListAcceptedMealTasks returns the accepted meal tasks of one week scope in
// creation order, so that repeated reads see ingredients in the same order.
func (s *Store) ListAcceptedMealTasks(ctx context.Context, householdID, weekStart string) ([]models.Task, error) {
	var tasks []models.Task
	err := s.run(ctx, func(db *gorm.DB) error {
		return db.Where("household_id = ? AND week_start = ? AND task_type = ? AND state = ?",
			householdID, weekStart, models.TaskTypeMeal, models.TaskStateAccepted).
			Order("created_at, id").
			Find(&tasks).Error
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

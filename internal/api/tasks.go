package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"homesync/internal/events"
	"homesync/internal/models"
	"homesync/internal/week"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createTaskRequest struct {
	Title           string             `json:"title" binding:"required"`
	Description     *string            `json:"description"`
	TaskType        string             `json:"task_type"`
	AssignedTo      *string            `json:"assigned_to"`
	DayWindow       *string            `json:"day_window"`
	TimeOfDay       *string            `json:"time_of_day"`
	DurationMinutes *int               `json:"duration_minutes"`
	WeekStart       *string            `json:"week_start"`
	Ingredients     models.Ingredients `json:"ingredients"`
}

func (s *Server) listTasks(c *gin.Context) {
	var weekStart *string
	if raw := c.Query("week_start"); raw != "" {
		w, err := week.Canonical(raw)
		if err != nil {
			s.fail(c, err)
			return
		}
		weekStart = &w
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), c.Param("id"), weekStart)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalid("%v", err))
		return
	}

	caller := userID(c)
	task := &models.Task{
		HouseholdID:     c.Param("id"),
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		TaskType:        models.TaskType(req.TaskType),
		State:           models.TaskStateProposed,
		ProposedBy:      &caller,
		AssignedTo:      req.AssignedTo,
		DayWindow:       req.DayWindow,
		TimeOfDay:       req.TimeOfDay,
		DurationMinutes: req.DurationMinutes,
		WeekStart:       req.WeekStart,
		Ingredients:     req.Ingredients,
	}
	if task.TaskType == "" {
		task.TaskType = models.TaskTypeChore
	}
	if task.Ingredients == nil {
		task.Ingredients = models.Ingredients{}
	}
	if err := validateTask(task); err != nil {
		s.fail(c, err)
		return
	}

	if err := s.store.CreateTask(c.Request.Context(), task); err != nil {
		s.fail(c, err)
		return
	}

	s.feed.Publish(events.Event{Type: events.TaskCreated, HouseholdID: task.HouseholdID, Data: task})
	c.JSON(http.StatusCreated, task)
}

func (s *Server) patchTask(c *gin.Context) {
	taskID, ok := s.pathID(c)
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, invalid("%v", err))
		return
	}
	columns, err := taskColumns(body)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(columns) == 0 {
		s.fail(c, invalid("no fields to update"))
		return
	}

	ctx := c.Request.Context()
	existing, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		s.fail(c, notFound("task", err))
		return
	}
	if _, err := s.membership(c, existing.HouseholdID); err != nil {
		s.fail(c, err)
		return
	}

	task, err := s.store.UpdateTask(ctx, taskID, columns)
	if err != nil {
		s.fail(c, notFound("task", err))
		return
	}

	s.feed.Publish(events.Event{Type: events.TaskUpdated, HouseholdID: task.HouseholdID, Data: task})
	c.JSON(http.StatusOK, task)
}

// validateTask checks the fields shared by create and patch.
func validateTask(t *models.Task) error {
	if t.Title == "" {
		return invalid("title must not be blank")
	}
	if err := validateType(t.TaskType); err != nil {
		return err
	}
	if err := validateState(t.State); err != nil {
		return err
	}
	if t.AssignedTo != nil {
		if _, err := uuid.Parse(*t.AssignedTo); err != nil {
			return invalid("assigned_to must be a UUID")
		}
	}
	if t.DayWindow != nil {
		if err := validateDayWindow(*t.DayWindow); err != nil {
			return err
		}
	}
	if t.DurationMinutes != nil && *t.DurationMinutes < 0 {
		return invalid("duration_minutes must not be negative")
	}
	if t.WeekStart != nil {
		w, err := week.Canonical(*t.WeekStart)
		if err != nil {
			return err
		}
		t.WeekStart = &w
	}
	return validateIngredients(t.Ingredients)
}

func validateType(tt models.TaskType) error {
	switch tt {
	case models.TaskTypeChore, models.TaskTypeMeal:
		return nil
	}
	return invalid("task_type must be chore or meal")
}

func validateState(st models.TaskState) error {
	switch st {
	case models.TaskStateProposed, models.TaskStateAccepted, models.TaskStateDeclined:
		return nil
	}
	return invalid("state must be proposed, accepted or declined")
}

func validateDayWindow(d string) error {
	for _, w := range models.DayWindows {
		if d == w {
			return nil
		}
	}
	return invalid("day_window must be a weekday name in lower case")
}

func validateIngredients(ings models.Ingredients) error {
	for i, ing := range ings {
		if strings.TrimSpace(ing.Name) == "" {
			return invalid("ingredient %d has no name", i)
		}
	}
	return nil
}

// taskColumns turns a PATCH body into the column updates it asks for. Fields
// that are absent stay untouched and an explicit null clears a nullable
// column. Unknown fields are ignored.
func taskColumns(body map[string]json.RawMessage) (map[string]interface{}, error) {
	columns := make(map[string]interface{})

	for field, raw := range body {
		null := bytes.Equal(bytes.TrimSpace(raw), []byte("null"))

		switch field {
		case "title":
			var v string
			if null || json.Unmarshal(raw, &v) != nil || strings.TrimSpace(v) == "" {
				return nil, invalid("title must be a non-blank string")
			}
			columns["title"] = strings.TrimSpace(v)

		case "task_type":
			var v models.TaskType
			if null || json.Unmarshal(raw, &v) != nil {
				return nil, invalid("task_type must be chore or meal")
			}
			if err := validateType(v); err != nil {
				return nil, err
			}
			columns["task_type"] = v

		case "state":
			var v models.TaskState
			if null || json.Unmarshal(raw, &v) != nil {
				return nil, invalid("state must be proposed, accepted or declined")
			}
			if err := validateState(v); err != nil {
				return nil, err
			}
			columns["state"] = v

		case "description", "time_of_day":
			v, err := nullableString(field, raw, null)
			if err != nil {
				return nil, err
			}
			columns[field] = v

		case "assigned_to":
			v, err := nullableString(field, raw, null)
			if err != nil {
				return nil, err
			}
			if v != nil {
				if _, err := uuid.Parse(*v); err != nil {
					return nil, invalid("assigned_to must be a UUID")
				}
			}
			columns[field] = v

		case "day_window":
			v, err := nullableString(field, raw, null)
			if err != nil {
				return nil, err
			}
			if v != nil {
				if err := validateDayWindow(*v); err != nil {
					return nil, err
				}
			}
			columns[field] = v

		case "week_start":
			v, err := nullableString(field, raw, null)
			if err != nil {
				return nil, err
			}
			if v != nil {
				w, err := week.Canonical(*v)
				if err != nil {
					return nil, err
				}
				v = &w
			}
			columns[field] = v

		case "duration_minutes":
			if null {
				columns[field] = nil
				continue
			}
			var v int
			if json.Unmarshal(raw, &v) != nil || v < 0 {
				return nil, invalid("duration_minutes must be a non-negative integer")
			}
			columns[field] = v

		case "ingredients":
			ings, err := models.DecodeIngredients(raw)
			if err != nil {
				return nil, err
			}
			if err := validateIngredients(ings); err != nil {
				return nil, err
			}
			columns[field] = ings
		}
	}
	return columns, nil
}

func nullableString(field string, raw json.RawMessage, null bool) (*string, error) {
	if null {
		return nil, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, invalid("%s must be a string or null", field)
	}
	return &v, nil
}

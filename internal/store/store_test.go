package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"homesync/internal/database"
	"homesync/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "store.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return New(db, 2*time.Second)
}

func strPtr(s string) *string { return &s }

func TestCreateHouseholdMakesCreatorAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	creator := uuid.NewString()

	h, err := s.CreateHousehold(ctx, "Flat 3B", creator)
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)

	got, err := s.GetHousehold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flat 3B", got.Name)

	m, err := s.GetMembership(ctx, h.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, m.Role)
}

func TestGetHouseholdNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetHousehold(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestAddMemberDuplicateIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	h, err := s.CreateHousehold(ctx, "Home", uuid.NewString())
	require.NoError(t, err)

	user := uuid.NewString()
	require.NoError(t, s.AddMember(ctx, &models.HouseholdMember{HouseholdID: h.ID, UserID: user, Role: models.RoleMember}))
	err = s.AddMember(ctx, &models.HouseholdMember{HouseholdID: h.ID, UserID: user, Role: models.RoleMember})
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestJoinHouseholdIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	creator := uuid.NewString()
	h, err := s.CreateHousehold(ctx, "Home", creator)
	require.NoError(t, err)

	user := uuid.NewString()
	first, err := s.JoinHousehold(ctx, h.ID, user)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, first.Role)

	_, err = s.JoinHousehold(ctx, h.ID, user)
	require.NoError(t, err)

	// Joining never demotes an admin.
	admin, err := s.JoinHousehold(ctx, h.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	members, err := s.ListMembers(ctx, h.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = s.JoinHousehold(ctx, uuid.NewString(), user)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestListMembershipsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := uuid.NewString()

	a, err := s.CreateHousehold(ctx, "Alpha", user)
	require.NoError(t, err)
	b, err := s.CreateHousehold(ctx, "Beta", uuid.NewString())
	require.NoError(t, err)
	_, err = s.JoinHousehold(ctx, b.ID, user)
	require.NoError(t, err)

	got, err := s.ListMembershipsForUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[string]models.UserHousehold{}
	for _, uh := range got {
		byID[uh.HouseholdID] = uh
	}
	assert.Equal(t, "Alpha", byID[a.ID].HouseholdName)
	assert.Equal(t, models.RoleAdmin, byID[a.ID].Role)
	assert.Equal(t, "Beta", byID[b.ID].HouseholdName)
	assert.Equal(t, models.RoleMember, byID[b.ID].Role)

	none, err := s.ListMembershipsForUser(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpsertProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	created, err := s.UpsertProfile(ctx, &models.Profile{ID: id, DisplayName: "Sam", Color: "#ff0000"})
	require.NoError(t, err)
	assert.Equal(t, "Sam", created.DisplayName)

	updated, err := s.UpsertProfile(ctx, &models.Profile{ID: id, DisplayName: "Samira", Color: "#00ff00"})
	require.NoError(t, err)
	assert.Equal(t, "Samira", updated.DisplayName)
	assert.Equal(t, "#00ff00", updated.Color)

	profiles, err := s.ListProfiles(ctx, []string{id, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "Samira", profiles[0].DisplayName)

	_, err = s.GetProfile(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &models.Task{
		HouseholdID: uuid.NewString(),
		Title:       "Curry",
		TaskType:    models.TaskTypeMeal,
		State:       models.TaskStateProposed,
		WeekStart:   strPtr("2024-03-04"),
		DayWindow:   strPtr("monday"),
	}
	require.NoError(t, s.CreateTask(ctx, task))
	require.NotEmpty(t, task.ID)

	updated, err := s.UpdateTask(ctx, task.ID, map[string]interface{}{
		"state":      models.TaskStateAccepted,
		"day_window": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateAccepted, updated.State)
	assert.Nil(t, updated.DayWindow)
	assert.Equal(t, "Curry", updated.Title)

	_, err = s.UpdateTask(ctx, uuid.NewString(), map[string]interface{}{"title": "x"})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestListAcceptedMealTasksFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	household := uuid.NewString()
	week := "2024-03-04"

	fixtures := []models.Task{
		{Title: "Accepted meal", TaskType: models.TaskTypeMeal, State: models.TaskStateAccepted, WeekStart: strPtr(week)},
		{Title: "Proposed meal", TaskType: models.TaskTypeMeal, State: models.TaskStateProposed, WeekStart: strPtr(week)},
		{Title: "Accepted chore", TaskType: models.TaskTypeChore, State: models.TaskStateAccepted, WeekStart: strPtr(week)},
		{Title: "Next week", TaskType: models.TaskTypeMeal, State: models.TaskStateAccepted, WeekStart: strPtr("2024-03-11")},
		{Title: "Backlog", TaskType: models.TaskTypeMeal, State: models.TaskStateAccepted},
	}
	for i := range fixtures {
		fixtures[i].HouseholdID = household
		require.NoError(t, s.CreateTask(ctx, &fixtures[i]))
	}

	got, err := s.ListAcceptedMealTasks(ctx, household, week)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Accepted meal", got[0].Title)

	all, err := s.ListTasks(ctx, household, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	weekOnly, err := s.ListTasks(ctx, household, strPtr(week))
	require.NoError(t, err)
	assert.Len(t, weekOnly, 3)
}

func TestShoppingItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	household := uuid.NewString()
	week := "2024-03-04"

	items := []models.ShoppingListItem{
		{HouseholdID: household, WeekStart: week, Name: "Milk", Category: "dairy"},
		{HouseholdID: household, WeekStart: week, Name: "Eggs", Category: "dairy"},
		{HouseholdID: household, WeekStart: "2024-03-11", Name: "Rice", Category: "grains"},
	}
	require.NoError(t, s.InsertItems(ctx, items))
	for _, it := range items {
		assert.NotEmpty(t, it.ID)
	}

	checked, err := s.SetItemChecked(ctx, items[0].ID, true)
	require.NoError(t, err)
	assert.True(t, checked.Checked)

	deleted, err := s.DeleteUncheckedItems(ctx, household, week)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := s.ListItems(ctx, household, week)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Milk", remaining[0].Name)

	other, err := s.ListItems(ctx, household, "2024-03-11")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	_, err = s.SetItemChecked(ctx, uuid.NewString(), true)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	household := uuid.NewString()
	week := "2024-03-04"
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.InsertItems(ctx, []models.ShoppingListItem{
			{HouseholdID: household, WeekStart: week, Name: "Milk", Category: "dairy"},
		}); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	items, err := s.ListItems(ctx, household, week)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExpiredContextIsTimeout(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.ListItems(ctx, uuid.NewString(), "2024-03-04")
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

func TestLockWeekScopeRequiresTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.LockWeekScope(ctx, "h", "2024-03-04"))
	assert.NoError(t, s.Transaction(ctx, func(tx *Store) error {
		return tx.LockWeekScope(ctx, "h", "2024-03-04")
	}))
}

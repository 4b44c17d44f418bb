package shopping

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"homesync/internal/database"
	"homesync/internal/events"
	"homesync/internal/models"
	"homesync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testWeek = "2024-03-04"

type recordedSync struct {
	outcome  string
	inserted int
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []recordedSync
}

func (f *fakeRecorder) RecordSync(outcome string, _ time.Duration, inserted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, recordedSync{outcome: outcome, inserted: inserted})
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fixture struct {
	store     *store.Store
	household string
	rec       *fakeRecorder
	pub       *fakePublisher
	r         *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "shopping.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	s := store.New(db, 5*time.Second)
	h, err := s.CreateHousehold(context.Background(), "Home", "user-1")
	require.NoError(t, err)

	f := &fixture{store: s, household: h.ID, rec: &fakeRecorder{}, pub: &fakePublisher{}}
	f.r = NewReconciler(s, WithRecorder(f.rec), WithPublisher(f.pub))
	return f
}

func (f *fixture) addMeal(t *testing.T, state models.TaskState, week string, ings ...models.Ingredient) {
	t.Helper()
	w := week
	task := &models.Task{
		HouseholdID: f.household,
		Title:       "Dinner",
		TaskType:    models.TaskTypeMeal,
		State:       state,
		WeekStart:   &w,
		Ingredients: ings,
	}
	require.NoError(t, f.store.CreateTask(context.Background(), task))
}

func (f *fixture) items(t *testing.T) []models.ShoppingListItem {
	t.Helper()
	items, err := f.store.ListItems(context.Background(), f.household, testWeek)
	require.NoError(t, err)
	return items
}

func find(items []models.ShoppingListItem, name string) []models.ShoppingListItem {
	var out []models.ShoppingListItem
	for _, it := range items {
		if it.Name == name {
			out = append(out, it)
		}
	}
	return out
}

func TestReconcileBuildsListFromAcceptedMeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addMeal(t, models.TaskStateAccepted, testWeek,
		models.Ingredient{Name: "Tomato", Quantity: qty(2), Category: "produce"})
	f.addMeal(t, models.TaskStateAccepted, testWeek,
		models.Ingredient{Name: "tomato", Quantity: qty(3)},
		models.Ingredient{Name: "Milk", Quantity: qty(1), Unit: unit("L"), Category: "dairy"},
		models.Ingredient{Name: "Milk"})
	f.addMeal(t, models.TaskStateProposed, testWeek, models.Ingredient{Name: "Caviar"})
	f.addMeal(t, models.TaskStateAccepted, "2024-03-11", models.Ingredient{Name: "Lentils"})

	items, err := f.r.Reconcile(ctx, f.household, testWeek)
	require.NoError(t, err)
	require.Len(t, items, 3)

	tomato := find(items, "Tomato")
	require.Len(t, tomato, 1)
	assert.Equal(t, 5.0, *tomato[0].Quantity)
	assert.Equal(t, "produce", tomato[0].Category)
	assert.False(t, tomato[0].Checked)

	milk := find(items, "Milk")
	require.Len(t, milk, 2, "Milk in L and Milk without unit stay separate")

	assert.Empty(t, find(items, "Caviar"), "proposed meals are ignored")
	assert.Empty(t, find(items, "Lentils"), "other weeks are ignored")

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.ShoppingListSynced, f.pub.events[0].Type)
	assert.Equal(t, testWeek, f.pub.events[0].WeekStart)
	assert.Equal(t, []recordedSync{{outcome: OutcomeOK, inserted: 3}}, f.rec.runs)
}

func TestReconcileLeavesCheckedItemsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checked := []models.ShoppingListItem{{
		HouseholdID: f.household, WeekStart: testWeek, Name: "Milk",
		Quantity: qty(1), Unit: unit("L"), Category: "dairy",
	}}
	require.NoError(t, f.store.InsertItems(ctx, checked))
	_, err := f.store.SetItemChecked(ctx, checked[0].ID, true)
	require.NoError(t, err)

	f.addMeal(t, models.TaskStateAccepted, testWeek,
		models.Ingredient{Name: "milk", Quantity: qty(2), Unit: unit("ml")},
		models.Ingredient{Name: "Bread"})

	items, err := f.r.Reconcile(ctx, f.household, testWeek)
	require.NoError(t, err)
	require.Len(t, items, 2)

	milk := find(items, "Milk")
	require.Len(t, milk, 1)
	assert.Equal(t, checked[0].ID, milk[0].ID)
	assert.True(t, milk[0].Checked)
	assert.Equal(t, 1.0, *milk[0].Quantity, "checked rows are not rewritten")
	assert.Empty(t, find(items, "milk"), "a checked name suppresses regenerated lines")
	assert.Len(t, find(items, "Bread"), 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMeal(t, models.TaskStateAccepted, testWeek,
		models.Ingredient{Name: "Rice", Quantity: qty(500), Unit: unit("g"), Category: "grains"},
		models.Ingredient{Name: "Onion", Quantity: qty(2)})

	first, err := f.r.Reconcile(ctx, f.household, testWeek)
	require.NoError(t, err)
	second, err := f.r.Reconcile(ctx, f.household, testWeek)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	type line struct {
		name, unit, category string
		qty                  float64
	}
	summarize := func(items []models.ShoppingListItem) map[string]line {
		out := make(map[string]line)
		for _, it := range items {
			l := line{name: it.Name, category: it.Category}
			if it.Unit != nil {
				l.unit = *it.Unit
			}
			if it.Quantity != nil {
				l.qty = *it.Quantity
			}
			out[it.Name] = l
		}
		return out
	}
	assert.Equal(t, summarize(first), summarize(second))
}

func TestReconcileWithNoMealsClearsUncheckedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := []models.ShoppingListItem{
		{HouseholdID: f.household, WeekStart: testWeek, Name: "Old", Category: "other"},
		{HouseholdID: f.household, WeekStart: testWeek, Name: "Kept", Category: "other"},
	}
	require.NoError(t, f.store.InsertItems(ctx, stale))
	_, err := f.store.SetItemChecked(ctx, stale[1].ID, true)
	require.NoError(t, err)

	items, err := f.r.Reconcile(ctx, f.household, testWeek)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Kept", items[0].Name)
}

func TestReconcileKeepsKnownQuantity(t *testing.T) {
	f := newFixture(t)
	f.addMeal(t, models.TaskStateAccepted, testWeek, models.Ingredient{Name: "Eggs", Quantity: qty(6)})
	f.addMeal(t, models.TaskStateAccepted, testWeek, models.Ingredient{Name: "eggs"})

	items, err := f.r.Reconcile(context.Background(), f.household, testWeek)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Quantity)
	assert.Equal(t, 6.0, *items[0].Quantity)
}

func TestReconcileMalformedIngredientChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addMeal(t, models.TaskStateAccepted, testWeek, models.Ingredient{Name: "Flour"})
	before, err := f.r.Reconcile(ctx, f.household, testWeek)
	require.NoError(t, err)
	require.Len(t, before, 1)

	f.addMeal(t, models.TaskStateAccepted, testWeek, models.Ingredient{Name: "Sugar"}, models.Ingredient{Name: ""})

	_, err = f.r.Reconcile(ctx, f.household, testWeek)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedIngredient), "got %v", err)

	after := f.items(t)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID, "the failed run must not touch the list")

	assert.Len(t, f.pub.events, 1, "failed runs are not announced")
	assert.Equal(t, OutcomeMalformed, f.rec.runs[len(f.rec.runs)-1].outcome)
}

func TestReconcileTimesOut(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.r.Reconcile(ctx, f.household, testWeek)
	require.Error(t, err)
	assert.Equal(t, OutcomeTimeout, f.rec.runs[0].outcome)
}

func TestConcurrentReconcileLeavesNoDuplicates(t *testing.T) {
	// The fixture's pool is closed during cleanup, after this check runs.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	f := newFixture(t)
	f.addMeal(t, models.TaskStateAccepted, testWeek,
		models.Ingredient{Name: "Tomato", Quantity: qty(2)},
		models.Ingredient{Name: "Milk", Unit: unit("L")},
		models.Ingredient{Name: "Milk"})

	// A second reconciler has its own in-process locks, like another replica.
	// On SQLite the single pooled connection is what keeps the two apart; the
	// PostgreSQL advisory lock that does this job in production is not
	// exercised here. TestReconcileWaitsForScopeLock covers the in-process lock.
	other := NewReconciler(f.store)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		r := f.r
		if i%2 == 1 {
			r = other
		}
		wg.Add(1)
		go func(r *Reconciler) {
			defer wg.Done()
			_, err := r.Reconcile(context.Background(), f.household, testWeek)
			errs <- err
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	for _, it := range f.items(t) {
		u := "<none>"
		if it.Unit != nil {
			u = *it.Unit
		}
		k := fmt.Sprintf("%s|%s", it.Name, u)
		assert.False(t, seen[k], "duplicate line %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, 3)
}

func TestReconcileWaitsForScopeLock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	f := newFixture(t)
	f.addMeal(t, models.TaskStateAccepted, testWeek, models.Ingredient{Name: "Rice"})

	release, err := f.r.locks.Acquire(context.Background(), scopeKey(f.household, testWeek))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.r.Reconcile(context.Background(), f.household, testWeek)
		done <- err
	}()

	assert.Never(t, func() bool { return len(done) > 0 }, 100*time.Millisecond, 5*time.Millisecond,
		"a run must not start while the scope is held")
	assert.Empty(t, f.items(t))

	// Callers give up when their deadline passes first.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.r.Reconcile(ctx, f.household, testWeek)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	// Other weeks are not blocked.
	_, err = f.r.Reconcile(context.Background(), f.household, "2024-03-11")
	require.NoError(t, err)

	release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconcile did not resume after the scope was released")
	}
	assert.Len(t, f.items(t), 1)
	assert.Equal(t, 0, f.r.locks.Len())
}

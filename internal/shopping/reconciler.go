// Package shopping derives a household's weekly shopping list from its
// accepted meal tasks.
package shopping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homesync/internal/events"
	"homesync/internal/models"
	"homesync/internal/store"

	"go.uber.org/zap"
)

// Sync outcomes as recorded by a Recorder.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Recorder observes reconciliation runs.
type Recorder interface {
	RecordSync(outcome string, d time.Duration, inserted int)
}

// Reconciler rebuilds the unchecked part of a week's shopping list.
type Reconciler struct {
	store     *store.Store
	locks     *ScopeLocks
	logger    *zap.Logger
	recorder  Recorder
	publisher events.Publisher
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithRecorder reports every run to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// WithPublisher announces every successful run on p.
func WithPublisher(p events.Publisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

// NewReconciler returns a Reconciler writing through s.
func NewReconciler(s *store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  s,
		locks:  NewScopeLocks(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile regenerates the unchecked items of (householdID, weekStart) from
// the accepted meal tasks of that week and returns the resulting list.
//
// Checked items are never touched, and an aggregated line whose name matches a
// checked item case-insensitively is left out. The delete and the inserts
// commit together: on any failure the list is exactly as it was. Concurrent
// calls for the same scope are serialized.
func (r *Reconciler) Reconcile(ctx context.Context, householdID, weekStart string) ([]models.ShoppingListItem, error) {
	start := time.Now()
	scope := scopeKey(householdID, weekStart)

	release, err := r.locks.Acquire(ctx, scope)
	if err != nil {
		r.finish(householdID, weekStart, start, 0, err)
		return nil, fmt.Errorf("waiting for shopping list %s: %w", scope, err)
	}
	defer release()

	var (
		result   []models.ShoppingListItem
		inserted int
		deleted  int64
	)
	err = r.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.LockWeekScope(ctx, householdID, weekStart); err != nil {
			return err
		}

		tasks, err := tx.ListAcceptedMealTasks(ctx, householdID, weekStart)
		if err != nil {
			return err
		}
		aggregated, err := Aggregate(tasks)
		if err != nil {
			return err
		}

		checked, err := tx.ListCheckedItems(ctx, householdID, weekStart)
		if err != nil {
			return err
		}
		taken := make(map[string]struct{}, len(checked))
		for _, it := range checked {
			taken[strings.ToLower(it.Name)] = struct{}{}
		}

		if deleted, err = tx.DeleteUncheckedItems(ctx, householdID, weekStart); err != nil {
			return err
		}

		rows := make([]models.ShoppingListItem, 0, len(aggregated))
		for _, it := range aggregated {
			if _, ok := taken[strings.ToLower(it.Name)]; ok {
				continue
			}
			rows = append(rows, models.ShoppingListItem{
				HouseholdID: householdID,
				WeekStart:   weekStart,
				Name:        it.Name,
				Quantity:    it.Quantity,
				Unit:        it.Unit,
				Category:    it.Category,
			})
		}
		if err := tx.InsertItems(ctx, rows); err != nil {
			return err
		}
		inserted = len(rows)

		result, err = tx.ListItems(ctx, householdID, weekStart)
		return err
	})
	if err != nil {
		r.finish(householdID, weekStart, start, 0, err)
		return nil, err
	}

	r.finish(householdID, weekStart, start, inserted, nil)
	r.logger.Info("shopping list synced",
		zap.String("household_id", householdID),
		zap.String("week_start", weekStart),
		zap.Int64("removed", deleted),
		zap.Int("inserted", inserted),
		zap.Int("items", len(result)))

	if r.publisher != nil {
		r.publisher.Publish(events.Event{
			Type:        events.ShoppingListSynced,
			HouseholdID: householdID,
			WeekStart:   weekStart,
			Data:        result,
		})
	}
	return result, nil
}

func (r *Reconciler) finish(householdID, weekStart string, start time.Time, inserted int, err error) {
	outcome := outcomeOf(err)
	if r.recorder != nil {
		r.recorder.RecordSync(outcome, time.Since(start), inserted)
	}
	if err != nil {
		r.logger.Warn("shopping list sync failed",
			zap.String("household_id", householdID),
			zap.String("week_start", weekStart),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
}

func scopeKey(householdID, weekStart string) string {
	return householdID + "/" + weekStart
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrMalformedIngredient):
		return OutcomeMalformed
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

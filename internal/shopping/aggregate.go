package shopping

import (
	"errors"
	"fmt"
	"strings"

	"homesync/internal/models"
)

// ErrMalformedIngredient is returned when an accepted meal carries an
// ingredient without a name. A partial list would under-report what to buy,
// so the whole sync fails instead.
var ErrMalformedIngredient = errors.New("malformed ingredient")

// Item is one aggregated shopping list line before it is persisted.
type Item struct {
	Name     string
	Quantity *float64
	Unit     *string
	Category string
}

// key identifies an aggregated line. A missing unit is its own key and never
// merges with any present unit, including the empty string.
type key struct {
	name    string
	unit    string
	hasUnit bool
}

func keyOf(ing models.Ingredient) key {
	k := key{name: strings.ToLower(ing.Name)}
	if ing.Unit != nil {
		k.unit = *ing.Unit
		k.hasUnit = true
	}
	return k
}

// Aggregate merges the ingredients of tasks by lowercased name and unit.
// Quantities are summed; a missing quantity never turns a known one into
// null, and two missing quantities stay missing. Name, unit and category come
// from the first ingredient seen for a key. The result keeps first-seen order.
func Aggregate(tasks []models.Task) ([]Item, error) {
	index := make(map[key]int)
	var items []Item

	for _, task := range tasks {
		for i, ing := range task.Ingredients {
			if strings.TrimSpace(ing.Name) == "" {
				return nil, fmt.Errorf("%w: task %s ingredient %d has no name", ErrMalformedIngredient, task.ID, i)
			}

			k := keyOf(ing)
			if pos, ok := index[k]; ok {
				items[pos].add(ing.Quantity)
				continue
			}

			index[k] = len(items)
			items = append(items, Item{
				Name:     ing.Name,
				Quantity: cloneFloat(ing.Quantity),
				Unit:     cloneString(ing.Unit),
				Category: categoryOf(ing),
			})
		}
	}
	return items, nil
}

func (it *Item) add(q *float64) {
	switch {
	case q == nil:
	case it.Quantity == nil:
		it.Quantity = cloneFloat(q)
	default:
		sum := *it.Quantity + *q
		it.Quantity = &sum
	}
}

func categoryOf(ing models.Ingredient) string {
	if ing.Category == "" {
		return models.DefaultCategory
	}
	return ing.Category
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

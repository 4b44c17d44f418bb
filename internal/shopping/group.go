package shopping

import "homesync/internal/models"

// CategoryGroup is a run of items sharing a display category.
type CategoryGroup struct {
	Category string                    `json:"category"`
	Items    []models.ShoppingListItem `json:"items"`
}

// GroupByCategory groups items in the fixed display order. Items with a
// category outside that order are shown under "other". Empty groups are
// omitted and items keep their relative order.
func GroupByCategory(items []models.ShoppingListItem) []CategoryGroup {
	known := make(map[string]bool, len(models.CategoryOrder))
	for _, c := range models.CategoryOrder {
		known[c] = true
	}

	byCategory := make(map[string][]models.ShoppingListItem)
	for _, it := range items {
		c := it.Category
		if !known[c] {
			c = models.DefaultCategory
		}
		byCategory[c] = append(byCategory[c], it)
	}

	groups := []CategoryGroup{}
	for _, c := range models.CategoryOrder {
		if len(byCategory[c]) == 0 {
			continue
		}
		groups = append(groups, CategoryGroup{Category: c, Items: byCategory[c]})
	}
	return groups
}

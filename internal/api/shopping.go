package api

import (
	"net/http"

	"homesync/internal/events"
	"homesync/internal/shopping"
	"homesync/internal/week"

	"github.com/gin-gonic/gin"
)

type patchItemRequest struct {
	Checked *bool `json:"checked" binding:"required"`
}

// weekParam reads the mandatory week_start query parameter.
func (s *Server) weekParam(c *gin.Context) (string, bool) {
	raw := c.Query("week_start")
	if raw == "" {
		s.fail(c, invalid("week_start is required"))
		return "", false
	}
	w, err := week.Canonical(raw)
	if err != nil {
		s.fail(c, err)
		return "", false
	}
	return w, true
}

func (s *Server) getShoppingList(c *gin.Context) {
	weekStart, ok := s.weekParam(c)
	if !ok {
		return
	}
	group := c.Query("group")
	if group != "" && group != "category" {
		s.fail(c, invalid("group must be category"))
		return
	}

	items, err := s.store.ListItems(c.Request.Context(), c.Param("id"), weekStart)
	if err != nil {
		s.fail(c, err)
		return
	}
	if group == "category" {
		c.JSON(http.StatusOK, shopping.GroupByCategory(items))
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) syncShoppingList(c *gin.Context) {
	weekStart, ok := s.weekParam(c)
	if !ok {
		return
	}

	items, err := s.reconciler.Reconcile(c.Request.Context(), c.Param("id"), weekStart)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) patchShoppingItem(c *gin.Context) {
	itemID, ok := s.pathID(c)
	if !ok {
		return
	}

	var req patchItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalid("checked is required"))
		return
	}

	ctx := c.Request.Context()
	existing, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		s.fail(c, notFound("item", err))
		return
	}
	if _, err := s.membership(c, existing.HouseholdID); err != nil {
		s.fail(c, err)
		return
	}

	item, err := s.store.SetItemChecked(ctx, itemID, *req.Checked)
	if err != nil {
		s.fail(c, notFound("item", err))
		return
	}

	s.feed.Publish(events.Event{
		Type:        events.ShoppingItemUpdated,
		HouseholdID: item.HouseholdID,
		WeekStart:   item.WeekStart,
		Data:        item,
	})
	c.JSON(http.StatusOK, item)
}

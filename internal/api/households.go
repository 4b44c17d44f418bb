package api

import (
	"net/http"
	"strings"

	"homesync/internal/events"
	"homesync/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createHouseholdRequest struct {
	Name string `json:"name" binding:"required"`
}

type addMemberRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	Role   string  `json:"role"`
	Color  *string `json:"color"`
}

type profileRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Color       string `json:"color" binding:"required"`
}

func (s *Server) createHousehold(c *gin.Context) {
	var req createHouseholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalid("%v", err))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.fail(c, invalid("name must not be blank"))
		return
	}

	household, err := s.store.CreateHousehold(c.Request.Context(), name, userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, household)
}

func (s *Server) getHousehold(c *gin.Context) {
	ctx := c.Request.Context()
	householdID := c.Param("id")

	household, err := s.store.GetHousehold(ctx, householdID)
	if err != nil {
		s.fail(c, notFound("household", err))
		return
	}
	members, err := s.store.ListMembers(ctx, householdID)
	if err != nil {
		s.fail(c, err)
		return
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	profiles, err := s.store.ListProfiles(ctx, ids)
	if err != nil {
		s.fail(c, err)
		return
	}
	byID := make(map[string]models.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	detail := models.HouseholdDetail{Household: *household, Members: make([]models.MemberView, 0, len(members))}
	for _, m := range members {
		view := models.MemberView{
			HouseholdID: m.HouseholdID,
			UserID:      m.UserID,
			Role:        m.Role,
			Color:       m.Color,
		}
		if p, ok := byID[m.UserID]; ok {
			name := p.DisplayName
			view.DisplayName = &name
			if p.Color != "" {
				color := p.Color
				view.Color = &color
			}
		}
		detail.Members = append(detail.Members, view)
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) addMember(c *gin.Context) {
	if currentMember(c).Role != models.RoleAdmin {
		s.fail(c, errNotAdmin)
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalid("%v", err))
		return
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		s.fail(c, invalid("user_id must be a UUID"))
		return
	}
	role := models.Role(req.Role)
	switch role {
	case "":
		role = models.RoleMember
	case models.RoleAdmin, models.RoleMember:
	default:
		s.fail(c, invalid("role must be admin or member"))
		return
	}

	member := &models.HouseholdMember{
		HouseholdID: c.Param("id"),
		UserID:      req.UserID,
		Role:        role,
		Color:       req.Color,
	}
	if err := s.store.AddMember(c.Request.Context(), member); err != nil {
		s.fail(c, err)
		return
	}

	s.feed.Publish(events.Event{Type: events.MemberAdded, HouseholdID: member.HouseholdID, Data: member})
	c.JSON(http.StatusCreated, member)
}

func (s *Server) joinHousehold(c *gin.Context) {
	householdID, ok := s.pathID(c)
	if !ok {
		return
	}

	member, err := s.store.JoinHousehold(c.Request.Context(), householdID, userID(c))
	if err != nil {
		s.fail(c, notFound("household", err))
		return
	}

	s.feed.Publish(events.Event{Type: events.MemberAdded, HouseholdID: householdID, Data: member})
	c.JSON(http.StatusOK, member)
}

func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.store.GetProfile(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, notFound("profile", err))
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) putProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalid("%v", err))
		return
	}

	profile, err := s.store.UpsertProfile(c.Request.Context(), &models.Profile{
		ID:          userID(c),
		DisplayName: req.DisplayName,
		Color:       req.Color,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) listMyHouseholds(c *gin.Context) {
	households, err := s.store.ListMembershipsForUser(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, households)
}

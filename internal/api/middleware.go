package api

import (
	"errors"

	"homesync/internal/auth"
	"homesync/internal/logging"
	"homesync/internal/models"
	"homesync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	claimsKey     = "homesync.claims"
	membershipKey = "homesync.membership"
)

// authenticate verifies the bearer token. Browsers cannot set headers on a
// websocket handshake, so upgrade requests may pass the token as access_token.
func (s *Server) authenticate(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok && websocket.IsWebSocketUpgrade(c.Request) {
		token = c.Query("access_token")
		ok = token != ""
	}
	if !ok {
		s.fail(c, errMissingToken)
		return
	}

	claims, err := s.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Set(claimsKey, claims)
	c.Set(logging.UserKey, claims.UserID())
	c.Next()
}

// requireMember admits the caller only if they belong to the household named
// by the :id path parameter.
func (s *Server) requireMember(c *gin.Context) {
	householdID, ok := s.pathID(c)
	if !ok {
		return
	}

	member, err := s.membership(c, householdID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(membershipKey, member)
	c.Next()
}

// membership returns the caller's membership of householdID. A household
// that does not exist is reported as not found, one the caller is not part of
// as forbidden.
func (s *Server) membership(c *gin.Context, householdID string) (*models.HouseholdMember, error) {
	ctx := c.Request.Context()
	member, err := s.store.GetMembership(ctx, householdID, userID(c))
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.GetHousehold(ctx, householdID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("household", err)
		}
		return nil, err
	}
	return nil, errNotMember
}

// pathID validates the :id path parameter and writes a 400 when it is not a
// UUID.
func (s *Server) pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		s.fail(c, invalid("invalid id %q", id))
		return "", false
	}
	return id, true
}

func userID(c *gin.Context) string {
	return c.MustGet(claimsKey).(*auth.Claims).UserID()
}

func currentMember(c *gin.Context) *models.HouseholdMember {
	return c.MustGet(membershipKey).(*models.HouseholdMember)
}

// abortJSON ends the request with a JSON body.
func abortJSON(c *gin.Context, status int, body interface{}) {
	c.JSON(status, body)
	c.Abort()
}

package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// serveEvents upgrades the request to a websocket carrying the household's
// change feed. On a failed upgrade the upgrader has already answered.
func (s *Server) serveEvents(c *gin.Context) {
	if err := s.feed.Serve(c.Writer, c.Request, c.Param("id")); err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		c.Abort()
	}
}

package api

import (
	"github.com/gin-gonic/gin"
)

// createSession handles POST /api/v1/sessions
func (s *Server) createSession(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Name   string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	sess, err := s.facade.CreateSession(c.Request.Context(), req.UserID, req.Name).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	CreatedResponse(c, "session created", sess)
}

// generateSummary handles GET /api/v1/sessions/:id/summary
func (s *Server) generateSummary(c *gin.Context) {
	summary, err := s.facade.GenerateSummary(c.Request.Context(), c.Param("id")).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "summary generated", summary)
}

// crossSessionSearch handles GET /api/v1/sessions/search
func (s *Server) crossSessionSearch(c *gin.Context) {
	userID := c.Query("user_id")
	keywords := splitQuery(c.Query("q"))

	sessions, err := s.facade.CrossSessionSearch(c.Request.Context(), userID, keywords).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "sessions found", sessions)
}

// deleteSession handles DELETE /api/v1/sessions/:id
func (s *Server) deleteSession(c *gin.Context) {
	deleteMemories := c.Query("delete_memories") == "true"

	_, err := s.facade.DeleteSession(c.Request.Context(), c.Param("id"), deleteMemories).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "session deleted", gin.H{"id": c.Param("id")})
}

// sessionAnalytics handles GET /api/v1/sessions/analytics
func (s *Server) sessionAnalytics(c *gin.Context) {
	analytics, err := s.facade.SessionAnalytics(c.Request.Context(), c.Query("user_id")).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "analytics computed", analytics)
}

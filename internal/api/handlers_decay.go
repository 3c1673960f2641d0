package api

import (
	"github.com/gin-gonic/gin"
)

// runDecay handles POST /api/v1/decay/run
func (s *Server) runDecay(c *gin.Context) {
	stats, err := s.facade.RunDecay(c.Request.Context()).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "decay run completed", stats)
}

// decayRecommendations handles GET /api/v1/decay/recommendations
func (s *Server) decayRecommendations(c *gin.Context) {
	rec, err := s.facade.DecayRecommendations(c.Request.Context()).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "recommendations computed", rec)
}

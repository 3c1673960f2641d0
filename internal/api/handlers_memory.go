package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindcache/mindcache/internal/model"
)

// createMemoryRequest is the wire shape for POST /memories.
type createMemoryRequest struct {
	UserID         string            `json:"user_id" binding:"required"`
	SessionID      string            `json:"session_id" binding:"required"`
	Content        string            `json:"content" binding:"required"`
	Importance     float32           `json:"importance"`
	TTLHours       *int              `json:"ttl_hours"`
	Metadata       map[string]string `json:"metadata"`
	Embedding      []float32         `json:"embedding"`
	EmbeddingModel string            `json:"embedding_model"`
}

// createMemory handles POST /api/v1/memories
func (s *Server) createMemory(c *gin.Context) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	id, err := s.facade.Save(c.Request.Context(), model.Memory{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		Content:        req.Content,
		Importance:     req.Importance,
		TTLHours:       req.TTLHours,
		Metadata:       req.Metadata,
		Embedding:      req.Embedding,
		EmbeddingModel: req.EmbeddingModel,
	}).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}

	CreatedResponse(c, "memory stored", gin.H{"id": id})
}

// createMemoryBatch handles POST /api/v1/memories/batch
func (s *Server) createMemoryBatch(c *gin.Context) {
	var req struct {
		Memories    []createMemoryRequest `json:"memories" binding:"required"`
		FailOnError bool                  `json:"fail_on_error"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	memories := make([]model.Memory, len(req.Memories))
	for i, m := range req.Memories {
		memories[i] = model.Memory{
			UserID:         m.UserID,
			SessionID:      m.SessionID,
			Content:        m.Content,
			Importance:     m.Importance,
			TTLHours:       m.TTLHours,
			Metadata:       m.Metadata,
			Embedding:      m.Embedding,
			EmbeddingModel: m.EmbeddingModel,
		}
	}

	result, err := s.facade.SaveBatch(c.Request.Context(), memories, req.FailOnError).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}

	SuccessResponse(c, "batch processed", result)
}

// getMemory handles GET /api/v1/memories/:id
func (s *Server) getMemory(c *gin.Context) {
	mem, err := s.facade.Get(c.Request.Context(), c.Param("id")).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	if mem == nil {
		NotFoundError(c, "memory not found")
		return
	}
	SuccessResponse(c, "memory retrieved", mem)
}

// recallMemories handles GET /api/v1/memories
func (s *Server) recallMemories(c *gin.Context) {
	f := model.Filter{
		UserID:    c.Query("user_id"),
		SessionID: c.Query("session_id"),
		Limit:     clampLimit(parseIntQuery(c, "limit", 50), 50, 1000),
		Offset:    parseIntQuery(c, "offset", 0),
	}

	resp, err := s.facade.Recall(c.Request.Context(), f).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "memories retrieved", resp)
}

// searchMemories handles GET /api/v1/memories/search
func (s *Server) searchMemories(c *gin.Context) {
	f := model.Filter{
		UserID:   c.Query("user_id"),
		Keywords: splitQuery(c.Query("q")),
		Limit:    clampLimit(parseIntQuery(c, "limit", 10), 10, 1000),
		Offset:   parseIntQuery(c, "offset", 0),
	}

	resp, err := s.facade.Recall(c.Request.Context(), f).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "search completed", resp)
}

// searchSimilarMemories handles POST /api/v1/memories/search/similar
func (s *Server) searchSimilarMemories(c *gin.Context) {
	var req struct {
		Embedding      []float32 `json:"embedding" binding:"required"`
		EmbeddingModel string    `json:"embedding_model"`
		Limit          int       `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	modelName := req.EmbeddingModel
	if modelName == "" {
		modelName = "default"
	}

	results, err := s.facade.SearchSimilar(c.Request.Context(), req.Embedding, modelName, req.Limit).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "similarity search completed", results)
}

func splitQuery(q string) []string {
	var out []string
	var cur []rune
	for _, r := range q {
		if r == ' ' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

// updateMemory handles PUT /api/v1/memories/:id
func (s *Server) updateMemory(c *gin.Context) {
	var req struct {
		Content     *string           `json:"content"`
		Importance  *float32          `json:"importance"`
		Metadata    map[string]string `json:"metadata"`
		TTLHours    *int              `json:"ttl_hours"`
		TTLHoursSet bool              `json:"ttl_hours_set"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	patch := model.MemoryUpdate{
		Content:     req.Content,
		Importance:  req.Importance,
		Metadata:    req.Metadata,
		TTLHours:    req.TTLHours,
		TTLHoursSet: req.TTLHoursSet,
	}

	mem, err := s.facade.UpdateMemory(c.Request.Context(), c.Param("id"), patch).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "memory updated", mem)
}

// deleteMemory handles DELETE /api/v1/memories/:id
func (s *Server) deleteMemory(c *gin.Context) {
	deleted, err := s.facade.DeleteMemory(c.Request.Context(), c.Param("id")).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	if !deleted {
		ErrorResponse(c, http.StatusNotFound, "memory not found")
		return
	}
	SuccessResponse(c, "memory deleted", gin.H{"id": c.Param("id"), "status": "deleted"})
}

// exportMemories handles GET /api/v1/memories/export
func (s *Server) exportMemories(c *gin.Context) {
	memories, err := s.facade.Export(c.Request.Context(), c.Query("user_id")).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "export complete", memories)
}

// memoryStats handles GET /api/v1/memories/stats
func (s *Server) memoryStats(c *gin.Context) {
	stats, err := s.facade.Stats(c.Request.Context(), c.Query("user_id")).Wait()
	if err != nil {
		fromServiceError(c, err)
		return
	}
	SuccessResponse(c, "stats computed", stats)
}

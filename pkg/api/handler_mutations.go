package api

import (
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/dndtracker/dndtracker/pkg/state"
)

// ApplyActionRequest is the body for POST /api/encounters/:id/actions.
type ApplyActionRequest struct {
	Token  string         `json:"token"`
	Action map[string]any `json:"action"`
}

// AppendRollRequest is the body for POST /api/encounters/:id/rolls.
type AppendRollRequest struct {
	Token string         `json:"token"`
	Roll  map[string]any `json:"roll"`
}

// AppendChatRequest is the body for POST /api/encounters/:id/chat.
type AppendChatRequest struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// applyActionHandler handles POST /api/encounters/:id/actions. HOST only.
func (s *Server) applyActionHandler(c *gin.Context) {
	var req ApplyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Token == "" {
		abortWithValidation(c, "token", "is required")
		return
	}
	if req.Action == nil {
		abortWithValidation(c, "action", "is required")
		return
	}

	st, err := s.commitAndBroadcast(c, func() (*state.State, error) {
		return s.store.ApplyAction(c.Request.Context(), c.Param("id"), req.Token, req.Action)
	})
	if err != nil {
		abortWithStoreError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, &StateResponse{State: st})
}

// appendRollHandler handles POST /api/encounters/:id/rolls. Any valid role.
func (s *Server) appendRollHandler(c *gin.Context) {
	var req AppendRollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Token == "" {
		abortWithValidation(c, "token", "is required")
		return
	}
	if req.Roll == nil {
		abortWithValidation(c, "roll", "is required")
		return
	}

	st, err := s.commitAndBroadcast(c, func() (*state.State, error) {
		return s.store.AppendRoll(c.Request.Context(), c.Param("id"), req.Token, req.Roll)
	})
	if err != nil {
		abortWithStoreError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, &StateResponse{State: st})
}

// appendChatHandler handles POST /api/encounters/:id/chat. Any valid role.
func (s *Server) appendChatHandler(c *gin.Context) {
	var req AppendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Token == "" {
		abortWithValidation(c, "token", "is required")
		return
	}
	if req.Message == "" || utf8.RuneCountInString(req.Message) > maxMessageLength {
		abortWithValidation(c, "message", "must be between 1 and 1000 characters")
		return
	}

	st, err := s.commitAndBroadcast(c, func() (*state.State, error) {
		return s.store.AppendChat(c.Request.Context(), c.Param("id"), req.Token, req.Message)
	})
	if err != nil {
		abortWithStoreError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, &StateResponse{State: st})
}

// commitAndBroadcast runs a store mutation and pushes the committed state to
// every subscriber of the encounter. The encounter's ordering lock is held
// from commit through broadcast: two racing mutations cannot publish their
// versions out of order, so subscribers observe strictly increasing versions.
func (s *Server) commitAndBroadcast(c *gin.Context, mutate func() (*state.State, error)) (*state.State, error) {
	encounterID := c.Param("id")

	lock := s.commitLock(encounterID)
	lock.Lock()
	defer lock.Unlock()

	st, err := mutate()
	if err != nil {
		return nil, err
	}
	if s.hub != nil && st != nil {
		s.hub.BroadcastState(encounterID, *st)
	}
	return st, nil
}

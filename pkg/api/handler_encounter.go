package api

import (
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/dndtracker/dndtracker/pkg/auth"
	"github.com/dndtracker/dndtracker/pkg/state"
)

// CreateEncounterRequest is the body for POST /api/encounters.
type CreateEncounterRequest struct {
	Name string `json:"name"`
}

// CreateEncounterResponse returns the new id and the two raw tokens. The raw
// tokens are shown exactly once; only hashes are stored.
type CreateEncounterResponse struct {
	EncounterID string `json:"encounter_id"`
	HostToken   string `json:"host_token"`
	PlayerToken string `json:"player_token"`
}

// StateResponse wraps the committed state for every read and mutation reply.
type StateResponse struct {
	State *state.State `json:"state"`
}

// createEncounterHandler handles POST /api/encounters.
func (s *Server) createEncounterHandler(c *gin.Context) {
	var req CreateEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" || utf8.RuneCountInString(req.Name) > maxNameLength {
		abortWithValidation(c, "name", "must be between 1 and 200 characters")
		return
	}

	hostToken, err := auth.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	playerToken, err := auth.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	created, err := s.store.CreateEncounter(c.Request.Context(), req.Name, hostToken, playerToken)
	if err != nil {
		abortWithStoreError(c, err, false)
		return
	}

	slog.Info("Created encounter", "encounter_id", created.EncounterID, "name", req.Name)
	c.JSON(http.StatusOK, &CreateEncounterResponse{
		EncounterID: created.EncounterID,
		HostToken:   created.HostToken,
		PlayerToken: created.PlayerToken,
	})
}

// getEncounterHandler handles GET /api/encounters/:id?token=…
func (s *Server) getEncounterHandler(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		abortWithValidation(c, "token", "is required")
		return
	}

	st, err := s.store.GetState(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		abortWithStoreError(c, err, true)
		return
	}
	c.JSON(http.StatusOK, &StateResponse{State: st})
}

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dndtracker/dndtracker/pkg/store"
)

// Length limits enforced at the command surface, not the store. Limits count
// characters, not bytes, so multibyte text is not penalized.
const (
	maxNameLength    = 200
	maxMessageLength = 1000
)

// abortWithStoreError maps store-layer errors to HTTP responses. On reads an
// invalid token is indistinguishable from an unknown encounter (404) so ids
// cannot be probed; on mutations it surfaces as 403.
func abortWithStoreError(c *gin.Context, err error, read bool) {
	var validErr *store.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validErr.Error()})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "encounter not found or token invalid"})
		return
	}
	if errors.Is(err, store.ErrUnauthorized) {
		if read {
			c.JSON(http.StatusNotFound, gin.H{"error": "encounter not found or token invalid"})
		} else {
			c.JSON(http.StatusForbidden, gin.H{"error": "token invalid"})
		}
		return
	}
	if errors.Is(err, store.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": "host token required"})
		return
	}

	// Store failure: the mutation was not committed and nothing is broadcast.
	slog.Error("Unexpected store error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func abortWithValidation(c *gin.Context, field, message string) {
	verr := store.NewValidationError(field, message)
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error()})
}

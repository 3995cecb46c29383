package handlers

import (
	"errors"
	"net/http"

	"quickquiz/logger"
	"quickquiz/services"

	"github.com/gin-gonic/gin"
)

// respondError writes the {error: message} envelope for a service error.
// Anything unrecognised is logged and reported as a 500 without detail.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var ve *services.ValidationError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, services.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Quiz not found"})
	default:
		log.WithField("path", c.Request.URL.Path).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func identity(c *gin.Context) services.Identity {
	return services.UserIdentity(c.GetString("user_id"))
}

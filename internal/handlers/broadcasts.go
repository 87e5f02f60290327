package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/middleware"
	"github.com/mossy-p/livestream-signaling/internal/models"
	"github.com/mossy-p/livestream-signaling/internal/signaling"
)

const queryTimeout = 5 * time.Second

// Directory answers broadcast queries on behalf of the REST API.
type Directory interface {
	Broadcasts(ctx context.Context) ([]models.Broadcast, error)
	Broadcast(ctx context.Context, id string) (models.BroadcastDetail, error)
	EndBroadcast(ctx context.Context, id string) error
	Stats(ctx context.Context) (signaling.Stats, error)
}

// ListBroadcasts returns every live broadcast (public)
func ListBroadcasts(dir Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
		defer cancel()

		list, err := dir.Broadcasts(ctx)
		if err != nil {
			writeQueryError(c, err)
			return
		}
		if list == nil {
			list = []models.Broadcast{}
		}
		c.JSON(http.StatusOK, gin.H{"broadcasts": list})
	}
}

// GetBroadcast returns one broadcast with its viewer count (public)
func GetBroadcast(dir Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
		defer cancel()

		detail, err := dir.Broadcast(ctx, c.Param("broadcastId"))
		if err != nil {
			writeQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// EndBroadcast force-ends a broadcast (requires operator JWT)
func EndBroadcast(dir Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
		defer cancel()

		id := c.Param("broadcastId")
		if err := dir.EndBroadcast(ctx, id); err != nil {
			writeQueryError(c, err)
			return
		}

		logging.Info().
			Str(logging.FieldBroadcastID, id).
			Str("operator", c.GetString(middleware.OperatorKey)).
			Msg("broadcast ended by operator")
		c.JSON(http.StatusOK, gin.H{"message": "Broadcast ended"})
	}
}

func writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, signaling.ErrBroadcastNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
	case errors.Is(err, signaling.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Signaling core unavailable"})
	default:
		logging.Error().Err(err).Str("path", c.FullPath()).Msg("broadcast query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

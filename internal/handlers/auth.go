package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/middleware"
)

const tokenTTL = 12 * time.Hour

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string    `json:"token"`
	Operator  string    `json:"operator"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login exchanges the shared operator password for a signed token. An
// empty operatorPassword disables operator login entirely.
func Login(jwtSecret, operatorPassword string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if operatorPassword == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Operator login is disabled",
			})
			return
		}

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(operatorPassword)) != 1 {
			logging.Warn().Str("operator", req.Username).Str("client_ip", c.ClientIP()).Msg("operator login rejected")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		token, expires, err := middleware.IssueToken(jwtSecret, req.Username, tokenTTL)
		if err != nil {
			logging.Error().Err(err).Msg("failed to issue operator token")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		logging.Info().Str("operator", req.Username).Msg("operator logged in")
		c.JSON(http.StatusOK, LoginResponse{
			Token:     token,
			Operator:  req.Username,
			ExpiresAt: expires,
		})
	}
}

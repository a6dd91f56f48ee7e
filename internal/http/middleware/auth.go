package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"giftauction/internal/services/user"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey     = "user_id"
	restoreHeader = "X-Balance-Restore"
	// Browsers cannot set headers on a websocket handshake.
	tokenQuery = "access_token"
)

// Auth resolves the caller from "Authorization: Bearer <user id>" and
// registers them on first contact. There is no signature check: the token is
// the numeric user id.
func Auth(users user.IUserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid user id"})
			return
		}

		restore := c.GetHeader(restoreHeader) == "true"
		if err := users.EnsureUser(c.Request.Context(), userID, restore); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		tok := c.Query(tokenQuery)
		return tok, tok != ""
	}
	scheme, value, found := strings.Cut(h, " ")
	if !found || scheme != "Bearer" || value == "" {
		return "", false
	}
	return value, true
}

// UserID returns the caller resolved by Auth.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

package middleware

import (
	"errors"
	"net/http"

	"giftauction/internal/services/auction"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

// StatusOf maps a service error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, auction.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auction.ErrAuctionNotFound),
		errors.Is(err, auction.ErrUserNotFound),
		errors.Is(err, auction.ErrGiftNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrInactiveAuction),
		errors.Is(err, auction.ErrTooSmallBid),
		errors.Is(err, auction.ErrInsufficientFunds),
		errors.Is(err, auction.ErrAnotherActiveAuction):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError writes err as JSON. Internal failures are logged and
// reported without detail.
func AbortWithError(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("http.internal_error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(status, ErrorResponse{Error: "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

// BadRequest reports a request that could not be bound.
func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

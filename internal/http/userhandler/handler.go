package userhandler

import (
	"net/http"

	"giftauction/internal/http/middleware"
	"giftauction/internal/services/user"

	"github.com/gin-gonic/gin"
)

type BalanceResponse struct {
	Amount int64 `json:"amount" example:"10000"`
} // @name BalanceResponse

type Handler struct {
	svc user.IUserService
}

func New(svc user.IUserService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/balances/my", h.balance)
}

// @Summary		My balance
// @Description	Returns the caller's spendable balance. Amounts held by pending bids are not included.
// @Tags			Users
// @Security		Bearer
// @Success		200	{object}	BalanceResponse
// @Failure		401	{object}	middleware.ErrorResponse
// @Router			/balances/my [get]
func (h *Handler) balance(c *gin.Context) {
	amount, err := h.svc.GetBalance(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{Amount: amount})
}

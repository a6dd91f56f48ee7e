package gifthandler

import (
	"net/http"

	"giftauction/internal/http/middleware"
	"giftauction/internal/models"
	"giftauction/internal/services/gift"

	"github.com/gin-gonic/gin"
)

type UserGiftsResponse struct {
	Gifts []models.UserGift `json:"gifts"`
} // @name UserGiftsResponse

type Handler struct {
	svc gift.IGiftService
}

func New(svc gift.IGiftService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/gifts/my", h.mine)
}

// @Summary		My gifts
// @Description	Lists the numbered gifts the caller has won, newest first.
// @Tags			Gifts
// @Security		Bearer
// @Success		200	{object}	UserGiftsResponse
// @Failure		401	{object}	middleware.ErrorResponse
// @Router			/gifts/my [get]
func (h *Handler) mine(c *gin.Context) {
	list, err := h.svc.GetUserAllocations(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, UserGiftsResponse{Gifts: list})
}

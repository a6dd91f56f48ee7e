package auctionhandler

import (
	"net/http"

	"giftauction/internal/http/middleware"
	"giftauction/internal/services/auction"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc auction.IAuctionService
}

func New(svc auction.IAuctionService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/auctions", h.create)
	r.GET("/auctions", h.list)
	r.GET("/auctions/:id", h.info)
	r.POST("/auctions/:id/bids", h.bid)
	r.GET("/auctions/:id/bids/top", h.top)
}

// @Summary		Create an auction
// @Description	Creates a SCHEDULED auction for a gift. The first bid starts round 0.
// @Tags			Auctions
// @Security		Bearer
// @Param			body	body		auction.CreateAuctionIn	true	"Auction parameters"
// @Success		201		{object}	CreateAuctionResponse
// @Failure		400		{object}	middleware.ErrorResponse
// @Failure		404		{object}	middleware.ErrorResponse
// @Failure		409		{object}	middleware.ErrorResponse
// @Failure		422		{object}	middleware.ErrorResponse
// @Router			/auctions [post]
func (h *Handler) create(c *gin.Context) {
	var body auction.CreateAuctionIn
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.BadRequest(c, err)
		return
	}
	id, err := h.svc.CreateAuction(c.Request.Context(), body)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateAuctionResponse{AuctionID: id})
}

// @Summary		List auctions
// @Description	Retrieves a paginated list of auctions, newest first, optionally filtered by status.
// @Tags			Auctions
// @Security		Bearer
// @Param			status	query		string	false	"Status filter"			Enums(SCHEDULED,IN_PROGRESS,FINISHED)
// @Param			limit	query		int		false	"Max results (0‑100)"	minimum(0)	maximum(100)	default(10)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{object}	ListAuctionsResponse
// @Failure		400		{object}	middleware.ErrorResponse
// @Failure		500		{object}	middleware.ErrorResponse
// @Router			/auctions [get]
func (h *Handler) list(c *gin.Context) {
	var q ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.BadRequest(c, err)
		return
	}
	out, err := h.svc.ListAuctions(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Get auction details
// @Description	Returns the auction, its anti-sniping settings and the smallest bid the caller must beat.
// @Tags			Auctions
// @Security		Bearer
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	auction.AuctionView
// @Failure		404	{object}	middleware.ErrorResponse
// @Router			/auctions/{id} [get]
func (h *Handler) info(c *gin.Context) {
	view, err := h.svc.GetAuction(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary		Place a bid
// @Description	Places or tops up the caller's bid. Only the difference is charged on a top-up.
// @Tags			Auctions
// @Security		Bearer
// @Param			id		path		string			true	"Auction ID"
// @Param			body	body		PlaceBidBody	true	"Bid payload"
// @Success		200		{object}	PlaceBidResponse
// @Failure		400		{object}	middleware.ErrorResponse
// @Failure		404		{object}	middleware.ErrorResponse
// @Failure		409		{object}	middleware.ErrorResponse
// @Failure		422		{object}	middleware.ErrorResponse
// @Router			/auctions/{id}/bids [post]
func (h *Handler) bid(c *gin.Context) {
	var body PlaceBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.BadRequest(c, err)
		return
	}
	amount, err := auction.ParseAmount(body.Amount.String())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	bidID, err := h.svc.SubmitBid(c.Request.Context(), c.Param("id"), middleware.UserID(c), amount)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, PlaceBidResponse{BidID: bidID})
}

// @Summary		Top bids
// @Description	Returns the current winning bids plus the caller's bid and place.
// @Tags			Auctions
// @Security		Bearer
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	auction.TopBids
// @Failure		404	{object}	middleware.ErrorResponse
// @Router			/auctions/{id}/bids/top [get]
func (h *Handler) top(c *gin.Context) {
	out, err := h.svc.GetTopBids(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

package auctionhandler

import (
	"encoding/json"

	"giftauction/internal/models"
)

type CreateAuctionResponse struct {
	AuctionID string `json:"auction_id" example:"0f8e6c1c-5a7b-4d7e-9a51-3c1b1d0c2f11"`
} // @name CreateAuctionResponse

// Amount may arrive as a JSON number or a numeric string.
type PlaceBidBody struct {
	Amount json.Number `json:"amount" swaggertype:"integer" example:"150"`
} // @name PlaceBidRequest

type PlaceBidResponse struct {
	BidID string `json:"bid_id"`
} // @name PlaceBidResponse

type ListAuctionsQuery struct {
	Status string `form:"status"           binding:"omitempty,oneof=SCHEDULED IN_PROGRESS FINISHED"`
	Limit  int    `form:"limit,default=10" binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0" binding:"gte=0"`
} // @name ListAuctionsQuery

type ListAuctionsResponse []models.Auction // @name ListAuctionsResponse

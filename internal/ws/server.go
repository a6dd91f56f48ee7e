package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"giftauction/internal/http/middleware"
	"giftauction/internal/services/auction"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 12 * time.Second
	pingPeriod     = 3 * time.Second // must be < pongWait
	maxMessageSize = 512
	handlerTimeout = 1900 * time.Millisecond
)

// ConnContext is what a router handler knows about its socket.
type ConnContext struct {
	AuctionID string
	UserID    int64
	Server    *WsServer
}

type WsServer struct {
	hub        *Hub
	subMgr     *subscriptionManager // nil when events are published in-process
	router     *Router
	upgrader   websocket.Upgrader
	auctionSvc auction.IAuctionService
}

// NewWsServer wires the socket endpoint. A nil rdc means the hub itself is
// the event publisher and no Redis subscription is made.
func NewWsServer(h *Hub, rdc *redis.Client, auctionSvc auction.IAuctionService) *WsServer {
	srv := &WsServer{
		hub:    h,
		router: NewRouter(handlerTimeout),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true }, // dev‑only
		},
		auctionSvc: auctionSvc,
	}
	if rdc != nil {
		srv.subMgr = newSubscriptionManager(rdc, h)
	}
	srv.registerHandlers()
	return srv
}

// Handle is the gin entry point. It must run behind middleware.Auth.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	auctionID := ginCtx.Query("auction_id")
	if auctionID == "" {
		ginCtx.JSON(http.StatusBadRequest, middleware.ErrorResponse{Error: "auction_id is required"})
		return
	}
	userID := middleware.UserID(ginCtx)

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade_failed", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxMessageSize)

	conn := &clientConn{rawConn: rawConn}
	s.hub.Join(auctionID, conn)
	if s.subMgr != nil {
		s.subMgr.Subscribe(auctionID)
	}

	if err := s.pushSnapshot(ginCtx.Request.Context(), auctionID, userID, conn); err != nil &&
		!errors.Is(err, auction.ErrAuctionNotFound) {
		zap.L().Warn("ws.snapshot_failed", zap.String("auction_id", auctionID), zap.Error(err))
	}

	done := make(chan struct{})
	go s.reader(&ConnContext{AuctionID: auctionID, UserID: userID, Server: s}, conn, done)
	go s.pinger(conn, done)
}

// Close stops the Redis fan-out.
func (s *WsServer) Close() {
	if s.subMgr != nil {
		s.subMgr.Close()
	}
}

func (s *WsServer) registerHandlers() {
	Handle(s.router, EventBid,
		func(ctx context.Context, cc *ConnContext, req BidRequest) (BidAck, error) {
			amount, err := auction.ParseAmount(req.Amount.String())
			if err != nil {
				return BidAck{}, err
			}
			bidID, err := s.auctionSvc.SubmitBid(ctx, cc.AuctionID, cc.UserID, amount)
			return BidAck{BidID: bidID}, err
		},
	)

	Handle(s.router, EventTop,
		func(ctx context.Context, cc *ConnContext, _ TopRequest) (*auction.TopBids, error) {
			return s.auctionSvc.GetTopBids(ctx, cc.AuctionID, cc.UserID)
		},
	)
}

func (s *WsServer) pushSnapshot(ctx context.Context, auctionID string, userID int64, conn *clientConn) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	view, err := s.auctionSvc.GetAuction(ctx, auctionID, userID)
	if err != nil {
		return err
	}
	return conn.writeJSON(map[string]any{"event": EventSnapshot, "body": view})
}

func (s *WsServer) reader(cc *ConnContext, conn *clientConn, done chan struct{}) {
	defer func() {
		close(done)
		s.hub.Leave(cc.AuctionID, conn)
		if s.subMgr != nil {
			s.subMgr.Unsubscribe(cc.AuctionID)
		}
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("ws.read_failed", zap.String("auction_id", cc.AuctionID), zap.Error(err))
			}
			return
		}

		event, res, err := s.router.serve(cc, data)
		if err != nil {
			_ = conn.writeJSON(map[string]any{"event": EventError, "body": ErrorBody{Error: s.publicError(cc, event, err)}})
			continue
		}

		reply := map[string]any{"event": event + ackSuffix}
		if res != nil {
			reply["body"] = res
		}
		_ = conn.writeJSON(reply)
	}
}

func (s *WsServer) publicError(cc *ConnContext, event string, err error) string {
	if auction.IsBusinessError(err) || errors.Is(err, errBadFrame) {
		return err.Error()
	}
	zap.L().Error("ws.handler_failed",
		zap.String("event", event),
		zap.String("auction_id", cc.AuctionID),
		zap.Int64("user_id", cc.UserID),
		zap.Error(err),
	)
	return "internal error"
}

func (s *WsServer) pinger(conn *clientConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.rawConn.Close()
				return
			}
		}
	}
}

package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"giftauction/internal/http/middleware"
	"giftauction/internal/services/user"
	"giftauction/internal/ws"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Registrar is implemented by every REST handler package.
type Registrar interface {
	Register(r gin.IRoutes)
}

type httpServer struct {
	listenPort uint16
	srv        *http.Server
	ln         net.Listener
	ctx        context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer, users user.IUserService, handlers ...Registrar) *httpServer {
	return &httpServer{
		listenPort: listenPort,
		srv: &http.Server{
			Handler:           NewRouter(wsSrv, users, handlers...),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ctx: ctx,
	}
}

// NewRouter builds the gin engine. Everything except the API docs sits
// behind middleware.Auth.
func NewRouter(wsSrv *ws.WsServer, users user.IUserService, handlers ...Registrar) *gin.Engine {
	routerEngine := gin.New()
	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	api := routerEngine.Group("", middleware.Auth(users))
	if wsSrv != nil {
		api.GET("/ws", wsSrv.Handle)
	}
	for _, h := range handlers {
		h.Register(api)
	}
	return routerEngine
}

// Listen binds the port so that Start cannot race a client.
func (h *httpServer) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", h.listenPort))
	if err != nil {
		return err
	}
	h.ln = ln
	return nil
}

// Start serves until Dispose. It returns nil after a graceful shutdown.
func (h *httpServer) Start() error {
	if h.ln == nil {
		if err := h.Listen(); err != nil {
			return err
		}
	}
	zap.L().Info("http.listening", zap.String("addr", h.ln.Addr().String()))

	err := h.srv.Serve(h.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Dispose waits up to 10 s for in‑flight requests to finish.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), shutdownTimeout)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http.dispose_failed", zap.Error(err))
		return err
	}
	return nil
}

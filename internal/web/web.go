package web

import (
	"context"
	"errors"
	"net/http"

	"autoflow/auth"
	"autoflow/internal/web/api"
	"autoflow/internal/web/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type WebServer struct {
	router *gin.Engine
	server *http.Server
	logger *zap.Logger
}

func NewWebServer(deps api.Dependencies, tokens *auth.TokenIssuer) *WebServer {
	router := gin.New()

	middlewareManager := middleware.NewMiddlewareManager(tokens, deps.Logger)
	router.Use(gin.Recovery(), middlewareManager.RequestLogger())

	api.RegisterHealthRoutes(router, deps)
	api.RegisterWorkflowRoutes(router, middlewareManager, deps)
	api.RegisterEventRoutes(router, middlewareManager, deps)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return &WebServer{router: router, logger: deps.Logger}
}

// Handler exposes the router, mainly for tests
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves on addr in the background
func (ws *WebServer) Start(addr string) {
	ws.server = &http.Server{Addr: addr, Handler: ws.router}
	go func() {
		ws.logger.Info("http server listening", zap.String("addr", addr))
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

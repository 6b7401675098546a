package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/api/handlers"
	"github.com/BaSui01/agentroom/internal/server"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentRoom 的 HTTP/WebSocket 服务器
type Server struct {
	app    *app
	logger *zap.Logger

	healthHandler *handlers.HealthHandler
	roomHandler   *handlers.RoomHandler
	streamHandler *handlers.StreamHandler

	handler     http.Handler
	stopLimiter context.CancelFunc
}

// NewServer 创建服务器并构建路由与中间件链
func NewServer(a *app, logger *zap.Logger) *Server {
	s := &Server{app: a, logger: logger}
	s.initHandlers()
	s.handler = s.routes()
	return s
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	a := s.app

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if a.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", a.pool.Ping))
	}
	if a.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", a.cache.Ping))
	}

	// nil 指针不能直接放进接口，否则镜像回退会被误判为已启用
	var mirror handlers.SnapshotReader
	if a.mirror != nil {
		mirror = a.mirror
	}
	s.roomHandler = handlers.NewRoomHandler(a.store, mirror, a.orchestrator, s.logger,
		handlers.WithAsyncLimits(a.cfg.Server.AsyncPool()))
	s.streamHandler = handlers.NewStreamHandler(a.hub, a.cfg.Server.StreamBuffer, s.logger)
}

// routes 注册路由并包装中间件
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// 健康检查与版本
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.Handler())

	// 房间与作用域
	mux.HandleFunc("GET /api/v1/rooms", s.roomHandler.HandleList)
	mux.HandleFunc("GET /api/v1/rooms/{id}", s.roomHandler.HandleGet)
	mux.HandleFunc("GET /api/v1/scopes/{scope}", s.roomHandler.HandleGetScope)
	mux.HandleFunc("POST /api/v1/scopes/{scope}/trigger", s.roomHandler.HandleTrigger)
	mux.HandleFunc("DELETE /api/v1/scopes/{scope}", s.roomHandler.HandleDeleteScope)

	// 实时流
	mux.HandleFunc("GET /ws", s.streamHandler.HandleStream)

	cfg := s.app.cfg.Server
	limiterCtx, cancel := context.WithCancel(context.Background())
	s.stopLimiter = cancel
	probePaths := []string{"/health", "/ready", "/version", "/metrics"}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.app.collector),
		CORS(cfg.CORSAllowedOrigins),
		RateLimiter(limiterCtx, cfg.RateLimitRPS, cfg.RateLimitBurst, probePaths, s.logger),
	)
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run serves until ctx is done, then drains the HTTP server, stops runs and
// closes the app.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.app.cfg.Server
	manager := server.NewManager(s.handler, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTPPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     2 * cfg.ReadTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, s.logger)

	s.logger.Info("HTTP server starting", zap.Int("port", cfg.HTTPPort))
	serveErr := manager.Run(ctx)

	s.logger.Info("Starting graceful shutdown...")
	s.stopLimiter()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	closeErr := s.app.Close(shutdownCtx)

	// 异步运行在编排器关闭后尽快返回
	s.roomHandler.Wait()

	s.logger.Info("Graceful shutdown completed")
	return errors.Join(serveErr, closeErr)
}

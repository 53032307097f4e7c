package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tipbot-core/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Config struct {
	HttpPort        string
	ShutdownTimeout time.Duration
}

// Stopper 随 HTTP 服务一起关闭的后台组件 (调度器、cron、relay)
type Stopper interface {
	Stop()
}

type App struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	stoppers        []Stopper
}

func New(cfg Config, httpHandler *gin.Engine, stoppers ...Stopper) *App {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &App{
		httpServer: &http.Server{
			Addr:              ":" + cfg.HttpPort,
			Handler:           httpHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		stoppers:        stoppers,
	}
}

// Run 启动服务并阻塞，直到收到关闭信号
func (a *App) Run() {
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Server failure", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("⚠️  Shutting down server...")

	a.Shutdown()
}

// Shutdown 先停止接收请求，再按注册的逆序停止后台组件
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	for i := len(a.stoppers) - 1; i >= 0; i-- {
		a.stoppers[i].Stop()
	}
	logger.Info("Server exited properly")
}

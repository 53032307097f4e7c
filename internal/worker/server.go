package worker

import (
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"tipbot-core/internal/worker/tasks"
	"tipbot-core/pkg/logger"
)

// Server 封装 Asynq Server (Worker)
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer 初始化 Worker Server
func NewServer(addr string, password string, db int, concurrency int) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     addr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			// 并发数：同时处理多少个任务
			Concurrency: concurrency,
			// 队列优先级，结算任务在 critical
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				"default":           3,
				"low":               1,
			},
			Logger: logger.NewAsynqLogger(),
		},
	)

	return &Server{
		server: srv,
		mux:    asynq.NewServeMux(),
	}
}

// Handle 注册任务处理器，必须在 Start 之前调用
func (s *Server) Handle(taskType string, handler asynq.Handler) {
	s.mux.Handle(taskType, handler)
}

// Run 启动 Worker (阻塞)
func (s *Server) Run() error {
	logger.Info("Worker Server starting...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动 (用于集成到 main.go)
func (s *Server) Start() error {
	logger.Info("Worker Server starting...")
	if err := s.server.Start(s.mux); err != nil {
		logger.Error("Worker Server failed", zap.Error(err))
		return err
	}
	return nil
}

// Stop 停止 Worker
func (s *Server) Stop() {
	s.server.Stop()
	s.server.Shutdown()
}

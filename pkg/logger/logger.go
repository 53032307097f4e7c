package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
)

func init() {
	// 默认初始化一个 Nop Logger，防止未 Init 就调用导致 panic (测试中也依赖这一点)
	Log = zap.NewNop()
}

// Init initializes the global logger
func Init(env string) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var err error
	Log, err = config.Build(zap.AddCallerSkip(1)) // Skip 1 caller so logs show where logger.Info was called, not wrapper
	if err != nil {
		panic(err)
	}

	zap.ReplaceGlobals(Log)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

// Named 返回带组件名的子 logger，用于长期运行的服务
func Named(name string) *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// AsynqLogger 把 asynq 的日志接口适配到 zap
type AsynqLogger struct {
	l *zap.SugaredLogger
}

// NewAsynqLogger 创建 asynq.Logger 适配器
func NewAsynqLogger() *AsynqLogger {
	return &AsynqLogger{l: Log.WithOptions(zap.AddCallerSkip(1)).Named("asynq").Sugar()}
}

func (a *AsynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a *AsynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a *AsynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a *AsynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a *AsynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...)) }

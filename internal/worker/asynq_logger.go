package worker

import (
	"fmt"
	"log/slog"
	"os"
)

// AsynqLogger 把 asynq 内部日志转发到 slog。
type AsynqLogger struct {
	logger *slog.Logger
}

func NewAsynqLogger(logger *slog.Logger) *AsynqLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqLogger{logger: logger.With(slog.String("component", "asynq"))}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal 记录后退出进程，与 asynq 默认 logger 行为一致。
func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...), slog.Bool("fatal", true))
	os.Exit(1)
}

package log

import (
	"sync/atomic"

	"github.com/hatlonely/tablex/log/logger"
)

var defaultLogger atomic.Value

func init() {
	// 默认向 stderr 输出 text 格式日志
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(holder{slog})
}

type holder struct {
	logger.Logger
}

// Default 返回全局默认日志器
func Default() logger.Logger {
	return defaultLogger.Load().(holder).Logger
}

// SetDefault 替换全局默认日志器，nil 被忽略
func SetDefault(l logger.Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(holder{l})
}

// NewWithOptions 根据配置创建日志器
func NewWithOptions(options *logger.SLogOptions) (logger.Logger, error) {
	return logger.NewSLogWithOptions(options)
}

// OrDefault 非 nil 时返回 l，否则返回默认日志器
func OrDefault(l logger.Logger) logger.Logger {
	if l != nil {
		return l
	}
	return Default()
}

package zlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"KnowledgeHub/internal/config"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	initOnce sync.Once
)

// L 返回全局 logger，首次调用时按 logConfig 初始化
func L() *zap.Logger {
	initOnce.Do(func() {
		logger = newLogger(config.GetConfig().LogConfig)
	})
	return logger
}

// Replace 替换全局 logger（测试中可注入 zap.NewNop 或 observer）
func Replace(l *zap.Logger) {
	initOnce.Do(func() {})
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

func newLogger(conf config.LogConfig) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := parseLevel(conf.Level)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), level),
	}

	if p := strings.TrimSpace(conf.LogPath); p != "" {
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		maxSize := conf.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := conf.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 7
		}
		writer := &lumberjack.Logger{
			Filename:   p,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Fatal 记录日志后退出进程
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

// Enabled 判断给定级别是否会输出，用于跳过代价较高的统计日志
func Enabled(level zapcore.Level) bool {
	return L().Core().Enabled(level)
}

func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

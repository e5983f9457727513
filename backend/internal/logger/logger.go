// Package logger 提供进程级 zap logger，并支持把带字段的 logger 挂在 context 上传递。
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// New 构造生产配置的 logger 并设为全局默认；level 解析失败时退回 info
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	SetDefault(l)
	return l, nil
}

func SetDefault(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

func Default() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// NewContext 返回携带 l 的 context
func NewContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// L 取 context 上的 logger，没有就用全局的
func L(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return Default()
}

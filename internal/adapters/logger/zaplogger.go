// Package logger adapts a zap logger to the ports.Logger interface.
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements ports.Logger on top of zap's sugared logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap logger at the given level. Unknown levels fall
// back to info.
func New(level string) (*ZapLogger, error) {
	config := zap.NewProductionConfig()

	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)

	base, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger.New: %w", err)
	}
	return &ZapLogger{sugar: base.Sugar()}, nil
}

func (z *ZapLogger) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	z.sugar.Debugw(msg, flatten(fields)...)
}

func (z *ZapLogger) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	z.sugar.Infow(msg, flatten(fields)...)
}

func (z *ZapLogger) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	z.sugar.Warnw(msg, flatten(fields)...)
}

func (z *ZapLogger) Error(_ context.Context, err error, msg string, fields ...map[string]interface{}) {
	kv := flatten(fields)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	z.sugar.Errorw(msg, kv...)
}

// Sync flushes buffered entries. Call on shutdown.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

func flatten(fields []map[string]interface{}) []interface{} {
	var kv []interface{}
	for _, m := range fields {
		for k, v := range m {
			kv = append(kv, k, v)
		}
	}
	return kv
}

// Package logger wraps zap the way the judge's own pkg/utils/logger does:
// a package-level instance built from a small Config, with context-aware
// convenience functions layered on top.
package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// SubmissionIDKey is the context key every submission-scoped log line is
// tagged with.
const SubmissionIDKey ctxKey = "submission_id"

var global *Logger

// Logger wraps a zap logger.
type Logger struct {
	zap *zap.Logger
}

// Config configures the process-wide logger.
type Config struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	Format     string `yaml:"format"`     // json, console
	OutputPath string `yaml:"outputPath"` // file path or "stdout"
	Service    string `yaml:"service"`
	Env        string `yaml:"env"`
}

// Init builds and installs the global logger.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// New builds a Logger without installing it globally.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, e zapcore.PrimitiveArrayEncoder) { e.AppendString(t.Format(time.RFC3339)) },
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.OutputPath == "" || cfg.OutputPath == "stdout" {
		sink = zapcore.AddSync(os.Stdout)
	} else {
		f, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, sink, level)
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)}
	var fields []zap.Field
	if cfg.Service != "" {
		fields = append(fields, zap.String("service", cfg.Service))
	}
	if cfg.Env != "" {
		fields = append(fields, zap.String("env", cfg.Env))
	}
	if len(fields) > 0 {
		opts = append(opts, zap.Fields(fields...))
	}

	return &Logger{zap: zap.New(core, opts...)}, nil
}

// Raw returns the underlying *zap.Logger.
func (l *Logger) Raw() *zap.Logger { return l.zap }

// Sync flushes buffered entries. Never required for shutdown correctness:
// the Evaluation Service's teardown must succeed whether or not this runs.
func (l *Logger) Sync() error { return l.zap.Sync() }

func withCtx(ctx context.Context, l *zap.Logger) *zap.Logger {
	if ctx == nil {
		return l
	}
	if v := ctx.Value(SubmissionIDKey); v != nil {
		return l.With(zap.String("submission_id", fmt.Sprint(v)))
	}
	return l
}

func currentLogger() *zap.Logger {
	if global == nil {
		return zap.NewNop()
	}
	return global.zap
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	withCtx(ctx, currentLogger()).Debug(msg, fields...)
}
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	withCtx(ctx, currentLogger()).Info(msg, fields...)
}
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	withCtx(ctx, currentLogger()).Warn(msg, fields...)
}
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	withCtx(ctx, currentLogger()).Error(msg, fields...)
}

// Sync flushes the global logger, if installed.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}

// WithSubmissionID returns a context tagging all judge logs with id.
func WithSubmissionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SubmissionIDKey, id)
}

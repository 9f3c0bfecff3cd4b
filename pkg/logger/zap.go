package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures NewZap.
type Options struct {
	Level       string
	ServiceName string
	// File, when set, adds a size-rotated JSON file sink next to the console output.
	File string
}

// ZapAdapter implements Logger using zap.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZap builds a JSON zap logger. Errors and above go to stderr, everything below to stdout.
func NewZap(opts Options) (*ZapAdapter, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	infoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= level && lvl < zapcore.ErrorLevel
	})
	errorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= level && lvl >= zapcore.ErrorLevel
	})

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(os.Stdout), infoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(os.Stderr), errorLevel),
	}

	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotating), level))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if opts.ServiceName != "" {
		zl = zl.With(zap.String("service", opts.ServiceName))
	}
	return &ZapAdapter{logger: zl}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() Logger {
	return &ZapAdapter{logger: zap.NewNop()}
}

// FromZap wraps an existing zap logger, e.g. zaptest or zap.NewExample in tests.
func FromZap(zl *zap.Logger) Logger {
	return &ZapAdapter{logger: zl}
}

// Sync flushes buffered entries.
func (za *ZapAdapter) Sync() error {
	return za.logger.Sync()
}

func (za *ZapAdapter) fields(ctx context.Context, kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2+2)

	if ctx != nil {
		if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
			fields = append(fields, zap.String(requestIDKey.String(), requestID))
		}
		if userID, ok := ctx.Value(userIDKey).(uint); ok && userID != 0 {
			fields = append(fields, zap.Uint(userIDKey.String(), userID))
		}
	}

	return append(fields, toFields(kv)...)
}

func toFields(kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			fields = append(fields, zap.Any("orphan_field", kv[i]))
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("field_%d", i)
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}

func (za *ZapAdapter) Debug(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	za.logger.Debug(msg, za.fields(ctx, args)...)
}

func (za *ZapAdapter) Info(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.InfoLevel) {
		return
	}
	za.logger.Info(msg, za.fields(ctx, args)...)
}

func (za *ZapAdapter) Warn(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.WarnLevel) {
		return
	}
	za.logger.Warn(msg, za.fields(ctx, args)...)
}

func (za *ZapAdapter) Error(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.ErrorLevel) {
		return
	}
	za.logger.Error(msg, za.fields(ctx, args)...)
}

func (za *ZapAdapter) Fatal(ctx context.Context, msg string, args ...any) {
	za.logger.Fatal(msg, za.fields(ctx, args)...)
}

func (za *ZapAdapter) With(args ...any) Logger {
	return &ZapAdapter{logger: za.logger.With(toFields(args)...)}
}

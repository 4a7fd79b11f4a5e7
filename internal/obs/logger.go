// Package obs builds the process-wide structured logger: a zap.Logger
// writing to stderr and, optionally, a lumberjack-rotated file.
// Grounded on cppla-moto's utils/log.go (the pack's other quic-go user)
// rather than the teacher's own log.Printf calls, since it shows the
// richer structured-logging idiom every quic-go consumer benefits from.
package obs

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var levelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

// FileConfig controls the optional rotated log file sink; it mirrors
// lumberjack.Logger's own fields so callers can build one straight
// from internal/config's LogConfig.
type FileConfig struct {
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// New builds a logger at the given level ("debug", "info", "warn",
// "error"; unrecognized values fall back to "info"). If file.Filename
// is non-empty, log lines are also written there through lumberjack
// rotation using the rest of file's fields.
func New(level string, file FileConfig) (*zap.Logger, error) {
	lvl, ok := levelMap[level]
	if !ok {
		lvl = zapcore.InfoLevel
	}
	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= lvl })

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), enabler),
	}
	if file.Filename != "" {
		hook := &lumberjack.Logger{
			Filename:   file.Filename,
			MaxSize:    file.MaxSize,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAge,
			Compress:   file.Compress,
		}
		fileEncoder := zapcore.NewJSONEncoder(encoderCfg)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(hook), enabler))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// LevelFromEnv reads STABLESSH_LOG (debug/info/warn/error), defaulting
// to "info" when unset or unrecognized, mirroring the original's
// env_logger::init() (spec section 12 supplement).
func LevelFromEnv() string {
	v := os.Getenv("STABLESSH_LOG")
	if _, ok := levelMap[v]; !ok {
		return "info"
	}
	return v
}

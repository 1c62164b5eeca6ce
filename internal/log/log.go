// Package log is the process-wide structured logger.
package log

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

func init() {
	// $LOG_LEVEL applies to tests as well as the daemon.
	level := "error"
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		level = s
	}
	Init(level, "stderr")
}

// Sync flushes buffered log entries.
func Sync() error { return log.Sync() }

// Init builds the global logger. Output is "stdout", "stderr" or a file path.
func Init(logLevel, output string) {
	logger, err := newConfig(logLevel, output).Build()
	if err != nil {
		panic(err)
	}
	log = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
	log.Debugf("logger started at level %s with output %s", logLevel, output)
}

// LevelFromString maps a level name to a zap level, defaulting to info.
func LevelFromString(logLevel string) zapcore.Level {
	switch logLevel {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// EncoderConfig is shared by the global logger and the daemon's audit log.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime: func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(ts.Local().Format(time.RFC3339))
		},
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func newConfig(logLevel, output string) zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(LevelFromString(logLevel)),
		Encoding: "console",
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		EncoderConfig:    EncoderConfig(),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{output},
	}
}

// Info sends an info level log message
func Info(args ...any) { log.Info(args...) }

// Fatal sends a fatal level log message and exits
func Fatal(args ...any) { log.Fatal(args...) }

func Debugf(template string, args ...any) { log.Debugf(template, args...) }

// Debugw logs a message with key/value pairs.
func Debugw(msg string, keysAndValues ...any) { log.Debugw(msg, keysAndValues...) }
func Infow(msg string, keysAndValues ...any)  { log.Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...any)  { log.Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...any) { log.Errorw(msg, keysAndValues...) }

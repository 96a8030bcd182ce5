package txadmin

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSize    = 100 // MB
	logMaxBackups = 3
	logMaxAge     = 365 // days
)

var logLevels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// Logger is the logging surface used by the API and terminal UI.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// NewLogger logs to stdout and, when logFile is set, to a rotated JSON log file.
func NewLogger(logLevel, logFile *string) *zap.SugaredLogger {
	level := parseLevel(*logLevel)

	cores := []zapcore.Core{newStdoutCore(level)}
	if *logFile != "" {
		cores = append(cores, newFileCore(*logFile, level))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar()
}

// NewFileLogger logs only to logFile, for the terminal client where stdout belongs to
// the UI. Without a file it discards everything.
func NewFileLogger(logLevel, logFile *string) *zap.SugaredLogger {
	if *logFile == "" {
		return zap.NewNop().Sugar()
	}

	return zap.New(newFileCore(*logFile, parseLevel(*logLevel))).Sugar()
}

func parseLevel(name string) zapcore.Level {
	if level, ok := logLevels[name]; ok {
		return level
	}
	return zapcore.InfoLevel
}

func newStdoutCore(level zapcore.Level) zapcore.Core {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		level,
	)
}

func newFileCore(logFile string, level zapcore.Level) zapcore.Core {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAge,
		}),
		level,
	)
}

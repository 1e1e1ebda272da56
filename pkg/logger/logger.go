package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/f5xc-exporter/pkg/config"
)

type Logger = zap.Logger

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	baseLogger        *zap.Logger
	defaultComponent  = "exporter"
	loggerInitOnce    sync.Once
	loggerInitialized bool
	mu                sync.RWMutex
)

// ParseLevel maps the configured level name onto a zap level. Unknown names fall back to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn", "warning":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init builds the process logger: coloured console output on stdout plus a JSON
// stream into daily rotated files under cfg.Path. Only the first call has effect.
func Init(cfg *config.LogConfig) (*zap.Logger, error) {
	var err error
	loggerInitOnce.Do(func() {
		level := ParseLevel(cfg.Level)

		cores := []zapcore.Core{
			zapcore.NewCore(consoleEncoder(cfg.Format), zapcore.AddSync(os.Stdout), level),
		}

		if cfg.Path != "" {
			if err = os.MkdirAll(cfg.Path, 0755); err != nil {
				return
			}
			writer, wErr := rotatelogs.New(
				filepath.Join(cfg.Path, "f5xc-exporter-%Y%m%d.log"),
				rotatelogs.WithMaxAge(time.Duration(cfg.MaxAge)*24*time.Hour),
				rotatelogs.WithRotationTime(cfg.RotationTime),
				rotatelogs.WithRotationSize(int64(cfg.MaxSize)*1024*1024),
			)
			if wErr != nil {
				err = fmt.Errorf("open rotating log file: %w", wErr)
				return
			}
			cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(writer), level))
		}

		baseLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
		loggerInitialized = true
	})
	if err != nil {
		return nil, err
	}
	return baseLogger, nil
}

func consoleEncoder(format string) zapcore.Encoder {
	if format == "json" {
		return jsonEncoder()
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.ConsoleSeparator = " "
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format(timeLayout)))
	}
	encCfg.EncodeLevel = coloredLevelEncoder
	// dir/file.go:line
	encCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func jsonEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeLayout))
	}
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(encCfg)
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	default:
		levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
	}
	enc.AppendString(levelStr)
}

// SetDefaultComponent sets the component tag used when a call passes an empty override.
func SetDefaultComponent(component string) {
	mu.Lock()
	defer mu.Unlock()
	defaultComponent = component
}

func componentField(override string) zap.Field {
	if override != "" {
		return zap.String("component", override)
	}
	mu.RLock()
	defer mu.RUnlock()
	return zap.String("component", defaultComponent)
}

func log(level zapcore.Level, msg string, component string, fields ...zap.Field) {
	l := GetLogger().WithOptions(zap.AddCallerSkip(2))
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(append([]zap.Field{componentField(component)}, fields...)...)
	}
}

func Debug(msg string, component string, fields ...zap.Field) {
	log(zapcore.DebugLevel, msg, component, fields...)
}
func Info(msg string, component string, fields ...zap.Field) {
	log(zapcore.InfoLevel, msg, component, fields...)
}
func Warn(msg string, component string, fields ...zap.Field) {
	log(zapcore.WarnLevel, msg, component, fields...)
}
func Error(msg string, component string, fields ...zap.Field) {
	log(zapcore.ErrorLevel, msg, component, fields...)
}

// Named returns a child logger tagged with component, for packages that take a *zap.Logger.
func Named(component string) *zap.Logger {
	return GetLogger().With(zap.String("component", component))
}

func Sync() error {
	if !loggerInitialized {
		return nil
	}
	err := baseLogger.Sync()
	// stdout cannot be fsynced on most terminals
	if err != nil && strings.Contains(err.Error(), "/dev/stdout") {
		return nil
	}
	return err
}

// GetLogger returns the process logger, or a no-op logger before Init.
func GetLogger() *zap.Logger {
	if !loggerInitialized {
		return zap.NewNop()
	}
	return baseLogger
}

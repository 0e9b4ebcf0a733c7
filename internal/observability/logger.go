// Package observability owns the process-wide zap logger: a console core for
// the operator plus an optional JSON file core that outlives the terminal,
// which matters once a build has left its session running.
package observability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/ebaybot/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// ANSI escape sequences. The palette indexes follow the SGR foreground codes
// 30 through 37.
const (
	colorReset = "\x1b[0m"
	colorGreen = "\x1b[32m"
)

var palette = func() map[string]string {
	names := []string{"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white"}
	m := make(map[string]string, len(names))
	for i, name := range names {
		m[name] = fmt.Sprintf("\x1b[%dm", 30+i)
	}
	return m
}()

// dailyLayout names log files after the calendar day, e.g. logs/19-10-2026.log.
const dailyLayout = "02-01-2006"

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// LogFilePath resolves where file logs go for the given moment. An explicit
// LogFile wins; otherwise one file per day is placed under LogDir. Empty
// result means file logging is disabled.
func LogFilePath(cfg config.LoggerConfig, now time.Time) string {
	if cfg.LogFile != "" {
		return cfg.LogFile
	}
	if cfg.LogDir == "" {
		return ""
	}
	return filepath.Join(cfg.LogDir, now.Format(dailyLayout)+".log")
}

// Initialize installs the global logger. Only the first call has any effect.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(consoleEncoder(cfg), console, level)}
		logPath := LogFilePath(cfg, time.Now())
		var dirErr error
		if logPath != "" {
			if dirErr = os.MkdirAll(filepath.Dir(logPath), 0o755); dirErr == nil {
				cores = append(cores, fileCore(cfg, logPath, level))
			}
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}
		logger := zap.New(zapcore.NewTee(cores...), opts...).Named(cfg.ServiceName)
		if dirErr != nil {
			logger.Warn("File logging disabled", zap.String("path", logPath), zap.Error(dirErr))
		}

		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger initializes with console output on a locked stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest forgets the global logger so the next Initialize takes effect.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

// fileCore writes JSON to a rotated file. Every entry carries the writer's
// pid so a later teardown run can be told apart from the build that started
// the session.
func fileCore(cfg config.LoggerConfig, path string, level zapcore.LevelEnabler) zapcore.Core {
	encCfg := baseEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level).
		With([]zapcore.Field{zap.Int("pid", os.Getpid())})
}

// consoleEncoder returns colorized single-line output for Format "console"
// and JSON otherwise.
func consoleEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	encCfg := baseEncoderConfig()
	if cfg.Format != "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.EncodeLevel = levelEncoder(levelColors(cfg.Colors))
	// A trailing dot sets the component apart, e.g. "ebay.orchestrator.".
	encCfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func baseEncoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	return encCfg
}

// levelColors maps each level to the escape sequence its configured color
// name stands for. Unknown or empty names leave the level uncolored.
func levelColors(c config.ColorConfig) map[zapcore.Level]string {
	named := map[zapcore.Level]string{
		zapcore.DebugLevel:  c.Debug,
		zapcore.InfoLevel:   c.Info,
		zapcore.WarnLevel:   c.Warn,
		zapcore.ErrorLevel:  c.Error,
		zapcore.DPanicLevel: c.DPanic,
		zapcore.PanicLevel:  c.Panic,
		zapcore.FatalLevel:  c.Fatal,
	}
	out := make(map[zapcore.Level]string, len(named))
	for lvl, name := range named {
		if seq, ok := palette[strings.ToLower(name)]; ok {
			out[lvl] = seq
		}
	}
	return out
}

func levelEncoder(colors map[zapcore.Level]string) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		s := level.CapitalString()
		if seq, ok := colors[level]; ok {
			s = seq + s + colorReset
		}
		enc.AppendString(s)
	}
}

var fallbackLogger = sync.OnceValue(func() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l = l.Named("fallback")
	l.Warn("Global logger requested before initialization")
	return l
})

// GetLogger returns the global logger, or a development logger if none has
// been initialized yet.
func GetLogger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return fallbackLogger()
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	l := globalLogger.Load()
	if l == nil {
		return
	}
	for _, err := range multierr.Errors(l.Sync()) {
		if !unsyncable(err) {
			fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
		}
	}
}

// unsyncable reports errors from terminals and pipes, which cannot fsync.
func unsyncable(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.ENOTTY)
}

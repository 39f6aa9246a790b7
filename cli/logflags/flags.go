package logflags

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Flags struct {
	Level      string
	Path       string
	Mode       string
	MaxSize    int
	MaxBackups int
}

func (f *Flags) SetFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Level, "log.level", "warn", "logging level [debug,info,warn,error]")
	fs.StringVar(&f.Path, "log.path", "", "write logs to this file, rotating it by size (default stderr)")
	fs.StringVar(&f.Mode, "log.mode", "json", "log encoding [json,console]")
	fs.IntVar(&f.MaxSize, "log.maxsize", 100, "size in megabytes at which the log file is rotated")
	fs.IntVar(&f.MaxBackups, "log.maxbackups", 3, "number of rotated log files kept")
}

// Open builds the logger described by f.  The returned function flushes
// the logger and closes the log file, if any.
func (f *Flags) Open() (*zap.Logger, func() error, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(f.Level)); err != nil {
		return nil, nil, fmt.Errorf("log.level: %w", err)
	}
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch f.Mode {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(config)
	case "console":
		encoder = zapcore.NewConsoleEncoder(config)
	default:
		return nil, nil, fmt.Errorf("log.mode: unknown mode %q", f.Mode)
	}
	var ws zapcore.WriteSyncer
	var closer func() error
	if f.Path == "" || f.Path == "stderr" {
		ws = zapcore.Lock(os.Stderr)
		closer = func() error { return nil }
	} else {
		w := &lumberjack.Logger{
			Filename:   f.Path,
			MaxSize:    f.MaxSize,
			MaxBackups: f.MaxBackups,
		}
		ws = zapcore.AddSync(w)
		closer = w.Close
	}
	logger := zap.New(zapcore.NewCore(encoder, ws, level))
	return logger, func() error {
		// Sync on a terminal fails with EINVAL on some platforms.
		_ = logger.Sync()
		return closer()
	}, nil
}

// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config defines the configuration of a logging factory.
type Config struct {
	// Directory log files are written to. Empty disables file logging.
	Directory string

	// LogLevel applies to both outputs.
	LogLevel zapcore.Level

	// DisplayJSON switches the console encoder to JSON.
	DisplayJSON bool

	// MaxSizeMB, MaxFiles and MaxAgeDays bound the rotated files.
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int
}

// Factory creates named loggers that share one configuration.
type Factory struct {
	config Config

	lock    sync.Mutex
	loggers map[string]Logger
}

func NewFactory(config Config) *Factory {
	return &Factory{
		config:  config,
		loggers: make(map[string]Logger),
	}
}

// Make returns a logger named [name], creating it on first use.
func (f *Factory) Make(name string) Logger {
	f.lock.Lock()
	defer f.lock.Unlock()

	if l, ok := f.loggers[name]; ok {
		return l
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	if f.config.DisplayJSON {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), f.config.LogLevel),
	}
	if f.config.Directory != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(f.config.Directory, name+".log"),
			MaxSize:    f.config.MaxSizeMB,
			MaxAge:     f.config.MaxAgeDays,
			MaxBackups: f.config.MaxFiles,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(fileWriter),
			f.config.LogLevel,
		))
	}

	l := NewWrappedCore(zapcore.NewTee(cores...))
	f.loggers[name] = l
	return l
}

// Close stops all loggers this factory created.
func (f *Factory) Close() {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, l := range f.loggers {
		l.Stop()
	}
	f.loggers = make(map[string]Logger)
}

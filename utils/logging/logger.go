// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface components log through. It is a thin wrapper over
// zap so call sites stay structured.
type Logger interface {
	Fatal(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Verbo(msg string, fields ...zap.Field)

	// StopOnPanic logs and re-raises panics from the calling goroutine.
	StopOnPanic()

	Stop()
}

var _ Logger = (*log)(nil)

type log struct {
	internal *zap.Logger
}

func NewWrappedCore(core zapcore.Core) Logger {
	return &log{
		internal: zap.New(core, zap.AddCaller()),
	}
}

func (l *log) Fatal(msg string, fields ...zap.Field) {
	l.internal.Fatal(msg, fields...)
}

func (l *log) Error(msg string, fields ...zap.Field) {
	l.internal.Error(msg, fields...)
}

func (l *log) Warn(msg string, fields ...zap.Field) {
	l.internal.Warn(msg, fields...)
}

func (l *log) Info(msg string, fields ...zap.Field) {
	l.internal.Info(msg, fields...)
}

func (l *log) Debug(msg string, fields ...zap.Field) {
	l.internal.Debug(msg, fields...)
}

func (l *log) Verbo(msg string, fields ...zap.Field) {
	l.internal.Log(zapcore.Level(-2), msg, fields...)
}

func (l *log) StopOnPanic() {
	if r := recover(); r != nil {
		l.internal.Error("panicking", zap.Any("reason", r), zap.Stack("stack"))
		l.Stop()
		panic(r)
	}
}

func (l *log) Stop() {
	_ = l.internal.Sync()
}

// NoLog drops every message. Useful default for tests.
type NoLog struct{}

var _ Logger = NoLog{}

func (NoLog) Fatal(string, ...zap.Field) {}
func (NoLog) Error(string, ...zap.Field) {}
func (NoLog) Warn(string, ...zap.Field)  {}
func (NoLog) Info(string, ...zap.Field)  {}
func (NoLog) Debug(string, ...zap.Field) {}
func (NoLog) Verbo(string, ...zap.Field) {}
func (NoLog) StopOnPanic()               {}
func (NoLog) Stop()                      {}

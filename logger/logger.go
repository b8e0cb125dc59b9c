// Package logger
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Init(path string)
	InitMultiWriter(path string)

	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Debug(msg string)

	WithStr(key, value string) Logger
	WithInt(key string, value int) Logger
	WithInt64(key string, value int64) Logger
	WithErr(err error) Logger
}

type logger struct {
	base zerolog.Logger
	path string
}

func New() Logger {
	return &logger{
		path: "./logs/log.txt",
	}
}

func (l *logger) Init(path string) {
	if path != "" {
		l.path = path
	}

	logWriter := &lumberjack.Logger{
		Filename:   l.path,
		MaxSize:    5,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	l.base = zerolog.New(logWriter).
		With().
		Timestamp().
		Logger()
}

func (l *logger) InitMultiWriter(path string) {
	if path != "" {
		l.path = path
	}

	fileWriter := &lumberjack.Logger{
		Filename:   l.path,
		MaxSize:    5,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	multi := io.MultiWriter(os.Stderr, fileWriter)

	l.base = zerolog.New(multi).
		With().
		Timestamp().
		Logger()
}

func (l *logger) Info(msg string) {
	l.base.Info().Msg(msg)
}

func (l *logger) Warn(msg string) {
	l.base.Warn().Msg(msg)
}

func (l *logger) Fatal(msg string) {
	l.base.Fatal().Msg(msg)
}

func (l *logger) Error(msg string) {
	l.base.Error().Msg(msg)
}

func (l *logger) Debug(msg string) {
	l.base.Debug().Msg(msg)
}

func (l *logger) WithStr(key, value string) Logger {
	return &logger{
		base: l.base.With().Str(key, value).Logger(),
		path: l.path,
	}
}

func (l *logger) WithInt(key string, value int) Logger {
	return &logger{
		base: l.base.With().Int(key, value).Logger(),
		path: l.path,
	}
}

func (l *logger) WithInt64(key string, value int64) Logger {
	return &logger{
		base: l.base.With().Int64(key, value).Logger(),
		path: l.path,
	}
}

func (l *logger) WithErr(err error) Logger {
	return &logger{
		base: l.base.With().AnErr("error", err).Logger(),
		path: l.path,
	}
}

func LogPath(path string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, ".lanchat", path)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "lanchat.log")
	return logPath, nil
}

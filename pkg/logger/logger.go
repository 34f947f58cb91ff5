package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

var (
	Log *logrus.Logger

	mu      sync.Mutex
	logFile *os.File
)

// Init 按配置初始化全局日志。output 为 stdout、stderr 或文件路径（追加写）；
// 无法识别的级别退回 info 并记一条警告
func Init(level, format, output string) error {
	l := logrus.New()
	l.SetFormatter(newFormatter(format))

	w, f, err := openOutput(output)
	if err != nil {
		return err
	}
	l.SetOutput(w)

	lvl, parseErr := logrus.ParseLevel(level)
	if parseErr != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	mu.Lock()
	prev := logFile
	Log, logFile = l, f
	mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	if parseErr != nil {
		l.WithField("level", level).Warn("未知日志级别，使用 info")
	}
	return nil
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: timestampFormat}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	}
}

func openOutput(output string) (io.Writer, *os.File, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", output, err)
	}
	return f, f, nil
}

// Close 关闭日志文件（输出到文件时）
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	if Log != nil {
		Log.SetOutput(os.Stderr)
	}
	return err
}

// get 未调用 Init 时（测试、库调用）退回到输出到 stderr 的默认实例
func get() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if Log == nil {
		Log = logrus.New()
	}
	return Log
}

func WithField(key string, value interface{}) *logrus.Entry {
	return get().WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return get().WithFields(fields)
}

// WithError 以 error 字段附带错误
func WithError(err error) *logrus.Entry {
	return get().WithError(err)
}

func Info(args ...interface{}) {
	get().Info(args...)
}

func Infof(format string, args ...interface{}) {
	get().Infof(format, args...)
}

func Error(args ...interface{}) {
	get().Error(args...)
}

func Warn(args ...interface{}) {
	get().Warn(args...)
}

func Debug(args ...interface{}) {
	get().Debug(args...)
}

func Fatal(args ...interface{}) {
	get().Fatal(args...)
}

package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*logrus.Logger
	fileLogger *logrus.Logger
	filePath   string
}

var defaultLogger *Logger

func init() {
	// 控制台日志配置
	consoleLogger := logrus.New()
	consoleLogger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	consoleLogger.SetOutput(os.Stdout)
	consoleLogger.SetLevel(logrus.DebugLevel)

	// Setup 之前文件日志丢弃输出
	fileLogger := logrus.New()
	fileLogger.SetOutput(io.Discard)

	defaultLogger = &Logger{
		Logger:     consoleLogger,
		fileLogger: fileLogger,
	}
}

// Setup 根据配置启用文件日志（lumberjack 轮转）并设置日志级别
func Setup(c config.Log) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	defaultLogger.Logger.SetLevel(level)

	// 创建日志目录
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return err
	}

	// 文件日志配置
	fileLogger := logrus.New()
	fileLogger.SetFormatter(&logrus.JSONFormatter{
		PrettyPrint:     false,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	fileLogger.SetLevel(level)

	// 使用lumberjack进行日志轮转
	filePath := filepath.Join(c.Dir, c.File)
	fileLogger.SetOutput(&lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	})

	defaultLogger.fileLogger = fileLogger
	defaultLogger.filePath = filePath
	return nil
}

// FilePath 返回当前文件日志路径，未启用时为空
func FilePath() string {
	return defaultLogger.filePath
}

// SetOutput 替换控制台输出，测试中用于捕获日志
func SetOutput(w io.Writer) {
	defaultLogger.Logger.SetOutput(w)
}

// WithFields 同时写入控制台与文件的结构化日志
func WithFields(fields logrus.Fields) *Entry {
	return &Entry{
		console: defaultLogger.Logger.WithFields(fields),
		file:    defaultLogger.fileLogger.WithFields(fields),
	}
}

type Entry struct {
	console *logrus.Entry
	file    *logrus.Entry
}

func (e *Entry) Infof(format string, args ...any) {
	e.console.Infof(format, args...)
	e.file.Infof(format, args...)
}

func (e *Entry) Warnf(format string, args ...any) {
	e.console.Warnf(format, args...)
	e.file.Warnf(format, args...)
}

func (e *Entry) Errorf(format string, args ...any) {
	e.console.Errorf(format, args...)
	e.file.Errorf(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Logger.Infof(format, args...)
	defaultLogger.fileLogger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Logger.Warnf(format, args...)
	defaultLogger.fileLogger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	defaultLogger.Logger.Errorf(format, args...)
	defaultLogger.fileLogger.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	defaultLogger.fileLogger.Errorf(format, args...)
	defaultLogger.Logger.Fatalf(format, args...)
}

func Debugf(format string, args ...any) {
	defaultLogger.Logger.Debugf(format, args...)
	defaultLogger.fileLogger.Debugf(format, args...)
}

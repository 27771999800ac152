package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 项目统一日志接口，kv 为交替的键值对
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志选项
type Options struct {
	Level    string
	Writer   []string // console, file
	FilePath string
	MaxSize  int // MB
	MaxAge   int // 天
}

type zlog struct {
	zl zerolog.Logger
}

// New 基于 zerolog 创建日志器
func New(opts Options) Logger {
	var writers []io.Writer
	for _, w := range opts.Writer {
		switch strings.ToLower(w) {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "file":
			path := opts.FilePath
			if path == "" {
				path = "logs/cdpjobstats.log"
			}
			writers = append(writers, &lumberjack.Logger{
				Filename: path,
				MaxSize:  max(opts.MaxSize, 1),
				MaxAge:   opts.MaxAge,
				Compress: true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	return newZlog(zerolog.MultiLevelWriter(writers...), opts.Level)
}

// parseLevel 空或无法识别的级别按 info 处理
func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

func newZlog(w io.Writer, level string) *zlog {
	return &zlog{zl: zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()}
}

// NewNop 创建丢弃所有输出的日志器
func NewNop() Logger {
	return &zlog{zl: zerolog.Nop()}
}

func (l *zlog) Debug(msg string, kv ...any) { l.zl.Debug().Fields(kv).Msg(msg) }
func (l *zlog) Info(msg string, kv ...any)  { l.zl.Info().Fields(kv).Msg(msg) }
func (l *zlog) Warn(msg string, kv ...any)  { l.zl.Warn().Fields(kv).Msg(msg) }
func (l *zlog) Error(msg string, kv ...any) { l.zl.Error().Fields(kv).Msg(msg) }

// Err 打印带 error 的错误日志
func (l *zlog) Err(err error, msg string, kv ...any) {
	l.zl.Error().Err(err).Fields(kv).Msg(msg)
}

// With 返回携带固定字段的子日志器
func (l *zlog) With(kv ...any) Logger {
	return &zlog{zl: l.zl.With().Fields(kv).Logger()}
}

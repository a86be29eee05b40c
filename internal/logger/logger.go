package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// 包级单例：各组件直接用 Infof/Warnf 打日志，
// 输出与级别在进程启动时按配置重定向。
var (
	level   slog.LevelVar
	current atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	current.Store(build(os.Stdout))
}

func build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level}))
}

// SetOutput 重定向日志输出，main 里用 MultiWriter 同时写终端与文件。
func SetOutput(w io.Writer) {
	current.Store(build(w))
}

// SetLevel 按配置调整级别，无法识别的写法退回 info。
func SetLevel(s string) {
	level.Set(parseLevel(s))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debugf(format string, v ...any) { current.Load().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { current.Load().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { current.Load().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { current.Load().Error(fmt.Sprintf(format, v...)) }

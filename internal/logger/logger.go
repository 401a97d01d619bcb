// Package logger はslogベースの構造化ロガーを構築する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ログ出力形式
const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Options はロガーの出力設定。
type Options struct {
	// Level はdebug / info / warn / error のいずれか。空の場合はinfo。
	Level string
	// Format はjsonまたはpretty。空の場合はjson。
	Format string
}

// ParseLevel はログレベル文字列をslog.Levelに変換する。未知の値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はoptsに従ったslog.Loggerを生成して返す。
// prettyはローカル開発用の色付き出力、それ以外はJSON構造化ログ。
func Setup(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	if strings.ToLower(opts.Format) == FormatPretty {
		return slog.New(NewPrettyHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// SetupDefault はSetupで生成したロガーをグローバルロガーとして設定する。
// wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := Setup(w, opts)
	slog.SetDefault(l)
	return l
}

package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Config controls basic logger behaviour.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or logfmt
}

// New builds a timestamped go-kit logger writing to w, filtered at cfg.Level.
func New(cfg Config, w io.Writer) log.Logger {
	w = log.NewSyncWriter(w)

	var logger log.Logger
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger = log.NewJSONLogger(w)
	default:
		logger = log.NewLogfmtLogger(w)
	}
	logger = level.NewFilter(logger, parseLevel(cfg.Level))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// NewFromEnv reads LOG_LEVEL and LOG_FORMAT, defaulting to logfmt at info
// level on stderr.
func NewFromEnv() log.Logger {
	return New(Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")}, os.Stderr)
}

func parseLevel(l string) level.Option {
	switch strings.ToLower(l) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

type ctxKey struct{}

// ContextWithLogger stores a logger on the context.
func ContextWithLogger(ctx context.Context, l log.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored on ctx, or a no-op logger.
func FromContext(ctx context.Context) log.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(log.Logger); ok {
			return l
		}
	}
	return log.NewNopLogger()
}

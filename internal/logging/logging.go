// Package logging builds the zap loggers used across hookcatch and the typed
// fields they share.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New returns a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.Set(strings.ToLower(cmpOr(cfg.Level, "info"))); err != nil {
		return nil, err
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cmpOr(cfg.Format, "json")) {
	case "json":
		encoder = zapcore.NewJSONEncoder(enc)
	case "console":
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", "hookcatch")), nil
}

func cmpOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv reads HOOKCATCH_LOG_LEVEL and HOOKCATCH_LOG_FORMAT.
func FromEnv() Config {
	return Config{
		Level:  os.Getenv("HOOKCATCH_LOG_LEVEL"),
		Format: os.Getenv("HOOKCATCH_LOG_FORMAT"),
	}
}

// Field helpers keep key names consistent across components.

func Port(port int) zap.Field { return zap.Int("port", port) }
func Addr(addr string) zap.Field { return zap.String("addr", addr) }
func Domain(domain string) zap.Field { return zap.String("domain", domain) }
func RemoteIP(ip string) zap.Field { return zap.String("remote_ip", ip) }
func Method(method string) zap.Field { return zap.String("method", method) }
func Path(path string) zap.Field { return zap.String("path", path) }
func TLSMode(mode string) zap.Field { return zap.String("tls_mode", mode) }
func Date(date string) zap.Field { return zap.String("date", date) }
func File(name string) zap.Field { return zap.String("file", name) }
func ContentType(ct string) zap.Field { return zap.String("content_type", ct) }
func Index(i int) zap.Field { return zap.Int("index", i) }
func Plugin(id string) zap.Field { return zap.String("plugin", id) }
func Username(name string) zap.Field { return zap.String("username", name) }

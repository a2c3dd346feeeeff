// Package observability provides logging for the relay server.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/config"
)

// NewLogger creates the process logger: the json format is a production
// encoder for deployed relays, console a human-readable one for local runs.
// Both write to stderr so frames on stdout pipes stay clean.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var encoder zapcore.Encoder
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	switch cfg.Format {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
		opts = append(opts, zap.Development())
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	sink := zapcore.Lock(os.Stderr)
	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, opts...), nil
}

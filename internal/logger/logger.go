// Package logger builds the zap loggers used by every node and command.
package logger

import (
	"fmt"
	"io"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatLogfmt  = "logfmt"
	FormatJSON    = "json"
)

// Config selects the encoder and minimum level of a logger
type Config struct {
	Format string        `mapstructure:"format" toml:"format"`
	Level  zapcore.Level `mapstructure:"level" toml:"level"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Format: FormatConsole,
		Level:  zapcore.InfoLevel,
	}
}

// New returns a logger writing to w
func New(w io.Writer, cfg Config) (*zap.Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339Nano))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", FormatConsole:
		encoder = zapcore.NewConsoleEncoder(config)
	case FormatLogfmt:
		encoder = zaplogfmt.NewEncoder(config)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(config)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		cfg.Level,
	)), nil
}

// Package xlog is a thin structured-logging shim over zerolog, grounded
// on the corpus's zigbee-ash reference implementation's logging style
// (chained Debug()/Info()/Warn().Msg() calls with typed fields). It
// exists so datalink.Config and transport carry a Logger field instead
// of reaching for a package-global logger.
package xlog

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger. The zero value discards everything and
// is always safe to call, so callers never need a nil check before
// first use.
type Logger struct {
	z *zerolog.Logger
}

// New wraps z.
func New(z zerolog.Logger) Logger {
	return Logger{z: &z}
}

// Nop returns the discarding zero value, spelled out for readability at
// call sites that want to be explicit about disabling logging.
func Nop() Logger {
	return Logger{}
}

// Console builds a human-readable logger writing to w at level, for
// cmd/fbp-host's interactive use.
func Console(w io.Writer, level zerolog.Level) Logger {
	z := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().Timestamp().Logger()
	return New(z)
}

func (l Logger) logger() *zerolog.Logger {
	if l.z == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return l.z
}

// Debug starts a debug-level event.
func (l Logger) Debug() *zerolog.Event { return l.logger().Debug() }

// Info starts an info-level event.
func (l Logger) Info() *zerolog.Event { return l.logger().Info() }

// Warn starts a warn-level event.
func (l Logger) Warn() *zerolog.Event { return l.logger().Warn() }

// Error starts an error-level event.
func (l Logger) Error() *zerolog.Event { return l.logger().Error() }

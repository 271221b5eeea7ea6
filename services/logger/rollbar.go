package logsvc

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
)

// RollbarLogger reports to Rollbar and mirrors every entry to a local zerolog logger.
type RollbarLogger struct {
	local zerolog.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(local zerolog.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{local: local}
}

// NewLocal returns the zerolog logger entries are mirrored to. Console output is used in debug mode.
func NewLocal(w io.Writer, component string, debug bool) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level := zerolog.InfoLevel
	if debug {
		w = zerolog.ConsoleWriter{Out: w}
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, access.Identity
// The first identity becomes the item's person, carried by a per-item context.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	ctx := context.Background()
	personSet := false
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		if id, ok := arg.(access.Identity); ok {
			if !personSet {
				ctx = rollbar.NewPersonContext(ctx, &rollbar.Person{
					Id:       id.Subject(),
					Username: string(id.Role()),
					Email:    personEmail(id),
				})
				personSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	return append(newArgs, ctx)
}

func personEmail(id access.Identity) string {
	if s, ok := id.Staff(); ok {
		return s.Email
	}
	return ""
}

func (l RollbarLogger) print(e *zerolog.Event, msg string, args []interface{}) {
	e.Func(func(e *zerolog.Event) { addFields(e, args) }).Msg(msg)
}

func addFields(e *zerolog.Event, args []interface{}) {
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			e.Err(v)
		case map[string]interface{}:
			e.Fields(v)
		case access.Identity:
			e.Str("principal", v.Subject()).Str("role", string(v.Role())).Str("school", v.SchoolID())
		default:
			e.Interface(fmt.Sprintf("arg%d", i), v)
		}
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(l.local.Debug(), msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(l.local.Info(), msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(l.local.Warn(), msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(l.local.Error(), msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.print(l.local.Fatal(), msg, args)
}

// ZeroLogger only writes locally. Used by tests and the admin CLI.
type ZeroLogger struct {
	local zerolog.Logger
}

var _ core.Logger = (*ZeroLogger)(nil)

func NewZeroLogger(local zerolog.Logger) *ZeroLogger {
	return &ZeroLogger{local: local}
}

// NewNopLogger discards everything.
func NewNopLogger() *ZeroLogger {
	return &ZeroLogger{local: zerolog.Nop()}
}

func (l ZeroLogger) Debug(msg string, args ...interface{}) {
	l.local.Debug().Func(func(e *zerolog.Event) { addFields(e, args) }).Msg(msg)
}

func (l ZeroLogger) Info(msg string, args ...interface{}) {
	l.local.Info().Func(func(e *zerolog.Event) { addFields(e, args) }).Msg(msg)
}

func (l ZeroLogger) Warn(msg string, args ...interface{}) {
	l.local.Warn().Func(func(e *zerolog.Event) { addFields(e, args) }).Msg(msg)
}

func (l ZeroLogger) Error(msg string, args ...interface{}) {
	l.local.Error().Func(func(e *zerolog.Event) { addFields(e, args) }).Msg(msg)
}

func (l ZeroLogger) Fatal(msg string, args ...interface{}) {
	l.local.Fatal().Func(func(e *zerolog.Event) { addFields(e, args) }).Msg(msg)
}

// Package logging wraps github.com/yanun0323/logs with a small Logger
// interface so reactor components can be unit tested against a no-op
// implementation instead of the package-level logs.* functions.
package logging

import (
	"fmt"
	"strings"

	"github.com/yanun0323/logs"
)

// Logger is the structured-ish logging surface used throughout the
// reactor. kv is a flat list of alternating key/value pairs, folded into
// the message text the way the rest of the field format does.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Default wraps the package-level logs.* functions.
type Default struct {
	Component string
}

// New creates a Default logger tagged with a component name, e.g.
// "engine", "reconciler", "dc".
func New(component string) Default {
	return Default{Component: component}
}

func (d Default) format(msg string, kv []any) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(d.Component)
	b.WriteString("] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		b.WriteString(" ")
		if s, ok := kv[i].(string); ok {
			b.WriteString(s)
		}
		b.WriteString("=")
		b.WriteString(toString(kv[i+1]))
	}
	return b.String()
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (d Default) Debug(msg string, kv ...any) { logs.Infof("%s", d.format(msg, kv)) }
func (d Default) Info(msg string, kv ...any)  { logs.Infof("%s", d.format(msg, kv)) }
func (d Default) Warn(msg string, kv ...any)  { logs.Infof("%s", d.format(msg, kv)) }
func (d Default) Error(msg string, kv ...any) { logs.Errorf("%s", d.format(msg, kv)) }

// nop is a silent logger for tests and library-internal defaults.
type nop struct{}

func (nop) Debug(string, ...any) {}
func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nop{} }

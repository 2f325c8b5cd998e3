// Package dispatch is the command entry point exposed by entities and the
// global document.
//
// A rule assignment with the "call" operator resolves its value into a
// command line and hands it to ParseStr on the target scope. The command
// tree behind ParseStr is pluggable through the Dispatcher interface; Table
// is a small map-backed implementation used by the CLI and tests.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
)

// Code is the structured result of ParseStr.
type Code int

const (
	OK Code = iota
	ErrUnknownCommand
	ErrBadArguments
	ErrFailed
	ErrNoDispatcher
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case ErrUnknownCommand:
		return "UNKNOWN_COMMAND"
	case ErrBadArguments:
		return "BAD_ARGUMENTS"
	case ErrFailed:
		return "FAILED"
	case ErrNoDispatcher:
		return "NO_DISPATCHER"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Env is what a command sees: the document it was invoked on and the
// shared global document. Target is "global" or an entity label.
type Env struct {
	Target string
	Self   *doc.Document
	Global *doc.Document
}

// Dispatcher routes a command line to a handler.
type Dispatcher interface {
	Dispatch(env Env, line string) Code
}

// Func is a command handler. args excludes the command name.
type Func func(env Env, args []string) error

// ErrUsage signals malformed arguments. Handlers wrap it to get
// ErrBadArguments instead of ErrFailed.
var ErrUsage = errors.New("usage")

// Table maps command names to handlers. It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	handlers map[string]Func
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{handlers: make(map[string]Func)}
}

// NewStandardTable returns a table with the built-in commands.
func NewStandardTable() *Table {
	t := NewTable()
	t.Register("set", cmdSet)
	t.Register("set-global", cmdSetGlobal)
	t.Register("remove", cmdRemove)
	t.Register("echo", cmdEcho)
	return t
}

// Register binds name to fn, replacing any previous binding.
func (t *Table) Register(name string, fn Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = fn
}

// Commands returns the registered names in sorted order.
func (t *Table) Commands() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch splits line on whitespace and runs the named handler.
func (t *Table) Dispatch(env Env, line string) Code {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ErrBadArguments
	}

	t.mu.RLock()
	fn, ok := t.handlers[fields[0]]
	t.mu.RUnlock()
	if !ok {
		slog.Warn("unknown command", "target", env.Target, "command", fields[0])
		return ErrUnknownCommand
	}

	if err := fn(env, fields[1:]); err != nil {
		slog.Warn("command failed", "target", env.Target, "command", fields[0], "error", err)
		if errors.Is(err, ErrUsage) {
			return ErrBadArguments
		}
		return ErrFailed
	}
	return OK
}

// ParseStr runs line through d, reporting ErrNoDispatcher when d is nil.
func ParseStr(d Dispatcher, env Env, line string) Code {
	if d == nil {
		return ErrNoDispatcher
	}
	return d.Dispatch(env, line)
}

func cmdSet(env Env, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: set <key> <value>", ErrUsage)
	}
	return SetScalar(env.Self, args[0], strings.Join(args[1:], " "))
}

func cmdSetGlobal(env Env, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: set-global <key> <value>", ErrUsage)
	}
	if env.Global == nil {
		return errors.New("no global document")
	}
	return SetScalar(env.Global, args[0], strings.Join(args[1:], " "))
}

// SetScalar stores text at key as the most specific scalar it parses as.
func SetScalar(d *doc.Document, key, text string) error {
	return d.SetNode(key, doc.InferScalar(text))
}

func cmdRemove(env Env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: remove <key>", ErrUsage)
	}
	env.Self.Remove(args[0])
	return nil
}

func cmdEcho(env Env, args []string) error {
	slog.Info("echo", "target", env.Target, "text", strings.Join(args, " "))
	return nil
}

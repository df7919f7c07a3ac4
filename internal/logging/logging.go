// Package logging provides the structured logging used throughout the
// node manager: a slog.Handler that renders records the way fleet
// operators already parse node-manager logs.
//
// Log lines follow the format:
//
//	<ISO8601_time> <component> [<LEVEL>] <source>: [node=<node> ]<message>[ key=value ...]
//
// The "node" attribute is a special filter field: when present on a
// record it is extracted and placed before the message body so
// log-shipping parsers can capture it as a named group, the same way the
// teacher's ServiceHandler promotes "user".
package logging

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
)

// Config holds the logging configuration for one process.
type Config struct {
	Level     slog.Level
	Component string
	Writer    io.Writer
}

// FlagPointers holds pointers to flag values for logging configuration,
// resolved into a Config only after flag.Parse() runs.
type FlagPointers struct {
	level     *string
	component *string
}

// RegisterFlags registers logging-related command-line flags.
func RegisterFlags() *FlagPointers {
	return &FlagPointers{
		level:     flag.String("log-level", "info", "Log level (debug, info, warn, error)"),
		component: flag.String("log-component", "alloy-nodemanager", "Component name attached to log lines"),
	}
}

// ToConfig converts flag pointers to a Config. Must be called after flag.Parse().
func (f *FlagPointers) ToConfig(w io.Writer) Config {
	return Config{
		Level:     ParseLevel(*f.level),
		Component: *f.component,
		Writer:    w,
	}
}

// ParseLevel converts a string log level to slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// nodeAttrKey is the slog attribute key promoted in front of the message.
const nodeAttrKey = "node"

// NodeHandler is a slog.Handler that formats records as:
//
//	<ISO8601 time> <component> [<LEVEL>] <source>: [node=<node> ]<message> key=value...
//
// The <source> field is the calling Go package name.
type NodeHandler struct {
	component string
	level     slog.Level
	writer    io.Writer
	mu        *sync.Mutex
	attrs     []slog.Attr
	groups    []string
}

// NewNodeHandler creates a handler that writes to w.
func NewNodeHandler(component string, level slog.Level, w io.Writer) *NodeHandler {
	return &NodeHandler{
		component: component,
		level:     level,
		writer:    w,
		mu:        &sync.Mutex{},
	}
}

func (h *NodeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *NodeHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02T15:04:05.000-07:00")
	levelStr := r.Level.String()
	source := callerSource(r.PC)

	var node string
	var extra []string

	collect := func(a slog.Attr, groups []string) {
		if a.Key == nodeAttrKey && node == "" {
			node = a.Value.String()
			return
		}
		extra = append(extra, formatAttr(a, groups))
	}

	for _, a := range h.resolveAttrs() {
		collect(a, h.groups)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a, nil)
		return true
	})

	nodePrefix := ""
	if node != "" {
		nodePrefix = "node=" + node + " "
	}

	msg := r.Message
	if len(extra) > 0 {
		msg = msg + " " + strings.Join(extra, " ")
	}

	line := fmt.Sprintf("%s %s [%s] %s: %s%s\n",
		timeStr, h.component, levelStr, source, nodePrefix, msg)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write([]byte(line))
	return err
}

func (h *NodeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &NodeHandler{
		component: h.component,
		level:     h.level,
		writer:    h.writer,
		mu:        h.mu,
		attrs:     newAttrs,
		groups:    h.groups,
	}
}

func (h *NodeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &NodeHandler{
		component: h.component,
		level:     h.level,
		writer:    h.writer,
		mu:        h.mu,
		attrs:     h.attrs,
		groups:    newGroups,
	}
}

// New builds a *slog.Logger backed by a NodeHandler for the given config.
func New(config Config) *slog.Logger {
	w := config.Writer
	if w == nil {
		w = io.Discard
	}
	return slog.New(NewNodeHandler(config.Component, config.Level, w))
}

func callerSource(pc uintptr) string {
	if pc == 0 {
		return "unknown"
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.Function == "" {
		return "unknown"
	}
	parts := strings.Split(f.Function, "/")
	lastPart := parts[len(parts)-1]
	if idx := strings.Index(lastPart, "."); idx >= 0 {
		return lastPart[:idx]
	}
	return lastPart
}

func (h *NodeHandler) resolveAttrs() []slog.Attr {
	if len(h.groups) == 0 {
		return h.attrs
	}
	result := make([]slog.Attr, len(h.attrs))
	prefix := strings.Join(h.groups, ".") + "."
	for i, a := range h.attrs {
		result[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return result
}

func formatAttr(a slog.Attr, groups []string) string {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return fmt.Sprintf("%s=%s", key, a.Value.String())
}

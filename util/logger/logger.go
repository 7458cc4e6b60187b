/*
 * S390 - Wrapper for slog
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// LogHandler writes one line per record to the log file. Errors and
// warnings, or everything in debug mode, are copied to the console.
type LogHandler struct {
	out     io.Writer    // Log file, may be nil.
	console io.Writer    // Operator console.
	level   slog.Leveler // Lowest level written.
	prefix  string       // Group prefix for attribute keys.
	attrs   []string     // Attributes from WithAttrs.
	mu      *sync.Mutex
	debug   *bool
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LogHandler) clone() *LogHandler {
	n := *h
	n.attrs = append([]string{}, h.attrs...)
	return &n
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := h.clone()
	for _, a := range attrs {
		n.attrs = append(n.attrs, n.format(a))
	}
	return n
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := h.clone()
	n.prefix += name + "."
	return n
}

// Attribute as key=value.
func (h *LogHandler) format(a slog.Attr) string {
	return h.prefix + a.Key + "=" + a.Value.Resolve().String()
}

func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	formattedTime := r.Time.Format("2006/01/02 15:04:05")

	strs := []string{formattedTime, level, r.Message}
	strs = append(strs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		strs = append(strs, h.format(a))
		return true
	})
	b := []byte(strings.Join(strs, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(b)
	}

	if *h.debug || r.Level > slog.LevelInfo {
		if _, cerr := h.console.Write(b); err == nil {
			err = cerr
		}
	}
	return err
}

// Copy all records to the console when debug is set.
func (h *LogHandler) SetDebug(debug bool) {
	h.mu.Lock()
	*h.debug = debug
	h.mu.Unlock()
}

func NewHandler(file io.Writer, console io.Writer, opts *slog.HandlerOptions, debug bool) *LogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogHandler{
		out:     file,
		console: console,
		level:   level,
		mu:      &sync.Mutex{},
		debug:   &debug,
	}
}

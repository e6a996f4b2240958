// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/phsym/console-slog"
)

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}

// newLogger returns a colored console logger when w is a terminal and a JSON
// logger otherwise, unless format forces one.
func newLogger(w io.Writer, c LogConfig) *slog.Logger {
	level, _ := parseLevel(c.Level)
	f, isFile := w.(*os.File)
	useConsole := c.Format == "console"
	if (c.Format == "" || c.Format == "auto") && isFile {
		useConsole = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if useConsole {
		if isFile {
			// Translates the escape sequences on Windows consoles.
			w = colorable.NewColorable(f)
		}
		return slog.New(consoleHandler(w, level))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}))
}

func consoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return console.NewHandler(w, &console.HandlerOptions{Level: level})
}

package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// colorEnabled reports whether w is an interactive terminal that should get colors.
func colorEnabled(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// paint renders s with c only when colored output is on.
func paint(c *color.Color, s string, colored bool) string {
	if !colored || c == nil {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

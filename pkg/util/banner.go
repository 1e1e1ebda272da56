package util

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

// ANSI colours accepted by PrintBanner.
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

func colorCode(name string) string {
	switch name {
	case "red":
		return ColorRed
	case "green":
		return ColorGreen
	case "yellow":
		return ColorYellow
	case "blue":
		return ColorBlue
	case "cyan":
		return ColorCyan
	default:
		return ColorReset
	}
}

// PrintBanner writes text as ASCII art in a single colour, followed by the version line.
func PrintBanner(w io.Writer, text, color string) {
	ansi := colorCode(color)
	for _, line := range figure.NewFigure(text, "", true).Slicify() {
		fmt.Fprintln(w, ansi+line+ColorReset)
	}
	fmt.Fprintf(w, "%s%s %s%s\n\n", ansi, text, Version, ColorReset)
}

package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

var titleCaser = cases.Title(language.English)

// statusLabel turns a monitor reason code into a table label.
func statusLabel(reason string, colorize bool) string {
	label := "OK"
	color := ansiGreen
	if reason != "" {
		label = titleCaser.String(strings.ReplaceAll(reason, "-", " "))
		label = strings.ReplaceAll(label, "Ddc", "DDC")
		color = ansiYellow
	}
	if colorize {
		return color + label + ansiReset
	}
	return label
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

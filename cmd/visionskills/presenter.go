package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// presenter writes user-facing CLI output. Logs go through logrus; this is
// for results and status lines only.
type presenter struct {
	out    io.Writer
	errOut io.Writer
}

func newPresenter(out, errOut io.Writer) *presenter {
	switch os.Getenv("VISIONSKILLS_COLOR") {
	case "always", "force":
		color.NoColor = false
	case "never", "off":
		color.NoColor = true
	}
	return &presenter{out: out, errOut: errOut}
}

func (p *presenter) Error(err error, context string) {
	if err == nil {
		return
	}
	c := color.New(color.FgRed, color.Bold)
	if context != "" {
		c.Fprintf(p.errOut, "[ERROR] %s: %v\n", context, err)
		return
	}
	c.Fprintf(p.errOut, "[ERROR] %v\n", err)
}

func (p *presenter) Success(message string) {
	color.New(color.FgGreen, color.Bold).Fprintf(p.out, "✓ %s\n", message)
}

func (p *presenter) Warning(message string) {
	color.New(color.FgYellow, color.Bold).Fprintf(p.errOut, "⚠ %s\n", message)
}

func (p *presenter) Info(message string) {
	fmt.Fprintln(p.out, message)
}

func (p *presenter) Section(title string) {
	c := color.New(color.Bold)
	c.Fprintln(p.out, title)
	c.Fprintln(p.out, strings.Repeat("-", len(title)))
}

// Field prints an indented "name: value" line with the name highlighted.
func (p *presenter) Field(name string, value any) {
	fmt.Fprintf(p.out, "  %s %v\n", color.CyanString(name+":"), value)
}

// Item prints a list entry; marked entries are highlighted.
func (p *presenter) Item(index int, text string, marked bool) {
	if marked {
		color.New(color.FgGreen).Fprintf(p.out, "* [%d] %s\n", index, text)
		return
	}
	fmt.Fprintf(p.out, "  [%d] %s\n", index, text)
}

package main

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

const version = "1.0.0"

const bannerArt = `
 ____  _                       _      _             _     _
|  _ \(_)___  ___ ___  _ __ __| |    / \   _ __ ___| |__ (_)_   _____ _ __
| | | | / __|/ __/ _ \| '__/ _' |   / _ \ | '__/ __| '_ \| \ \ / / _ \ '__|
| |_| | \__ \ (_| (_) | | | (_| |  / ___ \| | | (__| | | | |\ V /  __/ |
|____/|_|___/\___\___/|_|  \__,_| /_/   \_\_|  \___|_| |_|_| \_/ \___|_|
`

// ShowBanner prints the welcome panel
func (c *TerminalConsole) ShowBanner() {
	lines := strings.Split(strings.Trim(bannerArt, "\n"), "\n")
	width := 0
	for _, l := range lines {
		width = max(width, runewidth.StringWidth(l))
	}

	body := make([]string, 0, len(lines)+4)
	for _, l := range lines {
		body = append(body, c.paint(ansiBold+ansiMagenta, padRight(l, width)))
	}
	body = append(body,
		padRight("", width),
		c.paint(ansiBold+ansiCyan, center("Discord Server Archiving Tool", width)),
		c.paint(ansiDim, center(fmt.Sprintf("v%s", version), width)),
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, c.panelRaw("Welcome!", body, width, ansiGreen))
	fmt.Fprintln(c.out)
}

// panelRaw is panel for lines that already carry color codes and share a
// known display width.
func (c *TerminalConsole) panelRaw(title string, lines []string, width int, color string) string {
	width = max(width, runewidth.StringWidth(title)+2)
	inner := width + 2
	border := func(s string) string { return c.paint(color, s) }

	var b strings.Builder
	b.WriteString(border("╭─ "))
	b.WriteString(c.paint(ansiBold+color, title))
	b.WriteString(border(" " + strings.Repeat("─", inner-3-runewidth.StringWidth(title)) + "╮\n"))
	for _, l := range lines {
		b.WriteString(border("│") + " " + l + " " + border("│") + "\n")
	}
	b.WriteString(border("╰" + strings.Repeat("─", inner) + "╯\n"))
	return b.String()
}

func padRight(s string, width int) string {
	return s + strings.Repeat(" ", max(0, width-runewidth.StringWidth(s)))
}

func center(s string, width int) string {
	left := max(0, (width-runewidth.StringWidth(s))/2)
	return padRight(strings.Repeat(" ", left)+s, width)
}

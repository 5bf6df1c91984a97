package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Notifier receives one-way progress and status notifications
type Notifier interface {
	Log(message string, severity Severity)
	UpdateOverallProgress(current, total int, label string)
	UpdateChannelProgress(current, total int, label string)
	ShowPanel(title, message string, style PanelStyle)
}

// Console is the interactive side of the terminal. Select methods return a
// nil or empty result when the operator cancels.
type Console interface {
	Notifier
	PromptText(label string, secret bool) (string, error)
	Confirm(label string) (bool, error)
	SelectServer(servers []Server) (*Server, error)
	SelectChannels(channels []Channel) ([]Channel, error)
	SelectTheme(themes []string) (string, error)
}

// StatusReporter is implemented by consoles that can show a transient
// status line while the caller blocks.
type StatusReporter interface {
	StartStatus(label string) (stop func())
}

const (
	ansiReset   = "\033[0m"
	ansiBold    = "\033[1m"
	ansiDim     = "\033[2m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
)

// TerminalConsole implements Console on a line based terminal
type TerminalConsole struct {
	in       *bufio.Reader
	out      io.Writer
	color    bool
	secretFd int

	mu           sync.Mutex
	channelBar   *progressbar.ProgressBar
	channelLabel string
	channelMax   int
}

// NewTerminalConsole creates a console reading from in and writing to out.
// Colors are only emitted when color is set.
func NewTerminalConsole(in io.Reader, out io.Writer, color bool) *TerminalConsole {
	return &TerminalConsole{
		in:       bufio.NewReader(in),
		out:      out,
		color:    color,
		secretFd: -1,
	}
}

// NewStdConsole creates a console on the process' stdin and stdout
func NewStdConsole() *TerminalConsole {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	c := NewTerminalConsole(os.Stdin, colorable.NewColorableStdout(), tty && os.Getenv("NO_COLOR") == "")
	if isatty.IsTerminal(os.Stdin.Fd()) {
		c.secretFd = int(os.Stdin.Fd())
	}
	return c
}

func (c *TerminalConsole) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

func (c *TerminalConsole) prefix(severity Severity) string {
	switch severity {
	case SeverityError:
		return c.paint(ansiBold+ansiRed, "[ERROR]")
	case SeverityWarning:
		return c.paint(ansiBold+ansiYellow, "[WARNING]")
	case SeveritySuccess:
		return c.paint(ansiBold+ansiGreen, "[SUCCESS]")
	default:
		return c.paint(ansiBold+ansiCyan, "[INFO]")
	}
}

// Log prints one prefixed line above any live progress bar
func (c *TerminalConsole) Log(message string, severity Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLive()
	fmt.Fprintf(c.out, "%s %s\n", c.prefix(severity), message)
}

func (c *TerminalConsole) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLive()
	fmt.Fprintln(c.out, s)
}

func (c *TerminalConsole) clearLive() {
	if c.channelBar != nil {
		_ = c.channelBar.Clear()
	}
}

func (c *TerminalConsole) barOptions(label string) []progressbar.Option {
	return []progressbar.Option{
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription(label),
		progressbar.OptionEnableColorCodes(c.color),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSpinnerType(14),
	}
}

// UpdateOverallProgress prints the overall bar as a persistent line
func (c *TerminalConsole) UpdateOverallProgress(current, total int, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishChannelBar()

	if total <= 0 {
		fmt.Fprintf(c.out, "%s (%d/%d)\n", label, current, total)
		return
	}
	bar := progressbar.NewOptions(total, c.barOptions(c.paint(ansiBold, label))...)
	_ = bar.Set(current)
	fmt.Fprintln(c.out)
}

// UpdateChannelProgress drives the live bar of the channel being fetched.
// An unknown total shows a spinner with the running count.
func (c *TerminalConsole) UpdateChannelProgress(current, total int, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channelBar == nil || c.channelLabel != label {
		c.finishChannelBar()
		if total == 0 {
			return
		}
		c.channelBar = progressbar.NewOptions(total, c.barOptions("Channel: "+label)...)
		c.channelLabel = label
		c.channelMax = total
	}
	if total == 0 {
		_ = c.channelBar.Clear()
		c.channelBar = nil
		return
	}
	if total != UnknownTotal && total != c.channelMax {
		c.channelBar.ChangeMax(total)
		c.channelMax = total
	}
	_ = c.channelBar.Set(current)

	if total != UnknownTotal && current >= total {
		c.finishChannelBar()
	}
}

func (c *TerminalConsole) finishChannelBar() {
	if c.channelBar == nil {
		return
	}
	_ = c.channelBar.Finish()
	fmt.Fprintln(c.out)
	c.channelBar = nil
	c.channelLabel = ""
}

// StartStatus shows a spinner until stop is called
func (c *TerminalConsole) StartStatus(label string) func() {
	c.mu.Lock()
	bar := progressbar.NewOptions(-1, c.barOptions(label)...)
	c.mu.Unlock()

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				c.mu.Lock()
				_ = bar.Add(1)
				c.mu.Unlock()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			wg.Wait()
			c.mu.Lock()
			_ = bar.Clear()
			c.mu.Unlock()
		})
	}
}

var panelColors = map[PanelStyle]string{
	StyleInfo:  ansiBlue,
	StyleError: ansiRed,
	"green":    ansiGreen,
	"purple":   ansiMagenta,
}

// ShowPanel prints message inside a titled box
func (c *TerminalConsole) ShowPanel(title, message string, style PanelStyle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLive()
	fmt.Fprint(c.out, c.panel(title, strings.Split(message, "\n"), panelColors[style]))
}

func (c *TerminalConsole) panel(title string, lines []string, color string) string {
	width := runewidth.StringWidth(title) + 2
	for _, l := range lines {
		width = max(width, runewidth.StringWidth(l))
	}
	padded := make([]string, len(lines))
	for i, l := range lines {
		padded[i] = padRight(l, width)
	}
	return c.panelRaw(title, padded, width, color)
}

func (c *TerminalConsole) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *TerminalConsole) ask(label string) (string, error) {
	c.mu.Lock()
	c.clearLive()
	fmt.Fprintf(c.out, "%s: ", c.paint(ansiBold+ansiCyan, label))
	c.mu.Unlock()
	return c.readLine()
}

// PromptText asks for a line of input. Secret input is not echoed when stdin
// is a terminal.
func (c *TerminalConsole) PromptText(label string, secret bool) (string, error) {
	if !secret || c.secretFd < 0 {
		return c.ask(label)
	}

	c.mu.Lock()
	fmt.Fprintf(c.out, "%s: ", c.paint(ansiBold+ansiCyan, label))
	c.mu.Unlock()
	data, err := term.ReadPassword(c.secretFd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("reading secret input: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Confirm asks a yes/no question until it gets an answer
func (c *TerminalConsole) Confirm(label string) (bool, error) {
	for {
		answer, err := c.ask(c.paint(ansiYellow, label) + " [y/n]")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		c.Log("Please enter Y or N", SeverityError)
	}
}

// SelectServer lets the operator pick a server, optionally narrowing the
// list with "search <query>".
func (c *TerminalConsole) SelectServer(servers []Server) (*Server, error) {
	c.println("\n" + c.paint(ansiBold, "Select a Discord server to archive:"))
	shown := servers

	for {
		c.println(c.paint(ansiDim, "Use 'search <query>' to filter, 'list' to show all, a number to select, or 'q' to cancel."))
		if len(shown) == 0 {
			c.Log("No servers to display (check search filter or add bot to servers).", SeverityWarning)
			shown = servers
		}
		for i, s := range shown {
			c.println(fmt.Sprintf("  %s %s %s", c.paint(ansiBold+ansiBlue, strconv.Itoa(i+1)+"."), s.Name, c.paint(ansiDim, "(ID: "+s.ID+")")))
		}

		input, err := c.ask("Enter server number, 'search <query>', or 'list'")
		if err != nil {
			return nil, err
		}
		lower := strings.ToLower(input)

		switch {
		case lower == "q":
			return nil, nil
		case strings.HasPrefix(lower, "search "):
			query := strings.TrimSpace(input[len("search "):])
			shown = filterServers(servers, query)
			if len(shown) > 0 {
				c.println(c.paint(ansiGreen, fmt.Sprintf("Found %d servers matching '%s':", len(shown), query)))
			} else {
				c.Log(fmt.Sprintf("No servers found matching '%s'. Showing all.", query), SeverityWarning)
				shown = servers
			}
			continue
		case lower == "list":
			shown = servers
			c.println(c.paint(ansiGreen, "Displaying all available servers:"))
			continue
		}

		n, err := strconv.Atoi(input)
		if err != nil {
			c.Log("Invalid input. Use a number, 'search <query>', or 'list'.", SeverityError)
			continue
		}
		if n < 1 || n > len(shown) {
			c.Log(fmt.Sprintf("Server number %d out of range. Please try again.", n), SeverityError)
			continue
		}

		selected := shown[n-1]
		c.println(c.paint(ansiGreen, "Selected server: ") + selected.Name)
		ok, err := c.Confirm("Proceed with selected server?")
		if err != nil {
			return nil, err
		}
		if ok {
			return &selected, nil
		}
	}
}

// SelectChannels lets the operator pick channels by number or "all"
func (c *TerminalConsole) SelectChannels(channels []Channel) ([]Channel, error) {
	c.println("\n" + c.paint(ansiBold, "Select text channels to archive:"))
	for i, ch := range channels {
		c.println(fmt.Sprintf("  %s %s %s", c.paint(ansiBold+ansiBlue, strconv.Itoa(i+1)+"."), ch.Name, c.paint(ansiDim, "(ID: "+ch.ID+")")))
	}

	for {
		input, err := c.ask("Enter channel numbers separated by commas (e.g., 1,3,5), 'all' to select all, or 'q' to cancel")
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(input, "q") {
			return nil, nil
		}

		indexes, err := parseChannelSelection(input, len(channels))
		if err != nil {
			c.Log(err.Error()+". Please try again.", SeverityError)
			continue
		}

		selected := make([]Channel, 0, len(indexes))
		for _, i := range indexes {
			selected = append(selected, channels[i])
		}
		if len(selected) == len(channels) && strings.EqualFold(input, "all") {
			c.println(c.paint(ansiGreen, "ALL channels selected."))
		} else {
			c.println(c.paint(ansiGreen, "Selected channels:"))
			for _, ch := range selected {
				c.println("  - " + ch.Name)
			}
		}

		ok, err := c.Confirm("Proceed with selected channels?")
		if err != nil {
			return nil, err
		}
		if ok {
			return selected, nil
		}
	}
}

// SelectTheme lets the operator pick a theme by number
func (c *TerminalConsole) SelectTheme(themes []string) (string, error) {
	c.println("\n" + c.paint(ansiBold, "Select a theme for HTML generation:"))
	for i, t := range themes {
		c.println(fmt.Sprintf("  %s %s", c.paint(ansiBold+ansiBlue, strconv.Itoa(i+1)+"."), t))
	}

	for {
		input, err := c.ask("Enter theme number, or 'q' to cancel")
		if err != nil {
			return "", err
		}
		if strings.EqualFold(input, "q") {
			return "", nil
		}
		n, err := strconv.Atoi(input)
		if err != nil {
			c.Log("Invalid input. Please enter a number.", SeverityError)
			continue
		}
		if n < 1 || n > len(themes) {
			c.Log(fmt.Sprintf("Theme number %d out of range. Please try again.", n), SeverityError)
			continue
		}
		c.println(c.paint(ansiGreen, "Selected theme: ") + themes[n-1])
		return themes[n-1], nil
	}
}

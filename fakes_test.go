package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"
)

type progressUpdate struct {
	current, total int
	label          string
}

type logLine struct {
	message  string
	severity Severity
}

type panelLine struct {
	title, message string
	style          PanelStyle
}

// recordingNotifier keeps every notification for inspection
type recordingNotifier struct {
	mu      sync.Mutex
	logs    []logLine
	overall []progressUpdate
	channel []progressUpdate
	panels  []panelLine
}

func (n *recordingNotifier) Log(message string, severity Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, logLine{message, severity})
}

func (n *recordingNotifier) UpdateOverallProgress(current, total int, label string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.overall = append(n.overall, progressUpdate{current, total, label})
}

func (n *recordingNotifier) UpdateChannelProgress(current, total int, label string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channel = append(n.channel, progressUpdate{current, total, label})
}

func (n *recordingNotifier) ShowPanel(title, message string, style PanelStyle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.panels = append(n.panels, panelLine{title, message, style})
}

func (n *recordingNotifier) hasLog(message string, severity Severity) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, l := range n.logs {
		if l.message == message && l.severity == severity {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) hasPanel(title string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.panels {
		if p.title == title {
			return true
		}
	}
	return false
}

// scriptedConsole answers prompts from queues. An exhausted queue aborts,
// like closed stdin.
type scriptedConsole struct {
	recordingNotifier
	credentials []string
	confirms    []bool
	servers     []int // index into the offered list, -1 cancels
	channels    [][]int
	themes      []string // "" cancels
}

func (c *scriptedConsole) PromptText(label string, secret bool) (string, error) {
	if len(c.credentials) == 0 {
		return "", ErrAborted
	}
	v := c.credentials[0]
	c.credentials = c.credentials[1:]
	return v, nil
}

func (c *scriptedConsole) Confirm(label string) (bool, error) {
	if len(c.confirms) == 0 {
		return false, ErrAborted
	}
	v := c.confirms[0]
	c.confirms = c.confirms[1:]
	return v, nil
}

func (c *scriptedConsole) SelectServer(servers []Server) (*Server, error) {
	if len(c.servers) == 0 {
		return nil, ErrAborted
	}
	i := c.servers[0]
	c.servers = c.servers[1:]
	if i < 0 {
		return nil, nil
	}
	s := servers[i]
	return &s, nil
}

func (c *scriptedConsole) SelectChannels(channels []Channel) ([]Channel, error) {
	if len(c.channels) == 0 {
		return nil, ErrAborted
	}
	picks := c.channels[0]
	c.channels = c.channels[1:]
	var selected []Channel
	for _, i := range picks {
		selected = append(selected, channels[i])
	}
	return selected, nil
}

func (c *scriptedConsole) SelectTheme(themes []string) (string, error) {
	if len(c.themes) == 0 {
		return "", ErrAborted
	}
	v := c.themes[0]
	c.themes = c.themes[1:]
	return v, nil
}

type fakeHistory struct {
	messages []Message
	err      error
}

// fakeSource serves canned histories, yielding err after the messages
type fakeSource struct {
	histories map[string]fakeHistory
}

func (s *fakeSource) History(ctx context.Context, channel Channel) iter.Seq2[Message, error] {
	h := s.histories[channel.ID]
	return func(yield func(Message, error) bool) {
		for _, m := range h.messages {
			if !yield(m, nil) {
				return
			}
		}
		if h.err != nil {
			yield(Message{}, h.err)
		}
	}
}

type fakeSession struct {
	fakeSource
	servers       []Server
	channels      []Channel
	panicOnSelect bool
	closes        int
}

func (s *fakeSession) Servers() []Server {
	return s.servers
}

func (s *fakeSession) SelectServer(ctx context.Context, server Server) ([]Channel, error) {
	if s.panicOnSelect {
		panic("boom")
	}
	return s.channels, nil
}

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

type renderCall struct {
	channel  Channel
	messages []Message
	path     string
}

// recordingRenderer writes a marker file and remembers what it was given
type recordingRenderer struct {
	calls []renderCall
	fail  map[string]error
}

func (r *recordingRenderer) Render(channel Channel, messages []Message, outputPath string) error {
	r.calls = append(r.calls, renderCall{channel, messages, outputPath})
	if err := r.fail[channel.ID]; err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte(channel.Name), 0644)
}

func makeMessages(prefix string, n int) []Message {
	messages := make([]Message, n)
	for i := range messages {
		messages[i] = Message{ID: fmt.Sprintf("%s-%d", prefix, i), AuthorName: "user", Content: "message"}
	}
	return messages
}

var errBoom = errors.New("boom")

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type connectStep struct {
	session *fakeSession
	err     error
}

// scriptedConnector returns the steps in order and records the credentials
// it was called with.
func scriptedConnector(t *testing.T, steps ...connectStep) (Connector, *[]string) {
	t.Helper()
	var credentials []string
	return func(ctx context.Context, credential string) (ArchiveSession, error) {
		credentials = append(credentials, credential)
		if len(steps) == 0 {
			t.Fatalf("unexpected connect with %q", credential)
		}
		step := steps[0]
		steps = steps[1:]
		if step.err != nil {
			return nil, step.err
		}
		return step.session, nil
	}, &credentials
}

func testThemesRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "default"), 0755); err != nil {
		t.Fatal(err)
	}
	return root
}

func newTestArchiver(t *testing.T, console Console, connect Connector) (*Archiver, *recordingRenderer, string) {
	t.Helper()
	out := t.TempDir()
	renderer := &recordingRenderer{}
	a := NewArchiver(console, connect, ArchiverOptions{
		ThemesRoot: testThemesRoot(t),
		OutputRoot: out,
	}, zerolog.Nop())
	a.newRenderer = func(job *ArchiveJob) (ChannelRenderer, error) {
		return renderer, nil
	}
	return a, renderer, out
}

func guildSession() *fakeSession {
	return &fakeSession{
		servers: []Server{{ID: "123", Name: "Guild"}, {ID: "456", Name: "Other"}},
		channels: []Channel{
			{ID: "1", Name: "general"},
			{ID: "2", Name: "secret"},
			{ID: "3", Name: "random"},
		},
		fakeSource: fakeSource{histories: map[string]fakeHistory{
			"1": {messages: makeMessages("general", 3)},
			"2": {err: &APIError{StatusCode: http.StatusForbidden, Code: 50001, Message: "Missing Access"}},
			"3": {messages: makeMessages("random", 2)},
		}},
	}
}

func TestArchiverRunArchivesSelectedChannels(t *testing.T) {
	session := guildSession()
	connect, credentials := scriptedConnector(t, connectStep{session: session})
	console := &scriptedConsole{
		credentials: []string{"token"},
		servers:     []int{0},
		channels:    [][]int{{0, 1, 2}},
		themes:      []string{"default"},
		confirms:    []bool{false},
	}
	a, renderer, out := newTestArchiver(t, console, connect)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := *credentials; len(got) != 1 || got[0] != "token" {
		t.Errorf("connect credentials = %v, want [token]", got)
	}
	if session.closes != 1 {
		t.Errorf("session closed %d times, want 1", session.closes)
	}
	if a.State() != StateCompleted {
		t.Errorf("State() = %v, want %v", a.State(), StateCompleted)
	}

	if len(renderer.calls) != 2 {
		t.Fatalf("rendered %d channels, want 2", len(renderer.calls))
	}
	wantDir := filepath.Join(out, "discord_archive_123")
	for i, want := range []struct {
		name  string
		count int
	}{{"general", 3}, {"random", 2}} {
		call := renderer.calls[i]
		if call.channel.Name != want.name {
			t.Errorf("call %d channel = %s, want %s", i, call.channel.Name, want.name)
		}
		if len(call.messages) != want.count {
			t.Errorf("call %d got %d messages, want %d", i, len(call.messages), want.count)
		}
		if path := filepath.Join(wantDir, want.name+"_archive.html"); call.path != path {
			t.Errorf("call %d path = %s, want %s", i, call.path, path)
		}
		if _, err := os.Stat(call.path); err != nil {
			t.Errorf("archive file missing: %v", err)
		}
	}
	for i, m := range renderer.calls[0].messages {
		if m.ID != session.histories["1"].messages[i].ID {
			t.Errorf("message %d = %s, fetched order not preserved", i, m.ID)
		}
	}

	for _, want := range []logLine{
		{"Connected to Discord.", SeveritySuccess},
		{"Processing channel #general (1/3)...", SeverityInfo},
		{"Loaded 3 messages from #general.", SeverityInfo},
		{"Access denied to channel #secret. Skipping.", SeverityWarning},
		{"No messages to archive in #secret.", SeverityWarning},
		{"HTML generated for #random: " + filepath.Join(wantDir, "random_archive.html"), SeveritySuccess},
	} {
		if !console.hasLog(want.message, want.severity) {
			t.Errorf("missing log %q (%s)", want.message, want.severity)
		}
	}

	if len(console.overall) != 4 {
		t.Fatalf("overall updates = %v, want 4", console.overall)
	}
	if first := console.overall[0]; first != (progressUpdate{0, 3, "Overall Archiving Progress"}) {
		t.Errorf("first overall update = %+v", first)
	}
	if last := console.overall[3]; last != (progressUpdate{3, 3, "Archiving completed"}) {
		t.Errorf("last overall update = %+v", last)
	}

	if !console.hasPanel("Process Complete") {
		t.Error("missing summary panel")
	}
	summary := console.panels[len(console.panels)-1].message
	if !strings.Contains(summary, "Archived 2 of 3 channels from Guild (5 messages).") {
		t.Errorf("summary = %q", summary)
	}
}

func TestArchiverReusesArchiveDirectory(t *testing.T) {
	first, second := guildSession(), guildSession()
	connect, _ := scriptedConnector(t, connectStep{session: first}, connectStep{session: second})
	console := &scriptedConsole{
		credentials: []string{"token", "token"},
		servers:     []int{0, 0},
		channels:    [][]int{{0}, {0}},
		themes:      []string{"default", "default"},
		confirms:    []bool{true, false},
	}
	a, renderer, out := newTestArchiver(t, console, connect)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(renderer.calls) != 2 {
		t.Fatalf("rendered %d times, want 2", len(renderer.calls))
	}
	want := filepath.Join(out, "discord_archive_123", "general_archive.html")
	for i, call := range renderer.calls {
		if call.path != want {
			t.Errorf("call %d path = %s, want %s", i, call.path, want)
		}
	}
	if first.closes != 1 || second.closes != 1 {
		t.Errorf("closes = %d, %d, want 1, 1", first.closes, second.closes)
	}
}

func TestArchiverRetriesAfterConnectFailure(t *testing.T) {
	session := guildSession()
	connect, credentials := scriptedConnector(t,
		connectStep{err: &ConnectError{Reason: ErrInvalidCredential}},
		connectStep{session: session},
	)
	console := &scriptedConsole{
		credentials: []string{"", "bad", "good"},
		servers:     []int{0},
		channels:    [][]int{{0}},
		themes:      []string{"default"},
		confirms:    []bool{false},
	}
	a, renderer, _ := newTestArchiver(t, console, connect)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := strings.Join(*credentials, ","); got != "bad,good" {
		t.Errorf("connect credentials = %s, want bad,good", got)
	}
	if !console.hasLog("Token cannot be empty.", SeverityError) {
		t.Error("missing empty token error")
	}
	if !console.hasLog("Invalid token. Please check your token and try again.", SeverityError) {
		t.Error("missing invalid token error")
	}
	if len(renderer.calls) != 1 {
		t.Errorf("rendered %d channels, want 1", len(renderer.calls))
	}
}

func TestArchiverReportsConnectFailures(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		log   string
		panel string
	}{
		{
			name: "no servers",
			err:  &ConnectError{Reason: ErrNoServersAvailable},
			log:  "No servers available. The account must be a member of at least one server.",
		},
		{
			name: "premature termination",
			err:  &ConnectError{Reason: ErrPrematureTermination},
			log:  "The connection closed before the session was ready.",
		},
		{
			name:  "internal",
			err:   &ConnectError{Reason: ErrConnectionInternal, Err: errBoom},
			panel: "Connection Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connect, _ := scriptedConnector(t, connectStep{err: tt.err})
			console := &scriptedConsole{credentials: []string{"token"}}
			a, _, _ := newTestArchiver(t, console, connect)

			if err := a.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if tt.log != "" && !console.hasLog(tt.log, SeverityError) {
				t.Errorf("missing log %q, logs = %v", tt.log, console.logs)
			}
			if tt.panel != "" && !console.hasPanel(tt.panel) {
				t.Errorf("missing panel %q", tt.panel)
			}
		})
	}
}

func TestArchiverContinuesAfterChannelFailures(t *testing.T) {
	session := guildSession()
	session.histories["3"] = fakeHistory{messages: makeMessages("random", 4), err: errBoom}
	connect, _ := scriptedConnector(t, connectStep{session: session})
	console := &scriptedConsole{
		credentials: []string{"token"},
		servers:     []int{0},
		channels:    [][]int{{0, 2}},
		themes:      []string{"default"},
		confirms:    []bool{false},
	}
	a, renderer, _ := newTestArchiver(t, console, connect)
	renderer.fail = map[string]error{"1": errBoom}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !console.hasLog("Failed to generate HTML for #general: boom", SeverityError) {
		t.Errorf("missing render failure, logs = %v", console.logs)
	}
	if !console.hasLog("Failed to fetch messages from #random: fetching history of #random: boom", SeverityError) {
		t.Errorf("missing fetch failure, logs = %v", console.logs)
	}
	if len(renderer.calls) != 1 {
		t.Errorf("rendered %d channels, want 1", len(renderer.calls))
	}
	if last := console.overall[len(console.overall)-1]; last != (progressUpdate{2, 2, "Archiving completed"}) {
		t.Errorf("last overall update = %+v", last)
	}
	summary := console.panels[len(console.panels)-1].message
	if !strings.Contains(summary, "Skipped: 0, failed: 2") {
		t.Errorf("summary = %q", summary)
	}
}

func TestArchiverCancelledSelectionStartsOver(t *testing.T) {
	first, second := guildSession(), guildSession()
	connect, _ := scriptedConnector(t, connectStep{session: first}, connectStep{session: second})
	console := &scriptedConsole{
		credentials: []string{"token", "token"},
		servers:     []int{-1, 1},
		channels:    [][]int{{1}},
		themes:      []string{"default"},
		confirms:    []bool{false},
	}
	a, renderer, out := newTestArchiver(t, console, connect)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !console.hasLog("Server selection cancelled.", SeverityWarning) {
		t.Error("missing cancellation warning")
	}
	if first.closes != 1 {
		t.Errorf("cancelled session closed %d times, want 1", first.closes)
	}
	// secret is access denied, so nothing is rendered but the directory exists
	if len(renderer.calls) != 0 {
		t.Errorf("rendered %d channels, want 0", len(renderer.calls))
	}
	if _, err := os.Stat(filepath.Join(out, "discord_archive_456")); err != nil {
		t.Errorf("archive directory not created: %v", err)
	}
}

func TestArchiverRecoversPanics(t *testing.T) {
	session := guildSession()
	session.panicOnSelect = true
	connect, _ := scriptedConnector(t, connectStep{session: session})
	console := &scriptedConsole{
		credentials: []string{"token"},
		servers:     []int{0},
		confirms:    []bool{false},
	}
	a, _, _ := newTestArchiver(t, console, connect)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !console.hasPanel("Runtime Error") {
		t.Fatal("missing runtime error panel")
	}
	if session.closes != 1 {
		t.Errorf("session closed %d times, want 1", session.closes)
	}
	for _, p := range console.panels {
		if p.title == "Runtime Error" && !strings.Contains(p.message, "panic: boom") {
			t.Errorf("panel message = %q", p.message)
		}
	}
}

func TestArchiverMissingThemesIsFatal(t *testing.T) {
	session := guildSession()
	connect, _ := scriptedConnector(t, connectStep{session: session})
	console := &scriptedConsole{
		credentials: []string{"token"},
		servers:     []int{0},
		channels:    [][]int{{0}},
	}
	a, _, _ := newTestArchiver(t, console, connect)
	a.opts.ThemesRoot = filepath.Join(t.TempDir(), "missing")

	err := a.Run(context.Background())
	if !errors.Is(err, ErrThemesMissing) {
		t.Fatalf("Run() error = %v, want ErrThemesMissing", err)
	}
	if !console.hasPanel("Configuration Error") {
		t.Error("missing configuration error panel")
	}
	if session.closes != 1 {
		t.Errorf("session closed %d times, want 1", session.closes)
	}
}

func TestArchiverStopsOnAbortAndCancel(t *testing.T) {
	t.Run("closed input", func(t *testing.T) {
		connect, credentials := scriptedConnector(t)
		a, _, _ := newTestArchiver(t, &scriptedConsole{}, connect)
		if err := a.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
		if len(*credentials) != 0 {
			t.Errorf("connect called %d times", len(*credentials))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		connect, _ := scriptedConnector(t)
		a, _, _ := newTestArchiver(t, &scriptedConsole{credentials: []string{"token"}}, connect)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := a.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	})
}

func TestStateString(t *testing.T) {
	if got := StateAwaitingThemeSelection.String(); got != "awaiting theme selection" {
		t.Errorf("String() = %q", got)
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("String() = %q", got)
	}
}

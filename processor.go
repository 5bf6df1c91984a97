// processor.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
)

const (
	overallLabel     = "Overall Archiving Progress"
	overallDoneLabel = "Archiving completed"
)

// State is a step of the archive flow
type State int

const (
	StateAwaitingCredential State = iota
	StateConnecting
	StateAwaitingServerSelection
	StateAwaitingChannelSelection
	StateAwaitingThemeSelection
	StateArchiving
	StateCompleted
)

var stateNames = [...]string{
	"awaiting credential",
	"connecting",
	"awaiting server selection",
	"awaiting channel selection",
	"awaiting theme selection",
	"archiving",
	"completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ChannelRenderer writes the archive of one channel
type ChannelRenderer interface {
	Render(channel Channel, messages []Message, outputPath string) error
}

// ArchiverOptions configures an Archiver
type ArchiverOptions struct {
	ThemesRoot    string
	OutputRoot    string
	Markdown      bool
	ProgressEvery int
	// Traceback shows full diagnostics in error panels
	Traceback bool
}

// Archiver drives the interactive flow: credential, connection, selection
// and the per channel fetch and render loop.
type Archiver struct {
	console Console
	connect Connector
	opts    ArchiverOptions
	log     zerolog.Logger
	state   State

	newRenderer func(job *ArchiveJob) (ChannelRenderer, error)
}

// NewArchiver creates an archiver
func NewArchiver(console Console, connect Connector, opts ArchiverOptions, log zerolog.Logger) *Archiver {
	a := &Archiver{
		console: console,
		connect: connect,
		opts:    opts,
		log:     log,
	}
	a.newRenderer = a.themeRenderer
	return a
}

func (a *Archiver) themeRenderer(job *ArchiveJob) (ChannelRenderer, error) {
	return NewRenderer(job.ThemePath,
		WithJob(job),
		WithMarkdownExport(a.opts.Markdown),
		WithRendererLogger(a.log.With().Str("component", "renderer").Logger()),
	)
}

// State returns the current step
func (a *Archiver) State() State {
	return a.state
}

func (a *Archiver) setState(s State) {
	a.log.Debug().Stringer("from", a.state).Stringer("to", s).Msg("State change")
	a.state = s
}

// Run loops over attempts until the operator stops. Configuration errors
// end the run with an error; ctx cancellation returns ctx.Err().
func (a *Archiver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		again, err := a.runAttempt(ctx)
		switch {
		case err == nil:
			if !again {
				return nil
			}
			continue
		case errors.Is(err, ErrAborted):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrThemesMissing), errors.Is(err, ErrNoThemes):
			a.console.ShowPanel("Configuration Error", err.Error(), StyleError)
			return err
		}

		a.log.Error().Err(err).Msg("Attempt failed")
		a.console.ShowPanel("Runtime Error", errorTrace(err, a.opts.Traceback), StyleError)
		retry, cerr := a.console.Confirm("An error occurred. Do you want to try again from the beginning?")
		if cerr != nil || !retry {
			return nil
		}
	}
}

// runAttempt runs one pass from credential to completion. again reports
// whether the flow should start over. The session is closed on every path.
func (a *Archiver) runAttempt(ctx context.Context) (again bool, err error) {
	a.setState(StateAwaitingCredential)
	credential, err := a.promptCredential()
	if err != nil {
		return false, err
	}

	a.setState(StateConnecting)
	session, err := a.connectSession(ctx, credential)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		a.reportConnectError(err)
		return true, nil
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			a.log.Debug().Err(cerr).Msg("Gateway ended with an error")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			again, err = false, &panicError{value: r, stack: debug.Stack()}
		}
	}()
	a.console.Log("Connected to Discord.", SeveritySuccess)

	a.setState(StateAwaitingServerSelection)
	server, err := a.console.SelectServer(session.Servers())
	if err != nil {
		return false, err
	}
	if server == nil {
		a.console.Log("Server selection cancelled.", SeverityWarning)
		return true, nil
	}

	channels, err := session.SelectServer(ctx, *server)
	if err != nil {
		return false, fmt.Errorf("loading channels of %s: %w", server.Name, err)
	}
	if len(channels) == 0 {
		a.console.Log(fmt.Sprintf("No text channels available in %s.", server.Name), SeverityWarning)
		return true, nil
	}

	a.setState(StateAwaitingChannelSelection)
	selected, err := a.console.SelectChannels(channels)
	if err != nil {
		return false, err
	}
	if len(selected) == 0 {
		a.console.Log("Channel selection cancelled.", SeverityWarning)
		return true, nil
	}

	a.setState(StateAwaitingThemeSelection)
	themes, err := listThemes(a.opts.ThemesRoot)
	if err != nil {
		return false, err
	}
	theme, err := a.console.SelectTheme(themes)
	if err != nil {
		return false, err
	}
	if theme == "" {
		a.console.Log("Theme selection cancelled.", SeverityWarning)
		return true, nil
	}

	job := NewArchiveJob(a.opts.OutputRoot, *server, selected, themePath(a.opts.ThemesRoot, theme))
	a.log.Info().Str("job", job.ID).Str("server", server.ID).Int("channels", len(selected)).Str("theme", theme).Msg("Starting archive job")

	a.setState(StateArchiving)
	results, err := a.archive(ctx, session, job)
	if err != nil {
		return false, err
	}

	a.setState(StateCompleted)
	a.reportSummary(job, results)
	more, err := a.console.Confirm("Do you want to archive more channels or servers?")
	if err != nil {
		return false, err
	}
	return more, nil
}

func (a *Archiver) promptCredential() (string, error) {
	for {
		credential, err := a.console.PromptText("Enter your Discord token", true)
		if err != nil {
			return "", err
		}
		if credential != "" {
			return credential, nil
		}
		a.console.Log("Token cannot be empty.", SeverityError)
	}
}

func (a *Archiver) connectSession(ctx context.Context, credential string) (ArchiveSession, error) {
	stop := func() {}
	if sr, ok := a.console.(StatusReporter); ok {
		stop = sr.StartStatus("Connecting to Discord...")
	}
	defer stop()
	return a.connect(ctx, credential)
}

func (a *Archiver) reportConnectError(err error) {
	a.log.Debug().Err(err).Msg("Connection failed")
	switch {
	case errors.Is(err, ErrInvalidCredential):
		a.console.Log("Invalid token. Please check your token and try again.", SeverityError)
	case errors.Is(err, ErrNoServersAvailable):
		a.console.Log("No servers available. The account must be a member of at least one server.", SeverityError)
	case errors.Is(err, ErrPrematureTermination):
		a.console.Log("The connection closed before the session was ready.", SeverityError)
	case errors.Is(err, ErrUnexpectedState):
		a.console.Log("The connection did not become ready.", SeverityError)
	default:
		a.console.ShowPanel("Connection Error", errorTrace(err, a.opts.Traceback), StyleError)
	}
}

// archive processes the job's channels in selection order. Channel failures
// are reported and skipped; only errors outside a channel abort the job.
func (a *Archiver) archive(ctx context.Context, session ArchiveSession, job *ArchiveJob) ([]ChannelResult, error) {
	renderer, err := a.newRenderer(job)
	if err != nil {
		return nil, fmt.Errorf("creating renderer: %w", err)
	}
	fetcher := NewHistoryFetcher(session, a.console, a.opts.ProgressEvery, a.log.With().Str("component", "fetcher").Logger())

	total := len(job.Channels)
	results := make([]ChannelResult, 0, total)
	a.console.UpdateOverallProgress(0, total, overallLabel)

	for i, ch := range job.Channels {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		a.console.Log(fmt.Sprintf("Processing channel #%s (%d/%d)...", ch.Name, i+1, total), SeverityInfo)

		if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
			return results, fmt.Errorf("creating output directory: %w", err)
		}

		result := a.archiveChannel(ctx, fetcher, renderer, job, ch)
		results = append(results, result)

		label := overallLabel
		if i+1 == total {
			label = overallDoneLabel
		}
		a.console.UpdateOverallProgress(i+1, total, label)
	}
	return results, nil
}

func (a *Archiver) archiveChannel(ctx context.Context, fetcher *HistoryFetcher, renderer ChannelRenderer, job *ArchiveJob, ch Channel) ChannelResult {
	messages, err := fetcher.FetchAll(ctx, ch)
	if err != nil {
		a.console.Log(fmt.Sprintf("Failed to fetch messages from #%s: %v", ch.Name, err), SeverityError)
		return ChannelResult{Channel: ch, Status: StatusError, Error: err}
	}
	if len(messages) == 0 {
		a.console.Log(fmt.Sprintf("No messages to archive in #%s.", ch.Name), SeverityWarning)
		return ChannelResult{Channel: ch, Status: StatusSkipped}
	}
	a.console.Log(fmt.Sprintf("Loaded %d messages from #%s.", len(messages), ch.Name), SeverityInfo)

	path := job.OutputPath(ch)
	if err := renderer.Render(ch, messages, path); err != nil {
		a.console.Log(fmt.Sprintf("Failed to generate HTML for #%s: %v", ch.Name, err), SeverityError)
		return ChannelResult{Channel: ch, Status: StatusError, Messages: len(messages), Error: err}
	}
	a.console.Log(fmt.Sprintf("HTML generated for #%s: %s", ch.Name, path), SeveritySuccess)
	return ChannelResult{Channel: ch, Status: StatusSuccess, Messages: len(messages), Filename: path}
}

func (a *Archiver) reportSummary(job *ArchiveJob, results []ChannelResult) {
	var archived, skipped, failed, messages int
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			archived++
			messages += r.Messages
		case StatusSkipped:
			skipped++
		case StatusError:
			failed++
		}
	}

	a.console.ShowPanel("Process Complete", fmt.Sprintf(
		"Archived %d of %d channels from %s (%d messages).\nSkipped: %d, failed: %d\nHTML files are located in: %s",
		archived, len(results), job.Server.Name, messages, skipped, failed, job.OutputDir,
	), StyleInfo)
}

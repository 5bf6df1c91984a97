package main

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// HistorySource produces the message history of a channel
type HistorySource interface {
	History(ctx context.Context, channel Channel) iter.Seq2[Message, error]
}

// ArchiveSession is an authenticated connection usable for one run attempt
type ArchiveSession interface {
	HistorySource
	Servers() []Server
	SelectServer(ctx context.Context, server Server) ([]Channel, error)
	Close() error
}

// Connector opens a ready session for a credential
type Connector func(ctx context.Context, credential string) (ArchiveSession, error)

// CoordinatorOptions configures the connections a Coordinator opens
type CoordinatorOptions struct {
	GatewayURL string
	REST       RESTOptions
}

// Coordinator establishes sessions: it runs the gateway in the background and
// waits until it is either ready or gone.
type Coordinator struct {
	opts   CoordinatorOptions
	log    zerolog.Logger
	active atomic.Int32
}

// NewCoordinator creates a coordinator
func NewCoordinator(opts CoordinatorOptions, log zerolog.Logger) *Coordinator {
	return &Coordinator{opts: opts, log: log}
}

// Active returns the number of gateway connections still running
func (c *Coordinator) Active() int {
	return int(c.active.Load())
}

// Connector adapts Connect for the archiver
func (c *Coordinator) Connector() Connector {
	return func(ctx context.Context, credential string) (ArchiveSession, error) {
		s, err := c.Connect(ctx, credential)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Connect starts the gateway and blocks until READY, until the gateway stops
// or until ctx is done. Every failure path waits for the gateway goroutine to
// exit before returning. On success the caller owns the session and must
// Close it.
func (c *Coordinator) Connect(ctx context.Context, credential string) (*Session, error) {
	restOpts := c.opts.REST
	restOpts.Logger = c.log.With().Str("component", "rest").Logger()
	rest := NewRESTClient(credential, restOpts)

	gw := NewGateway(c.opts.GatewayURL, credential, c.opts.REST.Bot, c.log.With().Str("component", "gateway").Logger())
	ready := make(chan *discordgo.Ready, 1)
	gw.OnReady = func(r *discordgo.Ready) {
		ready <- r
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	c.active.Add(1)
	go func() {
		err := gw.Run(runCtx)
		c.active.Add(-1)
		done <- err
	}()

	var r *discordgo.Ready
	select {
	case err := <-done:
		cancel()
		return nil, connectFailure(err)
	case r = <-ready:
	case <-ctx.Done():
		cancel()
		<-done
		return nil, &ConnectError{Reason: ErrUnexpectedState, Err: ctx.Err()}
	}

	s := &Session{
		rest:   rest,
		cancel: cancel,
		done:   done,
		log:    c.log,
	}
	if r.User != nil {
		s.User = r.User
	}

	servers, err := c.readyServers(ctx, rest, r)
	if err != nil {
		s.Close()
		return nil, &ConnectError{Reason: ErrConnectionInternal, Err: err}
	}
	if len(servers) == 0 {
		s.Close()
		return nil, &ConnectError{Reason: ErrNoServersAvailable}
	}
	s.servers = servers

	ev := c.log.Info().Int("servers", len(servers))
	if s.User != nil {
		ev = ev.Str("user", s.User.Username)
	}
	ev.Msg("Session ready")
	return s, nil
}

// readyServers captures the guild list delivered with READY. User accounts
// receive guild stubs without names, those are filled in over REST.
func (c *Coordinator) readyServers(ctx context.Context, rest *RESTClient, r *discordgo.Ready) ([]Server, error) {
	servers := make([]Server, 0, len(r.Guilds))
	missingNames := false
	for _, g := range r.Guilds {
		if g == nil {
			continue
		}
		if g.Name == "" {
			missingNames = true
		}
		servers = append(servers, Server{ID: g.ID, Name: g.Name})
	}
	if !missingNames {
		return servers, nil
	}

	listed, err := rest.CurrentUserGuilds(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(listed))
	for _, s := range listed {
		names[s.ID] = s.Name
	}
	for i := range servers {
		if servers[i].Name != "" {
			continue
		}
		if name, ok := names[servers[i].ID]; ok {
			servers[i].Name = name
		} else {
			servers[i].Name = servers[i].ID
		}
	}
	return servers, nil
}

func connectFailure(err error) error {
	switch {
	case err == nil:
		return &ConnectError{Reason: ErrPrematureTermination}
	case errors.Is(err, ErrInvalidCredential):
		return &ConnectError{Reason: ErrInvalidCredential}
	default:
		return &ConnectError{Reason: ErrConnectionInternal, Err: err}
	}
}

// Session is a ready connection. The gateway keeps running in the background
// until Close.
type Session struct {
	User *discordgo.User

	servers []Server

	rest   *RESTClient
	cancel context.CancelFunc
	done   <-chan error
	log    zerolog.Logger

	closeOnce sync.Once
}

// Servers returns the guilds reachable when the session became ready
func (s *Session) Servers() []Server {
	return s.servers
}

// SelectServer returns the text channels of server
func (s *Session) SelectServer(ctx context.Context, server Server) ([]Channel, error) {
	return s.rest.GuildChannels(ctx, server.ID)
}

// History yields the messages of a channel oldest first
func (s *Session) History(ctx context.Context, channel Channel) iter.Seq2[Message, error] {
	return s.rest.History(ctx, channel)
}

// Close stops the gateway and waits for it. It reports how the gateway
// ended if that was not the cancellation itself. Calls after the first do
// nothing.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if runErr := <-s.done; runErr != nil && !errors.Is(runErr, context.Canceled) {
			err = runErr
		}
		s.log.Debug().Msg("Session closed")
	})
	return err
}

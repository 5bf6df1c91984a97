package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

const (
	closeAuthenticationFailed websocket.StatusCode = 4004
	intentGuilds                                   = 1 << 0
	gatewayReadLimit                               = 1 << 26
)

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type outgoingPayload struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// Gateway is a minimal Discord gateway client. It identifies, keeps the
// connection alive with heartbeats and reports the READY event.
type Gateway struct {
	url   string
	token string
	bot   bool
	log   zerolog.Logger

	// OnReady is called once, from the Run goroutine, when READY arrives
	OnReady func(*discordgo.Ready)

	readyOnce sync.Once
	seq       atomic.Int64
}

// NewGateway creates a gateway client for the given endpoint
func NewGateway(gatewayURL, token string, bot bool, log zerolog.Logger) *Gateway {
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}
	return &Gateway{url: gatewayURL, token: token, bot: bot, log: log}
}

// Run connects and processes gateway events until the connection ends or ctx
// is cancelled. A clean close by the server returns nil.
func (g *Gateway) Run(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, g.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("dialing gateway: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(gatewayReadLimit)

	hello, err := g.read(ctx, conn)
	if err != nil {
		return g.readError(ctx, err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got opcode %d", hello.Op)
	}
	var h helloData
	if err := json.Unmarshal(hello.D, &h); err != nil {
		return fmt.Errorf("decoding hello: %w", err)
	}
	if h.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval %d", h.HeartbeatInterval)
	}

	if err := g.send(ctx, conn, opIdentify, g.identifyData()); err != nil {
		return g.readError(ctx, err)
	}
	g.log.Debug().Int("heartbeat_interval", h.HeartbeatInterval).Msg("Identified with gateway")

	var wg sync.WaitGroup
	defer wg.Wait()
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	beat := make(chan struct{}, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.heartbeat(hbCtx, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond, beat)
	}()

	for {
		p, err := g.read(ctx, conn)
		if err != nil {
			return g.readError(ctx, err)
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			if err := g.dispatch(p); err != nil {
				return err
			}
		case opHeartbeat:
			select {
			case beat <- struct{}{}:
			default:
			}
		case opHeartbeatACK:
		case opReconnect:
			return errors.New("gateway requested a reconnect")
		case opInvalidSession:
			return errors.New("gateway invalidated the session")
		default:
			g.log.Trace().Int("op", p.Op).Msg("Ignoring gateway opcode")
		}
	}
}

func (g *Gateway) identifyData() map[string]any {
	d := map[string]any{
		"token": g.token,
		"properties": map[string]string{
			"os":      runtime.GOOS,
			"browser": "discord-archiver",
			"device":  "discord-archiver",
		},
	}
	if g.bot {
		d["intents"] = intentGuilds
	}
	return d
}

func (g *Gateway) dispatch(p *gatewayPayload) error {
	if p.T != "READY" {
		return nil
	}
	var ready discordgo.Ready
	if err := json.Unmarshal(p.D, &ready); err != nil {
		return fmt.Errorf("decoding READY: %w", err)
	}
	g.readyOnce.Do(func() {
		if g.OnReady != nil {
			g.OnReady(&ready)
		}
	})
	return nil
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration, beat <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-beat:
		}

		var seq any
		if s := g.seq.Load(); s > 0 {
			seq = s
		}
		if err := g.send(ctx, conn, opHeartbeat, seq); err != nil {
			if ctx.Err() == nil {
				g.log.Warn().Err(err).Msg("Failed to send heartbeat")
			}
			return
		}
	}
}

func (g *Gateway) read(ctx context.Context, conn *websocket.Conn) (*gatewayPayload, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var p gatewayPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding gateway payload: %w", err)
	}
	return &p, nil
}

func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, op int, d any) error {
	data, err := json.Marshal(outgoingPayload{Op: op, D: d})
	if err != nil {
		return fmt.Errorf("encoding opcode %d: %w", op, err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (g *Gateway) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch websocket.CloseStatus(err) {
	case closeAuthenticationFailed:
		return ErrInvalidCredential
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	case -1:
		return fmt.Errorf("reading from gateway: %w", err)
	default:
		return fmt.Errorf("gateway closed the connection: %w", err)
	}
}

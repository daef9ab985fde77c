// Package ws implements the cloud session over a WebSocket connection
// carrying JSON envelopes.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"serialbridge/pkg/bus"
	"serialbridge/pkg/session"
)

const (
	sessionName      = "websocket"
	defaultReadLimit = 1 << 20
	defaultMinDelay  = time.Second
	defaultMaxDelay  = 30 * time.Second
)

// Options configures the connection.
type Options struct {
	URL               string
	Token             string
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	HTTPClient        *http.Client
}

// Session is a session.Session backed by one WebSocket connection. Run
// reconnects with exponential backoff when the connection drops.
type Session struct {
	bus.Router

	opts Options
	log  *slog.Logger

	mu   sync.RWMutex
	conn *websocket.Conn
}

var _ session.Session = (*Session)(nil)

func New(opts Options, log *slog.Logger) (*Session, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("websocket url is required")
	}
	if opts.ReconnectMinDelay <= 0 {
		opts.ReconnectMinDelay = defaultMinDelay
	}
	if opts.ReconnectMaxDelay < opts.ReconnectMinDelay {
		opts.ReconnectMaxDelay = max(defaultMaxDelay, opts.ReconnectMinDelay)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Session{
		opts: opts,
		log:  log.With("component", "session.websocket"),
	}, nil
}

func (s *Session) Name() string {
	return sessionName
}

// Connect dials the endpoint once. Failure here is a startup failure.
func (s *Session) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.setConn(conn)
	s.log.Info("Cloud session connected", "url", s.opts.URL)
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.opts.URL, &websocket.DialOptions{
		HTTPClient: s.opts.HTTPClient,
		HTTPHeader: s.headers(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(defaultReadLimit)
	return conn, nil
}

func (s *Session) headers() http.Header {
	header := http.Header{}
	if token := strings.TrimSpace(s.opts.Token); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

// Run reads envelopes and dispatches them until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		conn := s.current()
		if conn == nil {
			var err error
			conn, err = s.reconnect(ctx)
			if err != nil {
				return nil
			}
		}

		err := s.readLoop(ctx, conn)
		s.clearConn(conn)

		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bridge shutting down")
			return nil
		}
		_ = conn.CloseNow()
		s.log.Warn("Cloud session lost", "error", err)
	}
}

// reconnect dials until it succeeds or ctx is done.
func (s *Session) reconnect(ctx context.Context) (*websocket.Conn, error) {
	delay := s.opts.ReconnectMinDelay
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		conn, err := s.dial(ctx)
		if err == nil {
			s.setConn(conn)
			s.log.Info("Cloud session reconnected", "url", s.opts.URL)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		s.log.Warn("Cloud session reconnect failed", "error", err, "retry_in", delay)
		delay = min(delay*2, s.opts.ReconnectMaxDelay)
	}
}

// readLoop handles messages inline so their order is kept, and runs commands
// concurrently because they block on the serial device.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}

		switch env.Type {
		case typeMessage:
			s.handleMessage(ctx, conn, env)
		case typeCommand:
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleCommand(ctx, conn, env)
			}()
		default:
			s.log.Debug("Ignoring envelope", "type", env.Type, "id", env.ID)
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, conn *websocket.Conn, env envelope) {
	disposition := bus.Rejected
	if handler, ok := s.MessageHandler(env.Name); ok {
		disposition = handler(ctx, bus.Message{Payload: env.Body, Properties: env.Properties})
	} else {
		s.log.Warn("No handler for input", "input", env.Name)
	}

	if env.ID == "" {
		return
	}
	if err := wsjson.Write(ctx, conn, ackEnvelope(env.ID, disposition)); err != nil {
		s.log.Warn("Failed to acknowledge message", "id", env.ID, "error", err)
	}
}

func (s *Session) handleCommand(ctx context.Context, conn *websocket.Conn, env envelope) {
	result := bus.CommandResult{Status: bus.StatusNotFound}
	if handler, ok := s.CommandHandler(env.Name); ok {
		result = handler(ctx, bus.Command{Name: env.Name, Payload: env.Payload})
	} else {
		s.log.Warn("No handler for command", "command", env.Name)
	}

	if err := wsjson.Write(ctx, conn, resultEnvelope(env.ID, result)); err != nil {
		s.log.Warn("Failed to return command result", "id", env.ID, "command", env.Name, "error", err)
	}
}

// Send writes one message frame. It fails fast while disconnected.
func (s *Session) Send(ctx context.Context, output string, msg bus.Message) error {
	conn := s.current()
	if conn == nil {
		return session.ErrNotConnected
	}
	if err := wsjson.Write(ctx, conn, messageEnvelope(output, msg)); err != nil {
		return fmt.Errorf("send to %s: %w", output, err)
	}
	return nil
}

func (s *Session) Ready() bool {
	return s.current() != nil
}

func (s *Session) current() *websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Session) clearConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

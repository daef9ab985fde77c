package session

import (
	"context"
	"fmt"
	"sync"

	"serialbridge/pkg/bus"
)

// Loopback is an in-memory Session. Deliver and Invoke play the cloud side;
// Sent exposes what the bridge submitted.
type Loopback struct {
	bus.Router

	mu        sync.Mutex
	sent      []bus.Outbound
	sendErr   error
	connected bool
	closed    bool
	notify    chan struct{}

	// OnSend, when set, observes each accepted submission.
	OnSend func(bus.Outbound)
}

func NewLoopback() *Loopback {
	return &Loopback{notify: make(chan struct{}, 1)}
}

func (l *Loopback) Name() string {
	return "loopback"
}

func (l *Loopback) Connect(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.connected = true
	return nil
}

// Run blocks until ctx is done; delivery happens through Deliver and Invoke.
func (l *Loopback) Run(ctx context.Context) error {
	<-ctx.Done()

	l.mu.Lock()
	l.connected = false
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *Loopback) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Loopback) Send(_ context.Context, output string, msg bus.Message) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.sendErr != nil {
		err := l.sendErr
		l.mu.Unlock()
		return err
	}
	out := bus.Outbound{Output: output, Message: msg}
	l.sent = append(l.sent, out)
	observe := l.OnSend
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	if observe != nil {
		observe(out)
	}
	return nil
}

// FailSends makes every following Send return err; nil restores success.
func (l *Loopback) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// Deliver hands msg to the handler registered for input.
func (l *Loopback) Deliver(ctx context.Context, input string, msg bus.Message) (bus.Disposition, error) {
	handler, ok := l.MessageHandler(input)
	if !ok {
		return bus.Rejected, fmt.Errorf("%w for input %q", ErrUnknownRoute, input)
	}
	return handler(ctx, msg), nil
}

// Invoke runs the handler registered for the command name.
func (l *Loopback) Invoke(ctx context.Context, name string, payload []byte) (bus.CommandResult, error) {
	handler, ok := l.CommandHandler(name)
	if !ok {
		return bus.CommandResult{Status: bus.StatusNotFound}, fmt.Errorf("%w for command %q", ErrUnknownRoute, name)
	}
	return handler(ctx, bus.Command{Name: name, Payload: payload}), nil
}

// Sent returns a snapshot of submitted messages in submission order.
func (l *Loopback) Sent() []bus.Outbound {
	l.mu.Lock()
	defer l.mu.Unlock()

	sent := make([]bus.Outbound, len(l.sent))
	copy(sent, l.sent)
	return sent
}

// Notify signals after each accepted Send. Signals coalesce.
func (l *Loopback) Notify() <-chan struct{} {
	return l.notify
}

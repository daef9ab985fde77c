// Package session defines the cloud-side collaborator the bridge talks to.
package session

import (
	"context"
	"errors"

	"serialbridge/pkg/bus"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrNotConnected = errors.New("session not connected")
	ErrUnknownRoute = errors.New("no handler registered")
)

// Session delivers inbound messages and commands to registered handlers and
// accepts outbound messages.
//
// Connect must succeed before Run; a Connect failure is a startup failure.
// Run delivers events until ctx is done and owns any reconnection.
type Session interface {
	Name() string
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	OnInboundMessage(input string, handler bus.MessageHandler)
	OnCommand(name string, handler bus.CommandHandler)
	Send(ctx context.Context, output string, msg bus.Message) error
	Ready() bool
}

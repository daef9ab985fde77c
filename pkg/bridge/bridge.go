// Package bridge forwards serial lines to the cloud session and cloud
// commands to the serial device.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"serialbridge/pkg/bus"
	"serialbridge/pkg/logger"
	"serialbridge/pkg/session"
)

const (
	defaultReadRetry    = 200 * time.Millisecond
	messagePreviewLimit = 240
)

// LineReader yields one decoded serial line per call.
type LineReader interface {
	ReadLine() (string, error)
}

// LineWriter writes one line of text to the serial device.
type LineWriter interface {
	WriteLine(text string) error
}

// Options names the session endpoints the controller binds to.
type Options struct {
	Input     string
	Output    string
	Command   string
	ReadRetry time.Duration
}

// Controller owns both serial directions and the session handlers.
//
// Serial lines and inbound messages are queued on the bus and submitted to the
// session by a single dispatcher in arrival order; neither path waits for the
// cloud. Commands write to the device synchronously.
type Controller struct {
	reader  LineReader
	writer  LineWriter
	session session.Session
	bus     *bus.MessageBus
	log     *slog.Logger
	opts    Options

	stats counters
}

func New(reader LineReader, writer LineWriter, sess session.Session, mb *bus.MessageBus, opts Options, log *slog.Logger) (*Controller, error) {
	if reader == nil {
		return nil, errors.New("line reader is required")
	}
	if writer == nil {
		return nil, errors.New("line writer is required")
	}
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if mb == nil {
		return nil, errors.New("message bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	if opts.Input == "" {
		opts.Input = "input1"
	}
	if opts.Output == "" {
		opts.Output = "output1"
	}
	if opts.Command == "" {
		opts.Command = "sendserial"
	}
	if opts.ReadRetry <= 0 {
		opts.ReadRetry = defaultReadRetry
	}

	return &Controller{
		reader:  reader,
		writer:  writer,
		session: sess,
		bus:     mb,
		log:     log.With("component", "bridge.controller"),
		opts:    opts,
	}, nil
}

// Register binds the message and command handlers on the session.
func (c *Controller) Register() {
	c.session.OnInboundMessage(c.opts.Input, c.HandleMessage)
	c.session.OnCommand(c.opts.Command, c.HandleSendSerial)
	c.log.Info("Handlers registered", "input", c.opts.Input, "command", c.opts.Command, "output", c.opts.Output)
}

// Run starts the serial read loop and the outbound dispatcher, then blocks
// until ctx is done. In-flight submissions are not awaited.
func (c *Controller) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	go c.dispatch(ctx)
	go c.readLoop(ctx)

	<-ctx.Done()
	return nil
}

// Stats returns the current counters.
func (c *Controller) Stats() Stats {
	return c.stats.snapshot()
}

func (c *Controller) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := c.reader.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.stats.readFailures.Add(1)
			c.log.Warn("Serial read failed", "error", err)
			c.publish(bus.Event{Type: bus.EventLineFailed, Error: err.Error()})

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.ReadRetry):
			}
			continue
		}

		c.HandleLine(line)
	}
}

// HandleLine queues one serial line for the output. Empty lines are
// forwarded too. When the queue is full the line is dropped.
func (c *Controller) HandleLine(line string) {
	c.stats.linesRead.Add(1)
	c.log.Info("Received serial data", "line", previewText(line))
	c.publish(bus.Event{Type: bus.EventLineReceived, Name: c.opts.Output, Text: line})

	c.enqueue(bus.Message{Payload: []byte(line)})
}

// HandleMessage mirrors a non-empty inbound message to the output with its
// properties in order. The message is always completed.
func (c *Controller) HandleMessage(_ context.Context, msg bus.Message) bus.Disposition {
	seq := c.stats.messagesReceived.Add(1)
	body := string(msg.Payload)

	c.log.Info("Received message", "seq", seq, "body", previewText(body), "properties", len(msg.Properties))
	c.publish(bus.Event{Type: bus.EventMessageReceived, Name: c.opts.Input, Seq: seq, Text: body, Payload: msg.Properties.Map()})

	if body == "" {
		return bus.Completed
	}

	if c.enqueue(msg.Clone()) {
		c.stats.messagesMirrored.Add(1)
	}
	return bus.Completed
}

// HandleSendSerial writes the command's "message" field to the device once.
// Malformed payloads and write failures answer 500, success answers 200.
func (c *Controller) HandleSendSerial(_ context.Context, cmd bus.Command) bus.CommandResult {
	result := extractMessage(cmd.Payload)
	if !result.ok() {
		c.log.Warn("Rejected serial command", "command", cmd.Name, "error", result.err)
		return c.commandDone(cmd.Name, "", bus.StatusError, result.err)
	}

	if err := c.writer.WriteLine(result.message); err != nil {
		c.log.Error("Serial write failed", "command", cmd.Name, "error", err)
		return c.commandDone(cmd.Name, result.message, bus.StatusError, err)
	}

	c.log.Info("Sent serial data", "command", cmd.Name, "line", previewText(result.message))
	return c.commandDone(cmd.Name, result.message, bus.StatusOK, nil)
}

func (c *Controller) commandDone(name, text string, status int, err error) bus.CommandResult {
	if status == bus.StatusOK {
		c.stats.commandsOK.Add(1)
	} else {
		c.stats.commandsFailed.Add(1)
	}

	event := bus.Event{Type: bus.EventCommandHandled, Name: name, Text: text, Status: status}
	if err != nil {
		event.Error = err.Error()
	}
	c.publish(event)

	return bus.CommandResult{Status: status}
}

func (c *Controller) enqueue(msg bus.Message) bool {
	if c.bus.OfferOutbound(bus.Outbound{Output: c.opts.Output, Message: msg}) {
		return true
	}

	c.stats.dropped.Add(1)
	c.log.Warn("Outbound queue full, message dropped", "output", c.opts.Output, "bytes", len(msg.Payload))
	c.publish(bus.Event{Type: bus.EventSendFailed, Name: c.opts.Output, Error: "outbound queue full"})
	return false
}

// dispatch submits queued messages to the session one at a time. Failed
// submissions are logged and dropped.
func (c *Controller) dispatch(ctx context.Context) {
	for {
		out, ok := c.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		if err := c.session.Send(ctx, out.Output, out.Message); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.stats.sendFailures.Add(1)
			c.log.Error("Failed to send message", "output", out.Output, "bytes", len(out.Message.Payload), "error", err)
			c.publish(bus.Event{Type: bus.EventSendFailed, Name: out.Output, Text: string(out.Message.Payload), Error: err.Error()})
			continue
		}

		c.stats.sent.Add(1)
		c.log.Debug("Message sent", "output", out.Output, "bytes", len(out.Message.Payload))
		c.publish(bus.Event{Type: bus.EventMessageSent, Name: out.Output, Text: string(out.Message.Payload), Payload: map[string]string{"bytes": strconv.Itoa(len(out.Message.Payload))}})
	}
}

func (c *Controller) publish(event bus.Event) {
	c.bus.PublishEvent(context.Background(), event)
}

func previewText(text string) string {
	return logger.Preview(text, messagePreviewLimit)
}

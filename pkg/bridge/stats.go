package bridge

import "sync/atomic"

type counters struct {
	linesRead        atomic.Uint64
	readFailures     atomic.Uint64
	messagesReceived atomic.Uint64
	messagesMirrored atomic.Uint64
	sent             atomic.Uint64
	sendFailures     atomic.Uint64
	dropped          atomic.Uint64
	commandsOK       atomic.Uint64
	commandsFailed   atomic.Uint64
}

// Stats is a point-in-time copy of the controller counters.
type Stats struct {
	LinesRead        uint64 `json:"lines_read"`
	ReadFailures     uint64 `json:"read_failures"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesMirrored uint64 `json:"messages_mirrored"`
	Sent             uint64 `json:"sent"`
	SendFailures     uint64 `json:"send_failures"`
	Dropped          uint64 `json:"dropped"`
	CommandsOK       uint64 `json:"commands_ok"`
	CommandsFailed   uint64 `json:"commands_failed"`
}

func (c *counters) snapshot() Stats {
	return Stats{
		LinesRead:        c.linesRead.Load(),
		ReadFailures:     c.readFailures.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		MessagesMirrored: c.messagesMirrored.Load(),
		Sent:             c.sent.Load(),
		SendFailures:     c.sendFailures.Load(),
		Dropped:          c.dropped.Load(),
		CommandsOK:       c.commandsOK.Load(),
		CommandsFailed:   c.commandsFailed.Load(),
	}
}

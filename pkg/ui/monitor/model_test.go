package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"serialbridge/pkg/bus"
)

func TestHandleViewportMouseWheelUpDisablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(nil, Info{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()
	m.followLog = true

	previousOffset := m.viewport.YOffset
	handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	if !handled {
		t.Fatal("expected wheel-up mouse event to be handled")
	}
	if m.followLog {
		t.Fatal("expected followLog to be disabled after wheel-up scroll")
	}
	if m.viewport.YOffset >= previousOffset {
		t.Fatalf("expected YOffset to decrease after wheel-up scroll, got %d want < %d", m.viewport.YOffset, previousOffset)
	}
}

func TestHandleViewportMouseWheelDownAtBottomEnablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(nil, Info{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	m.viewport.SetYOffset(max(0, maxOffset-1))
	m.followLog = false

	handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelDown})
	if !handled {
		t.Fatal("expected wheel-down mouse event to be handled")
	}
	if !m.viewport.AtBottom() {
		t.Fatalf("expected viewport to reach bottom, got YOffset=%d", m.viewport.YOffset)
	}
	if !m.followLog {
		t.Fatal("expected followLog to re-enable when wheel-down reaches bottom")
	}
}

func TestHandleViewportMouseIgnoresNonWheelEvents(t *testing.T) {
	t.Parallel()

	m := newModel(nil, Info{})
	handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if handled {
		t.Fatal("expected non-wheel mouse event to be ignored")
	}
}

func TestRecordCountsEventsAndTracksFailures(t *testing.T) {
	t.Parallel()

	m := newModel(nil, Info{})
	now := time.Now()
	for _, event := range []bus.Event{
		{Type: bus.EventLineReceived, At: now, Name: "output1", Text: "temp=21"},
		{Type: bus.EventMessageReceived, At: now, Name: "input1", Seq: 1, Text: "hi"},
		{Type: bus.EventMessageSent, At: now, Name: "output1", Text: "temp=21"},
		{Type: bus.EventSendFailed, At: now, Name: "output1", Error: "hub unavailable"},
		{Type: bus.EventCommandHandled, At: now, Name: "sendserial", Status: 200, Text: "PING"},
	} {
		m.record(event)
	}

	want := tally{lines: 1, received: 1, sent: 1, failed: 1, commands: 1}
	if m.counts != want {
		t.Fatalf("counts = %+v, want %+v", m.counts, want)
	}
	if m.lastErr != "hub unavailable" {
		t.Fatalf("lastErr = %q, want %q", m.lastErr, "hub unavailable")
	}
}

func TestRecordKeepsBoundedHistory(t *testing.T) {
	t.Parallel()

	m := newModel(nil, Info{})
	for i := 0; i < maxEntries+10; i++ {
		m.record(bus.Event{Type: bus.EventLineReceived, Seq: uint64(i)})
	}

	if len(m.entries) != maxEntries {
		t.Fatalf("entries len = %d, want %d", len(m.entries), maxEntries)
	}
	if m.entries[0].Seq != 10 {
		t.Fatalf("oldest entry seq = %d, want 10", m.entries[0].Seq)
	}
}

func TestUpdateEventRequeuesWaitAndClosedStreamQuits(t *testing.T) {
	t.Parallel()

	events := make(chan bus.Event, 1)
	m := newModel(events, Info{Session: "loopback"})

	_, cmd := m.Update(eventMsg(bus.Event{Type: bus.EventLineReceived, Text: "abc", Name: "output1"}))
	if cmd == nil {
		t.Fatal("expected a follow-up wait command after an event")
	}
	if len(m.entries) != 1 {
		t.Fatalf("entries len = %d, want 1", len(m.entries))
	}

	close(events)
	if _, ok := cmd().(streamClosedMsg); !ok {
		t.Fatal("expected closed stream message from wait command")
	}

	_, cmd = m.Update(streamClosedMsg{})
	if cmd == nil {
		t.Fatal("expected quit command on closed stream")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg on closed stream")
	}
}

func TestRenderEventShowsCommandFailure(t *testing.T) {
	t.Parallel()

	m := newModel(nil, Info{})
	row := m.renderEvent(bus.Event{Type: bus.EventCommandHandled, Name: "sendserial", Status: 500, Error: errors.New("missing message").Error()})
	if !strings.Contains(row, "500") || !strings.Contains(row, "missing message") {
		t.Fatalf("row = %q, want status and error", row)
	}
}

func TestPreviewTextFlattensAndTruncates(t *testing.T) {
	t.Parallel()

	if got := previewText("a\nb"); got != "a b" {
		t.Fatalf("previewText = %q, want %q", got, "a b")
	}
	long := strings.Repeat("x", textPreviewMax+5)
	if got := previewText(long); got != strings.Repeat("x", textPreviewMax)+"..." {
		t.Fatalf("previewText did not truncate: %d chars", len(got))
	}
}

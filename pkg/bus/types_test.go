package bus

import (
	"context"
	"testing"
)

func TestPropertiesKeepInsertionOrder(t *testing.T) {
	var props Properties
	props.Add("zeta", "1")
	props.Add("alpha", "2")
	props.Add("mid", "3")

	want := []string{"zeta", "alpha", "mid"}
	for i, prop := range props {
		if prop.Key != want[i] {
			t.Fatalf("props[%d].Key = %q, want %q", i, prop.Key, want[i])
		}
	}
}

func TestMessageCloneIsIndependent(t *testing.T) {
	orig := Message{Payload: []byte("abc"), Properties: Properties{{Key: "k", Value: "v"}}}
	clone := orig.Clone()

	orig.Payload[0] = 'x'
	orig.Properties[0].Value = "changed"

	if string(clone.Payload) != "abc" {
		t.Fatalf("clone payload = %q, want %q", clone.Payload, "abc")
	}
	if clone.Properties[0].Value != "v" {
		t.Fatalf("clone property = %q, want %q", clone.Properties[0].Value, "v")
	}
}

func TestCloneOfEmptyPropertiesIsNil(t *testing.T) {
	if got := (Properties{}).Clone(); got != nil {
		t.Fatalf("Clone() = %#v, want nil", got)
	}
}

func TestDispositionString(t *testing.T) {
	if got := Completed.String(); got != "completed" {
		t.Fatalf("Completed = %q", got)
	}
	if got := Rejected.String(); got != "rejected" {
		t.Fatalf("Rejected = %q", got)
	}
}

func TestRouterDispatch(t *testing.T) {
	var r Router

	if _, ok := r.MessageHandler("input1"); ok {
		t.Fatal("expected no handler before registration")
	}

	r.OnInboundMessage("input1", func(context.Context, Message) Disposition { return Rejected })
	r.OnCommand("sendserial", func(context.Context, Command) CommandResult { return CommandResult{Status: StatusOK} })

	handler, ok := r.MessageHandler("input1")
	if !ok {
		t.Fatal("expected input1 handler")
	}
	if got := handler(context.Background(), Message{}); got != Rejected {
		t.Fatalf("disposition = %v, want %v", got, Rejected)
	}

	cmd, ok := r.CommandHandler("sendserial")
	if !ok {
		t.Fatal("expected sendserial handler")
	}
	if got := cmd(context.Background(), Command{}); got.Status != StatusOK {
		t.Fatalf("status = %d, want %d", got.Status, StatusOK)
	}

	if _, ok := r.CommandHandler("other"); ok {
		t.Fatal("expected unknown command to be unrouted")
	}
}

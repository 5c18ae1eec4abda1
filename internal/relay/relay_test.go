package relay

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"chatrelay/pkg/protocol"
)

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestLoopDeliversInSubmissionOrder(t *testing.T) {
	r, reg := newTestRelay()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	a := connect(t, reg, "1")
	b := connect(t, reg, "2")
	r.HandleMessage(ctx, a.ID(), frame(protocol.EventJoinChat, `"1-2"`))
	r.HandleMessage(ctx, b.ID(), frame(protocol.EventJoinChat, `"1-2"`))

	for _, payload := range []string{
		`{"id":1,"chatId":"1-2","userId":1,"content":"first"}`,
		`{"id":2,"chatId":"1-2","userId":1,"content":"second"}`,
		`{"id":3,"chatId":"1-2","userId":1,"content":"third"}`,
	} {
		r.HandleMessage(ctx, a.ID(), frame(protocol.EventSendMessage, payload))
	}

	waitFor(t, func() bool { return b.count() == 3 })

	got := b.received(t)
	for i, want := range []string{"1", "2", "3"} {
		var env protocol.MessageEnvelope
		if err := json.Unmarshal(got[i].Payload, &env); err != nil {
			t.Fatalf("undecodable envelope: %v", err)
		}
		if env.ID.String() != want {
			t.Errorf("frame %d: expected id %s, got %s", i, want, env.ID.String())
		}
	}
}

// panicConn blows up on delivery, standing in for a handler bug.
type panicConn struct {
	*fakeConn
}

func (c *panicConn) Send(message []byte) bool { panic("send on closed channel") }

func TestLoopSurvivesHandlerPanic(t *testing.T) {
	r, reg := newTestRelay()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	bomb := &panicConn{fakeConn: newFakeConn()}
	if _, err := reg.RegisterConnection(bomb, "127.0.0.1"); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if _, err := reg.Announce(bomb.ID(), "2"); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	a := connect(t, reg, "1")
	b := connect(t, reg, "3")
	r.HandleMessage(ctx, a.ID(), frame(protocol.EventJoinChat, `"1-2"`))
	r.HandleMessage(ctx, bomb.ID(), frame(protocol.EventJoinChat, `"1-2"`))
	r.HandleMessage(ctx, b.ID(), frame(protocol.EventJoinChat, `"1-3"`))

	// Delivery into "1-2" panics on the bomb connection; the loop must
	// drop that event and keep serving everyone else.
	r.HandleMessage(ctx, a.ID(), frame(protocol.EventSendMessage,
		`{"id":1,"chatId":"1-2","userId":1,"content":"boom"}`))
	r.HandleMessage(ctx, a.ID(), frame(protocol.EventSendMessage,
		`{"id":2,"chatId":"1-3","userId":1,"content":"still here"}`))

	waitFor(t, func() bool { return b.count() == 1 })

	got := b.received(t)
	var env protocol.MessageEnvelope
	if err := json.Unmarshal(got[0].Payload, &env); err != nil {
		t.Fatalf("undecodable envelope: %v", err)
	}
	if env.Content != "still here" {
		t.Errorf("expected follow-up message, got %q", env.Content)
	}
}

func TestLoopHandlesDisconnect(t *testing.T) {
	r, reg := newTestRelay()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	a := connect(t, reg, "1")
	r.HandleMessage(ctx, a.ID(), frame(protocol.EventJoinChat, `"1-2"`))
	r.HandleDisconnect(a.ID())

	waitFor(t, func() bool {
		_, found := reg.GetSession(a.ID())
		return !found
	})
	if len(reg.MembersOf("1-2")) != 0 {
		t.Error("room membership survived disconnect")
	}
}

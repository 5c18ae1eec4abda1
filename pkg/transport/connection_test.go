package transport

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// newIdleConnection builds a Connection without starting its pumps. The
// underlying socket is nil, which Close tolerates; that is enough to
// exercise the Send/Close interaction in isolation.
func newIdleConnection(t *testing.T) (*Connection, *sync.WaitGroup) {
	t.Helper()
	var wg sync.WaitGroup
	c := NewConnection(context.Background(), &wg, nil, ConnectionConfig{
		ReadTimeout: time.Minute,
		SendBuffer:  4,
	}, newTestLogger())
	return c, &wg
}

func TestSendAfterCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, _ := newIdleConnection(t)
		c.Close(nil)
		if c.Send([]byte("hi")) {
			t.Fatalf("iteration %d: Send reported delivery after Close", i)
		}
	}
}

func TestSendConcurrentWithCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 100; i++ {
		c, _ := newIdleConnection(t)

		var senders sync.WaitGroup
		for s := 0; s < 4; s++ {
			senders.Add(1)
			go func() {
				defer senders.Done()
				for {
					c.Send([]byte("hi"))
					select {
					case <-c.Done():
						return
					default:
					}
				}
			}()
		}
		c.Close(nil)
		senders.Wait()
	}
}

func TestCloseFiresHandlerOnce(t *testing.T) {
	c, wg := newIdleConnection(t)

	var calls int
	c.SetOnCloseHandler(func(connID uuid.UUID, err error) {
		calls++
		if connID != c.ID() {
			t.Errorf("close handler got connID %s, want %s", connID, c.ID())
		}
	})

	c.Close(nil)
	c.Close(nil)

	if calls != 1 {
		t.Fatalf("close handler fired %d times, want 1", calls)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel not closed after Close")
	}
	wg.Wait()
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	var wg sync.WaitGroup
	c := NewConnection(context.Background(), &wg, nil, ConnectionConfig{
		ReadTimeout: time.Minute,
		SendBuffer:  1,
	}, newTestLogger())
	defer c.Close(nil)

	if !c.Send([]byte("first")) {
		t.Fatal("first Send should buffer")
	}
	if c.Send([]byte("second")) {
		t.Fatal("second Send should drop with no pump draining the buffer")
	}
}

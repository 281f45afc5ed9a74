package feed

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestClient() *Client {
	c := New("key", "ws://example.invalid/feed", []string{"observations"}, time.Millisecond, time.Minute)
	return c.(*Client)
}

func TestClientStartsDisconnected(t *testing.T) {
	c := newTestClient()
	if c.IsConnected() {
		t.Fatal("new client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close without connection: %v", err)
	}
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatal("subscribe without connection succeeded")
	}
}

func TestClientReadWithoutConnection(t *testing.T) {
	c := newTestClient()
	obs, errs := c.Read(context.Background())

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected connection error")
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
	// both channels close so the consumer moves on to reconnect
	if _, ok := <-obs; ok {
		t.Fatal("observation channel delivered a value")
	}
	if _, ok := <-errs; ok {
		t.Fatal("error channel delivered a second value")
	}
}

func TestClientStateConcurrentAccess(t *testing.T) {
	c := newTestClient()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.IsConnected()
				_ = c.Close()
			}
		}()
	}
	wg.Wait()
	if c.IsConnected() {
		t.Fatal("client reports connected after close")
	}
}

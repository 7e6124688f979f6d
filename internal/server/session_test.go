package server

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// TestSessionTeardownIdempotent verifies that concurrent teardowns of one
// Session release one admission slot and announce the departure once.
func TestSessionTeardownIdempotent(t *testing.T) {
	srv := newUnstartedServer(newTestConfig())
	s := newRoutedSessions(t, srv, "Ann", "Bo")
	ann, bo := s[0], s[1]
	srv.admission.TryAcquire()
	srv.admission.TryAcquire()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ann.teardown()
		}()
	}
	wg.Wait()

	if diff := cmp.Diff([]string{protocol.Left("Ann")}, drain(bo)); diff != "" {
		t.Errorf("departure notices mismatch (-want +got):\n%s", diff)
	}
	if n := srv.admission.Active(); n != 1 {
		t.Errorf("admission.Active() = %d, want 1", n)
	}
	if _, ok := srv.registry.Lookup("Ann"); ok {
		t.Error("Ann still registered")
	}
	if ann.Deliver("late") {
		t.Error("Deliver succeeded on a torn down session")
	}
}

func TestSessionTeardownQuietDuringShutdown(t *testing.T) {
	srv := newUnstartedServer(newTestConfig())
	s := newRoutedSessions(t, srv, "Ann", "Bo")
	srv.accepting.Store(false)

	s[0].teardown()

	if got := drain(s[1]); len(got) != 0 {
		t.Errorf("departure announced during shutdown: %v", got)
	}
}

func TestSessionWriterFlushesBeforeClose(t *testing.T) {
	srv := newUnstartedServer(newTestConfig())
	ann, ft := newTestSession(t, srv, "Ann")
	go ann.writePump()

	ann.Deliver("one")
	ann.Deliver("two")
	ann.Close(time.Second)

	if diff := cmp.Diff([]string{"one", "two"}, ft.lines()); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
	if !ft.isClosed() {
		t.Error("transport not closed after Close")
	}
}

func TestSessionCloseForcesStuckWriter(t *testing.T) {
	srv := newUnstartedServer(newTestConfig())
	ann, ft := newTestSession(t, srv, "Ann")
	// No writer is running, so writerDone never closes.

	start := time.Now()
	ann.Close(50 * time.Millisecond)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close took %s", elapsed)
	}
	if !ft.isClosed() {
		t.Error("transport not force closed")
	}
}

// TestSessionSlowConsumerEvicted verifies that a full send queue evicts the
// Session instead of blocking the sender.
func TestSessionSlowConsumerEvicted(t *testing.T) {
	cfg := newTestConfig()
	cfg.SendBuffer = 1
	srv := newUnstartedServer(cfg)
	s := newRoutedSessions(t, srv, "Slow")
	slow := s[0]
	ft := slow.transport.(*fakeTransport)

	if !slow.Deliver("first") {
		t.Fatal("first Deliver failed")
	}
	if slow.Deliver("second") {
		t.Fatal("Deliver on a full queue succeeded")
	}

	eventually(t, func() bool {
		_, ok := srv.registry.Lookup("Slow")
		return !ok && ft.isClosed()
	}, "slow session evicted and closed")
}

func TestSessionReadLoopRateLimited(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimit.Burst = 2
	cfg.RateLimit.RefillInterval = time.Hour
	srv := newUnstartedServer(cfg)
	s := newRoutedSessions(t, srv, "Ann", "Bo")
	ann, bo := s[0], s[1]
	ft := ann.transport.(*fakeTransport)

	for _, line := range []string{"a", "b", "c"} {
		ft.inbound <- line
	}
	close(ft.inbound)
	ann.readLoop()

	want := []string{protocol.SelfEcho("a"), protocol.SelfEcho("b"), protocol.RateLimitedNotice}
	if diff := cmp.Diff(want, drain(ann)); diff != "" {
		t.Errorf("Ann mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{protocol.Chat("Ann", "a"), protocol.Chat("Ann", "b")}, drain(bo)); diff != "" {
		t.Errorf("Bo mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionReadLoopStopsOnQuit(t *testing.T) {
	srv := newUnstartedServer(newTestConfig())
	s := newRoutedSessions(t, srv, "Ann", "Bo")
	ft := s[0].transport.(*fakeTransport)

	ft.inbound <- `\q`
	ft.inbound <- "never processed"

	done := make(chan struct{})
	go func() {
		s[0].readLoop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(readTimeout):
		t.Fatal("readLoop did not return after the quit sentinel")
	}
	if got := drain(s[1]); len(got) != 0 {
		t.Errorf("lines after quit were routed: %v", got)
	}
}

func TestSessionQuitBypassesRateLimit(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimit.Burst = 1
	cfg.RateLimit.RefillInterval = time.Hour
	srv := newUnstartedServer(cfg)
	s := newRoutedSessions(t, srv, "Ann")
	ft := s[0].transport.(*fakeTransport)

	ft.inbound <- "a"
	ft.inbound <- `\q`
	ft.inbound <- "never processed"
	s[0].readLoop()

	if diff := cmp.Diff([]string{protocol.SelfEcho("a")}, drain(s[0])); diff != "" {
		t.Errorf("Ann mismatch (-want +got):\n%s", diff)
	}
}

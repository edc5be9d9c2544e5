package lifecycle

import (
	"sync"
	"sync/atomic"
	"testing"
)

type fakeSession struct {
	closed atomic.Int64
}

func (f *fakeSession) ForceClose() {
	f.closed.Add(1)
}

func TestShutdownFlagLatches(t *testing.T) {
	rt := New(nil)
	if rt.ShutdownRequested() {
		t.Fatal("fresh runtime must not be shut down")
	}
	rt.RequestShutdown()
	rt.RequestShutdown()
	if !rt.ShutdownRequested() {
		t.Fatal("flag must stay set")
	}
}

func TestSessionRegistry(t *testing.T) {
	rt := New(nil)
	a, b := &fakeSession{}, &fakeSession{}

	rt.RegisterSession("a", a)
	rt.RegisterSession("b", b)
	if rt.LiveSessions() != 2 {
		t.Fatalf("LiveSessions = %d, want 2", rt.LiveSessions())
	}

	rt.UnregisterSession("a")
	if rt.LiveSessions() != 1 {
		t.Fatalf("LiveSessions = %d, want 1", rt.LiveSessions())
	}

	// 空 ID 和 nil 会话不得进注册表。
	rt.RegisterSession("", b)
	rt.RegisterSession("c", nil)
	if rt.LiveSessions() != 1 {
		t.Fatalf("LiveSessions = %d after bad registrations, want 1", rt.LiveSessions())
	}
}

func TestCloseAllRunsOnceAndDrains(t *testing.T) {
	rt := New(nil)
	sessions := make([]*fakeSession, 5)
	for i := range sessions {
		sessions[i] = &fakeSession{}
		rt.RegisterSession(string(rune('a'+i)), sessions[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.CloseAll()
		}()
	}
	wg.Wait()

	for i, s := range sessions {
		if got := s.closed.Load(); got != 1 {
			t.Fatalf("session %d closed %d times, want exactly 1", i, got)
		}
	}
	if rt.LiveSessions() != 0 {
		t.Fatalf("registry must be drained, still %d live", rt.LiveSessions())
	}

	// 次轮注册的会话不会被已消费的 CloseAll 影响。
	late := &fakeSession{}
	rt.RegisterSession("late", late)
	rt.CloseAll()
	if late.closed.Load() != 0 {
		t.Fatal("CloseAll must only ever run once per process")
	}
}

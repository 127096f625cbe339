package memkv

import (
	"context"
	"testing"
	"time"

	"github.com/duetkeys/duet/internal/realtime"
)

func recvEntry(t *testing.T, ch <-chan realtime.Entry) realtime.Entry {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatalf("watch channel closed early")
		}
		return e
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for watch entry")
		return realtime.Entry{}
	}
}

func TestWatch_ReplaysCurrentThenStreams(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Put(ctx, "presence.abc", []byte(`1`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	w, err := s.Watch(ctx, "presence.*")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Stop()

	first := recvEntry(t, w.Updates())
	if first.Key != "presence.abc" || first.Op != realtime.OpPut {
		t.Fatalf("unexpected initial entry: %+v", first)
	}

	if err := s.Put(ctx, "presence.def", []byte(`2`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	second := recvEntry(t, w.Updates())
	if second.Key != "presence.def" || string(second.Value) != "2" {
		t.Fatalf("unexpected live entry: %+v", second)
	}
}

func TestWatch_PatternScoping(t *testing.T) {
	ctx := context.Background()
	s := New()
	w, err := s.Watch(ctx, "presence.*")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Stop()

	if err := s.Put(ctx, "session.v1", []byte(`{}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "presence.xyz", []byte(`1`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	e := recvEntry(t, w.Updates())
	if e.Key != "presence.xyz" {
		t.Fatalf("watch leaked entry for %q", e.Key)
	}
}

func TestDelete_IdempotentAndObserved(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Put(ctx, "presence.abc", []byte(`1`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	w, _ := s.Watch(ctx, "presence.*")
	defer w.Stop()
	recvEntry(t, w.Updates()) // initial

	if err := s.Delete(ctx, "presence.abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	e := recvEntry(t, w.Updates())
	if e.Op != realtime.OpDelete {
		t.Fatalf("expected delete op, got %+v", e)
	}

	// Double delete must be a no-op, not an error.
	if err := s.Delete(ctx, "presence.abc"); err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if _, err := s.Get(ctx, "presence.abc"); err != realtime.ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestClose_RemovesDisconnectKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Put(ctx, "presence.me", []byte(`1`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.RemoveOnDisconnect("presence.me")

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Get(ctx, "presence.me"); err != realtime.ErrKeyNotFound {
		t.Fatalf("record survived disconnect: %v", err)
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"session.v1", "session.v1", true},
		{"session.v1", "session.v2", false},
		{"presence.*", "presence.abc", true},
		{"presence.*", "presence", false},
		{"presence.*", "presence.a.b", false},
		{"presence.*", "session.v1", false},
	}
	for _, c := range cases {
		if got := matches(c.pattern, c.key); got != c.want {
			t.Errorf("matches(%q, %q) = %v, want %v", c.pattern, c.key, got, c.want)
		}
	}
}

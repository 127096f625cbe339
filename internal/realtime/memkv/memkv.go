// Package memkv is an in-process realtime.Store with the same observable
// semantics as the NATS-backed store: last-writer-wins keys, watches that
// replay current values before streaming changes, idempotent deletes. It
// backs tests and the offline single-player mode.
package memkv

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/realtime"
)

const watchBuffer = 256

// Store implements realtime.Store in memory.
type Store struct {
	mu         sync.Mutex
	data       map[string][]byte
	watchers   map[*watcher]struct{}
	disconnect map[string]struct{}
	closed     bool
}

type watcher struct {
	store   *Store
	pattern string
	ch      chan realtime.Entry
	once    sync.Once
}

// New creates an empty store.
func New() *Store {
	return &Store{
		data:       make(map[string][]byte),
		watchers:   make(map[*watcher]struct{}),
		disconnect: make(map[string]struct{}),
	}
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
	s.notify(realtime.Entry{Key: key, Value: v, Op: realtime.OpPut})
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, realtime.ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	s.notify(realtime.Entry{Key: key, Op: realtime.OpDelete})
	return nil
}

func (s *Store) Watch(ctx context.Context, pattern string) (realtime.Watcher, error) {
	w := &watcher{store: s, pattern: pattern, ch: make(chan realtime.Entry, watchBuffer)}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	// Replay current values before any live change can arrive.
	for key, v := range s.data {
		if matches(pattern, key) {
			w.send(realtime.Entry{Key: key, Value: v, Op: realtime.OpPut})
		}
	}
	s.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			w.Stop()
		}()
	}
	return w, nil
}

func (s *Store) RemoveOnDisconnect(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect[key] = struct{}{}
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	keys := make([]string, 0, len(s.disconnect))
	for key := range s.disconnect {
		keys = append(keys, key)
	}
	watchers := make([]*watcher, 0, len(s.watchers))
	for w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, key := range keys {
		if err := s.Delete(context.Background(), key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("disconnect cleanup failed")
		}
	}
	for _, w := range watchers {
		w.Stop()
	}
	return nil
}

// notify fans an entry out to matching watchers. Callers hold s.mu.
func (s *Store) notify(e realtime.Entry) {
	for w := range s.watchers {
		if matches(w.pattern, e.Key) {
			w.send(e)
		}
	}
}

func (w *watcher) send(e realtime.Entry) {
	select {
	case w.ch <- e:
	default:
		// A slow consumer sees writes collapsed, same as a slow subscriber
		// of the replicated store.
		log.Warn().Str("key", e.Key).Msg("watch buffer full, dropping update")
	}
}

func (w *watcher) Updates() <-chan realtime.Entry {
	return w.ch
}

func (w *watcher) Stop() error {
	w.once.Do(func() {
		w.store.mu.Lock()
		delete(w.store.watchers, w)
		w.store.mu.Unlock()
		close(w.ch)
	})
	return nil
}

// matches supports exact keys and patterns with a trailing ".*" wildcard
// covering exactly one level, mirroring the KV bucket's subject matching.
func matches(pattern, key string) bool {
	if pattern == key {
		return true
	}
	prefix, ok := strings.CutSuffix(pattern, ".*")
	if !ok {
		return false
	}
	rest, ok := strings.CutPrefix(key, prefix+".")
	if !ok {
		return false
	}
	return rest != "" && !strings.Contains(rest, ".")
}

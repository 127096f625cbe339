// Package natskv backs realtime.Store with a NATS JetStream KeyValue bucket:
// a replicated last-writer-wins keyed store whose watches fire with current
// values first and then on every change, which is exactly the subscription
// contract the presence and session layers are written against.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/realtime"
)

// Config holds connection settings for the KV-backed store.
type Config struct {
	URL           string
	Bucket        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns settings suitable for a local deployment.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "duet",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Store implements realtime.Store over a JetStream KeyValue bucket.
type Store struct {
	nc *nats.Conn
	kv jetstream.KeyValue

	mu         sync.Mutex
	disconnect []string
}

// New connects to NATS and creates or binds the KV bucket.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "duet presence and session records",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind KV bucket %s: %w", cfg.Bucket, err)
	}

	return &Store{nc: nc, kv: kv}, nil
}

// Conn exposes the underlying connection for plain pub/sub fan-out.
func (s *Store) Conn() *nats.Conn {
	return s.nc
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, realtime.ErrKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, pattern string) (realtime.Watcher, error) {
	kw, err := s.kv.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", pattern, err)
	}

	w := &watcher{inner: kw, ch: make(chan realtime.Entry, 256)}
	go w.pump()
	return w, nil
}

func (s *Store) RemoveOnDisconnect(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect = append(s.disconnect, key)
}

// Close deletes disconnect-registered keys and drops the connection. This is
// best-effort: a crashed process never reaches it, which is why readers also
// garbage-collect stale records.
func (s *Store) Close() error {
	s.mu.Lock()
	keys := s.disconnect
	s.disconnect = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("disconnect cleanup failed")
		}
	}

	s.nc.Close()
	return nil
}

type watcher struct {
	inner jetstream.KeyWatcher
	ch    chan realtime.Entry
}

// pump translates KV entries to store entries. The KV watcher emits a nil
// marker once the initial replay is done; consumers here don't distinguish
// replay from live traffic, so the marker is swallowed.
func (w *watcher) pump() {
	defer close(w.ch)
	for entry := range w.inner.Updates() {
		if entry == nil {
			continue
		}
		e := realtime.Entry{Key: entry.Key(), Value: entry.Value(), Op: realtime.OpPut}
		if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
			e.Op = realtime.OpDelete
			e.Value = nil
		}
		select {
		case w.ch <- e:
		default:
			log.Warn().Str("key", e.Key).Msg("watch buffer full, dropping update")
		}
	}
}

func (w *watcher) Updates() <-chan realtime.Entry {
	return w.ch
}

func (w *watcher) Stop() error {
	return w.inner.Stop()
}

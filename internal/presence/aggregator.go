// Package presence maintains each client's outward-facing liveness record and
// the live, deduplicated view of everyone else's. Records live in the shared
// realtime store under one key per participant; readers cooperatively delete
// records whose owner stopped refreshing them.
package presence

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/models"
	"github.com/duetkeys/duet/internal/realtime"
)

// Config tunes the aggregator. The liveness threshold and publish interval
// are deliberately configuration rather than constants; nothing in the
// protocol depends on their exact values.
type Config struct {
	Prefix          string        // key prefix, default "presence"
	Role            models.Role
	Liveness        time.Duration // records older than this are dropped and GC'd
	PublishInterval time.Duration // floor between position-triggered writes
	ObserveBuffer   int           // per-subscriber channel depth
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "presence"
	}
	if c.Role == "" {
		c.Role = models.RoleHost
	}
	if c.Liveness <= 0 {
		c.Liveness = 60 * time.Second
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 50 * time.Millisecond
	}
	if c.ObserveBuffer <= 0 {
		c.ObserveBuffer = 8
	}
}

// Aggregator publishes this client's participant record and aggregates the
// records of everyone else into a push-based view.
type Aggregator struct {
	store realtime.Store
	clock clockwork.Clock
	cfg   Config
	id    string

	mu          sync.Mutex
	current     models.Participant
	lastPublish time.Time
	started     bool
	watcher     realtime.Watcher
	records     map[string]models.Participant
	subs        []chan map[string]models.Participant
}

// New creates an aggregator with a fresh ephemeral id for this process
// lifetime. The id is never persisted or reused.
func New(store realtime.Store, clock clockwork.Clock, cfg Config) *Aggregator {
	cfg.applyDefaults()
	return &Aggregator{
		store:   store,
		clock:   clock,
		cfg:     cfg,
		id:      strings.ReplaceAll(uuid.New().String(), "-", "")[:9],
		records: make(map[string]models.Participant),
	}
}

// ID returns this client's ephemeral identifier.
func (a *Aggregator) ID() string {
	return a.id
}

func (a *Aggregator) key() string {
	return a.cfg.Prefix + "." + a.id
}

// Start performs the initial publish at a default center position and
// registers best-effort removal of the record on disconnect.
func (a *Aggregator) Start(ctx context.Context, activity string, telemetry map[string]any) error {
	a.mu.Lock()
	a.current = models.Participant{
		ID:        a.id,
		Position:  models.Position{X: 50, Y: 50},
		Role:      a.cfg.Role,
		Activity:  activity,
		Telemetry: telemetry,
		Online:    true,
	}
	a.started = true
	a.publishLocked(ctx)
	a.mu.Unlock()

	a.store.RemoveOnDisconnect(a.key())
	return nil
}

// PublishPosition overwrites this client's record with a new pointer
// position. Calls arriving faster than the configured interval are dropped,
// not queued, bounding write volume from high-frequency pointer events.
func (a *Aggregator) PublishPosition(ctx context.Context, x, y float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	now := a.clock.Now()
	if now.Sub(a.lastPublish) < a.cfg.PublishInterval {
		return
	}
	a.lastPublish = now
	a.current.Position = models.Position{X: x, Y: y}
	a.publishLocked(ctx)
}

// SetActivity publishes a new activity tag and telemetry snapshot. These
// changes are rare compared to pointer moves, so they are not rate-limited.
func (a *Aggregator) SetActivity(ctx context.Context, activity string, telemetry map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.current.Activity = activity
	a.current.Telemetry = telemetry
	a.publishLocked(ctx)
}

// publishLocked writes the current record with a fresh lastSeen. Writes are
// fire-and-forget: store trouble is logged and the update dropped, never
// surfaced to the caller.
func (a *Aggregator) publishLocked(ctx context.Context) {
	a.current.LastSeen = a.clock.Now().UnixMilli()
	data, err := json.Marshal(a.current)
	if err != nil {
		log.Error().Err(err).Msg("marshal participant record")
		return
	}
	if err := a.store.Put(ctx, a.key(), data); err != nil {
		log.Error().Err(err).Str("id", a.id).Msg("publish participant record")
	}
}

// Observe returns a push-based feed of all other live participants, keyed by
// their ephemeral id. The feed never contains this client's own record nor
// any record older than the liveness threshold; observing a stale record
// opportunistically deletes it from the store so crashed clients don't leave
// garbage behind forever.
func (a *Aggregator) Observe(ctx context.Context) (<-chan map[string]models.Participant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.watcher == nil {
		w, err := a.store.Watch(ctx, a.cfg.Prefix+".*")
		if err != nil {
			return nil, err
		}
		a.watcher = w
		go a.consume(ctx, w)
	}

	ch := make(chan map[string]models.Participant, a.cfg.ObserveBuffer)
	a.subs = append(a.subs, ch)
	return ch, nil
}

func (a *Aggregator) consume(ctx context.Context, w realtime.Watcher) {
	defer func() {
		// Close subscriber channels only once the feed can no longer send.
		a.mu.Lock()
		subs := a.subs
		a.subs = nil
		a.mu.Unlock()
		for _, ch := range subs {
			close(ch)
		}
	}()

	for entry := range w.Updates() {
		a.mu.Lock()
		switch entry.Op {
		case realtime.OpDelete:
			delete(a.records, entry.Key)
		case realtime.OpPut:
			var p models.Participant
			if err := json.Unmarshal(entry.Value, &p); err != nil {
				log.Warn().Err(err).Str("key", entry.Key).Msg("malformed participant record")
				a.mu.Unlock()
				continue
			}
			if p.ID == "" {
				p.ID = strings.TrimPrefix(entry.Key, a.cfg.Prefix+".")
			}
			if p.Role == "" {
				p.Role = models.RoleHost
			}
			a.records[entry.Key] = p
		}
		others := a.collectLocked(ctx)
		subs := append([]chan map[string]models.Participant(nil), a.subs...)
		a.mu.Unlock()

		for _, ch := range subs {
			select {
			case ch <- others:
			default:
				// Slow observers get the next snapshot instead.
			}
		}
	}
}

// collectLocked builds the visible set: self excluded, stale records
// excluded and garbage-collected. Two clients may race to delete the same
// stale record; the store treats double deletes as no-ops.
func (a *Aggregator) collectLocked(ctx context.Context) map[string]models.Participant {
	now := a.clock.Now().UnixMilli()
	others := make(map[string]models.Participant)
	for key, p := range a.records {
		if p.ID == a.id || key == a.key() {
			continue
		}
		if now-p.LastSeen >= a.cfg.Liveness.Milliseconds() {
			delete(a.records, key)
			if err := a.store.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("stale record cleanup failed")
			}
			continue
		}
		others[p.ID] = p
	}
	return others
}

// Teardown removes this client's own record and cancels all subscriptions.
// In-flight writes already sent are not retracted.
func (a *Aggregator) Teardown(ctx context.Context) error {
	a.mu.Lock()
	w := a.watcher
	a.watcher = nil
	a.started = false
	a.mu.Unlock()

	if w != nil {
		// Stopping the watch ends the consume loop, which closes the
		// subscriber channels.
		if err := w.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop presence watch")
		}
	}
	return a.store.Delete(ctx, a.key())
}

// Package session keeps the single shared game-session record eventually
// consistent across clients. The backing store is last-writer-wins per key
// with no transactions, so reconciliation is client-side: every field
// declares a merge policy, and one field (mode) is client-local-authoritative
// with a freshness window so a stale snapshot can never teleport a client
// into a mode it did not choose.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/models"
	"github.com/duetkeys/duet/internal/realtime"
)

// MergePolicy says how a field of the shared record reconciles an incoming
// snapshot against local state.
type MergePolicy int

const (
	// PolicyReplace adopts the incoming value wholesale when it is set.
	PolicyReplace MergePolicy = iota
	// PolicyMergeMap merges sub-keys additively, never replacing the map.
	PolicyMergeMap
	// PolicySticky keeps the local value unless the incoming change is
	// fresher than the configured window.
	PolicySticky
)

type fieldPolicy struct {
	name   string
	policy MergePolicy
	// apply reconciles src into dst for replace and merge-map fields.
	// Sticky fields are resolved by the store, which owns the clock.
	apply func(dst *models.Session, src models.Session)
}

// fieldPolicies is the declarative merge table for the shared record. A new
// synced field gets a row here rather than a branch in the merge code.
// Incoming zero values never clobber local state; missing fields on the wire
// are defensively treated as absent.
var fieldPolicies = []fieldPolicy{
	{name: "mode", policy: PolicySticky},
	{name: "theme", policy: PolicyReplace, apply: func(dst *models.Session, src models.Session) {
		if src.Theme != "" {
			dst.Theme = src.Theme
		}
	}},
	{name: "timer_sec", policy: PolicyReplace, apply: func(dst *models.Session, src models.Session) {
		if src.TimerSec != 0 {
			dst.TimerSec = src.TimerSec
		}
	}},
	{name: "language", policy: PolicyReplace, apply: func(dst *models.Session, src models.Session) {
		if src.Language != "" {
			dst.Language = src.Language
		}
	}},
	{name: "words", policy: PolicyReplace, apply: func(dst *models.Session, src models.Session) {
		if src.Words != "" {
			dst.Words = src.Words
		}
	}},
	{name: "started_at", policy: PolicyReplace, apply: func(dst *models.Session, src models.Session) {
		if src.StartedAt != 0 {
			dst.StartedAt = src.StartedAt
		}
	}},
	{name: "game_data", policy: PolicyMergeMap, apply: func(dst *models.Session, src models.Session) {
		if dst.GameData == nil {
			dst.GameData = models.GameData{}
		}
		for k, v := range src.GameData {
			dst.GameData[k] = v
		}
	}},
}

// Changes is a partial update. Nil pointer fields are untouched; GameData
// entries are merged into the existing map.
type Changes struct {
	Mode      *models.Mode
	Theme     *models.Theme
	TimerSec  *int
	Language  *string
	Words     *string
	StartedAt *int64
	GameData  models.GameData
}

// Config tunes the store.
type Config struct {
	Key    string        // store key, default "session.v1"
	Window time.Duration // mode adoption window, default 5s
	Buffer int           // per-subscriber channel depth
}

func (c *Config) applyDefaults() {
	if c.Key == "" {
		c.Key = "session.v1"
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 8
	}
}

// Store is one client's view of the shared session record.
type Store struct {
	rt    realtime.Store
	clock clockwork.Clock
	cfg   Config

	mu      sync.Mutex
	local   models.Session
	watcher realtime.Watcher
	subs    []chan models.Session
}

// Default returns the session a fresh client starts from before any sync:
// typing mode, house defaults, and seeds derived from the current time so a
// lone client still gets varied content.
func Default(clock clockwork.Clock) models.Session {
	now := clock.Now().UnixMilli()
	return models.Session{
		Mode:     models.ModeTyping,
		Theme:    models.ThemeLove,
		TimerSec: 30,
		Language: "p1",
		GameData: models.GameData{
			models.GameKeyQuizSeed:   now,
			models.GameKeyMemorySeed: now,
			models.GameKeyFinishSeed: now,
			models.GameKeyBossSeed:   now,
			models.GameKeyBossHealth: 100,
		},
	}
}

// New creates a client-local session store starting from initial.
func New(rt realtime.Store, clock clockwork.Clock, cfg Config, initial models.Session) *Store {
	cfg.applyDefaults()
	if initial.GameData == nil {
		initial.GameData = models.GameData{}
	}
	return &Store{rt: rt, clock: clock, cfg: cfg, local: initial}
}

// Snapshot returns a copy of the current merged session, local mode included.
func (s *Store) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.Session {
	out := s.local
	out.GameData = s.local.GameData.Clone()
	return out
}

// Subscribe returns a push-based feed of merged snapshots: one immediately,
// one after every local update, and one for every reconciled remote change.
func (s *Store) Subscribe(ctx context.Context) (<-chan models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		w, err := s.rt.Watch(ctx, s.cfg.Key)
		if err != nil {
			return nil, err
		}
		s.watcher = w
		go s.consume(w)
	}

	ch := make(chan models.Session, s.cfg.Buffer)
	ch <- s.snapshotLocked()
	s.subs = append(s.subs, ch)
	return ch, nil
}

func (s *Store) consume(w realtime.Watcher) {
	defer func() {
		s.mu.Lock()
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()
		for _, ch := range subs {
			close(ch)
		}
	}()

	for entry := range w.Updates() {
		if entry.Op != realtime.OpPut {
			// The session record is never deleted in normal operation.
			continue
		}
		var incoming models.Session
		if err := json.Unmarshal(entry.Value, &incoming); err != nil {
			log.Warn().Err(err).Msg("malformed session snapshot")
			continue
		}
		s.mu.Lock()
		s.reconcileLocked(incoming)
		s.emitLocked()
		s.mu.Unlock()
	}
}

// reconcileLocked merges an incoming snapshot into local state following the
// policy table. Applying this client's own echoed write is harmless: every
// merge is idempotent and the sticky check passes trivially for a mode this
// client just set.
func (s *Store) reconcileLocked(incoming models.Session) {
	for _, fp := range fieldPolicies {
		switch fp.policy {
		case PolicySticky:
			// Adopt the partner's mode only when the change marker is
			// recent; a full-record replay from a fresh subscription must
			// not move a client off its own chosen mode.
			if incoming.Mode == "" || incoming.ModeChangedAt == 0 {
				continue
			}
			age := s.clock.Now().UnixMilli() - incoming.ModeChangedAt
			if age < s.cfg.Window.Milliseconds() {
				s.local.Mode = incoming.Mode
				s.local.ModeChangedAt = incoming.ModeChangedAt
			}
		default:
			fp.apply(&s.local, incoming)
		}
	}
}

// Update applies a partial change: optimistically and synchronously to local
// state, then as a full-record write to the store. Store trouble is logged
// and the write dropped; the local view stays authoritative either way.
func (s *Store) Update(ctx context.Context, changes Changes) {
	s.mu.Lock()

	if changes.Mode != nil {
		s.local.Mode = *changes.Mode
		s.local.ModeChangedAt = s.clock.Now().UnixMilli()
	}
	if changes.Theme != nil {
		s.local.Theme = *changes.Theme
	}
	if changes.TimerSec != nil {
		s.local.TimerSec = *changes.TimerSec
	}
	if changes.Language != nil {
		s.local.Language = *changes.Language
	}
	if changes.Words != nil {
		s.local.Words = *changes.Words
	}
	if changes.StartedAt != nil {
		s.local.StartedAt = *changes.StartedAt
	}
	if changes.GameData != nil {
		if s.local.GameData == nil {
			s.local.GameData = models.GameData{}
		}
		for k, v := range changes.GameData {
			s.local.GameData[k] = v
		}
	}

	// Non-mode updates still carry this client's current mode and its
	// original change marker, so the store copy stays informative for
	// late joiners without forcing them out of their own mode.
	record := s.snapshotLocked()
	s.emitLocked()
	s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		log.Error().Err(err).Msg("marshal session record")
		return
	}
	if err := s.rt.Put(ctx, s.cfg.Key, data); err != nil {
		log.Error().Err(err).Msg("session write dropped")
	}
}

func (s *Store) emitLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Slow subscribers catch up on the next snapshot.
		}
	}
}

// Close stops the watch feed; subscriber channels close once the feed ends.
func (s *Store) Close() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		if err := w.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop session watch")
		}
	}
}

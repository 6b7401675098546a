package room

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/topic"
)

// Store owns every Room. All mutators are silent no-ops for unknown room ids;
// callers that need a room to exist check with Get first.
type Store interface {
	Create(scopeID string, participantIDs, topicLabels []string) Room
	Get(roomID string) (Room, bool)
	GetByScope(scopeID string) (Room, bool)
	List() []Room

	UpdateTopics(roomID string, labels []string)
	AddParticipant(roomID, personaID string)
	RemoveParticipant(roomID, personaID string)
	RecordTurn(roomID, personaID string)
	SetDominant(roomID, personaID string)

	Delete(roomID string) bool
	EvictStale(now time.Time) []string

	// TryAcquire takes the run lease of a room. A leased room is never
	// evicted. ok is false when the room is missing or already leased.
	TryAcquire(roomID string) (release func(), ok bool)
}

// Observer is notified after every applied mutation, outside the room lock.
// Notifications of one room may arrive out of order; Room.Version tells the
// newer snapshot apart. No update of a room is newer than its deletion.
type Observer interface {
	RoomUpdated(r Room)
	RoomDeleted(r Room, reason DeleteReason)
}

// DeleteReason tells observers why a room went away.
type DeleteReason string

const (
	DeleteExplicit DeleteReason = "deleted"
	DeleteEvicted  DeleteReason = "evicted"
)

// Config 房间存储配置
type Config struct {
	// 房间空闲多久后被回收
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 回收扫描间隔
	EvictInterval time.Duration `yaml:"evict_interval" json:"evict_interval"`

	// leaving 状态保留时长，之后物理删除
	RemovalGrace time.Duration `yaml:"removal_grace" json:"removal_grace"`

	// joining 状态自动转为 active 的延迟
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
}

// DefaultConfig 返回默认房间存储配置
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Minute,
		EvictInterval: 5 * time.Minute,
		RemovalGrace:  time.Second,
		SettleDelay:   2 * time.Second,
	}
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// WithIDGenerator overrides room id generation. Generated ids that collide
// with a live room are retried with a counter suffix.
func WithIDGenerator(gen func(scopeID string) string) Option {
	return func(s *MemoryStore) { s.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *MemoryStore) { s.observers = append(s.observers, o) }
}

// entry holds one room and its exclusive mutation lock.
type entry struct {
	mu      sync.Mutex
	room    Room
	timers  map[string]*pending
	deleted bool

	snap   atomic.Pointer[Room]
	leased atomic.Bool
}

type pending struct {
	timer *time.Timer
	seq   uint64
}

// MemoryStore is the in-process Store. Each room has its own mutex, so
// mutations on different rooms never contend; reads go through an atomically
// published snapshot and take no room lock.
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[string]*entry
	byScope map[string]string

	cfg       Config
	now       func() time.Time
	newID     func(scopeID string) string
	counter   atomic.Uint64
	timerSeq  atomic.Uint64
	observers []Observer
	logger    *zap.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(cfg Config, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		rooms:   make(map[string]*entry),
		byScope: make(map[string]string),
		cfg:     cfg,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	s.newID = s.defaultID
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "room_store"))
	return s
}

func (s *MemoryStore) defaultID(scopeID string) string {
	return fmt.Sprintf("%s_%d_%s", scopeID, s.counter.Add(1), uuid.NewString()[:8])
}

// =============================================================================
// Reads
// =============================================================================

func (s *MemoryStore) lookup(roomID string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

func (s *MemoryStore) Get(roomID string) (Room, bool) {
	e := s.lookup(roomID)
	if e == nil {
		return Room{}, false
	}
	snap := e.snap.Load()
	if snap == nil {
		return Room{}, false
	}
	return snap.clone(), true
}

func (s *MemoryStore) GetByScope(scopeID string) (Room, bool) {
	s.mu.RLock()
	roomID, ok := s.byScope[scopeID]
	s.mu.RUnlock()
	if !ok {
		return Room{}, false
	}
	return s.Get(roomID)
}

// List returns snapshots of all rooms ordered by creation time.
func (s *MemoryStore) List() []Room {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Room, 0, len(entries))
	for _, e := range entries {
		if snap := e.snap.Load(); snap != nil {
			out = append(out, snap.clone())
		}
	}
	sortRooms(out)
	return out
}

func sortRooms(rooms []Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
}

// =============================================================================
// Creation and deletion
// =============================================================================

func (s *MemoryStore) Create(scopeID string, participantIDs, topicLabels []string) Room {
	now := s.now()

	participants := make([]Participant, 0, len(participantIDs))
	seen := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, Participant{ID: id, Status: StatusActive, JoinedAt: now})
	}

	e := &entry{timers: make(map[string]*pending)}

	s.mu.Lock()
	roomID := s.newID(scopeID)
	for attempt := 0; ; attempt++ {
		if _, taken := s.rooms[roomID]; !taken {
			break
		}
		roomID = fmt.Sprintf("%s_%d", s.newID(scopeID), s.counter.Add(1))
		if attempt > 8 {
			roomID = fmt.Sprintf("%s_%s", scopeID, uuid.NewString())
		}
	}
	e.room = Room{
		ID:            roomID,
		ScopeID:       scopeID,
		Participants:  participants,
		CurrentTopics: topic.FromLabels(topicLabels),
		CreatedAt:     now,
		LastActivity:  now,
		Version:       1,
	}
	snap := e.room.clone()
	e.snap.Store(&snap)
	s.rooms[roomID] = e
	s.byScope[scopeID] = roomID
	s.mu.Unlock()

	s.logger.Info("room created",
		zap.String("room_id", roomID),
		zap.String("scope_id", scopeID),
		zap.Int("participants", len(participants)),
	)
	s.notifyUpdated(snap)
	return snap.clone()
}

// Delete removes a room and cancels its pending participant transitions.
func (s *MemoryStore) Delete(roomID string) bool {
	s.mu.Lock()
	e, ok := s.rooms[roomID]
	if ok {
		s.detachLocked(roomID, e)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	final := s.retire(e)
	s.logger.Info("room deleted", zap.String("room_id", roomID))
	s.notifyDeleted(final, DeleteExplicit)
	return true
}

// detachLocked removes e from the indexes. Caller holds s.mu.
func (s *MemoryStore) detachLocked(roomID string, e *entry) {
	delete(s.rooms, roomID)
	if snap := e.snap.Load(); snap != nil && s.byScope[snap.ScopeID] == roomID {
		delete(s.byScope, snap.ScopeID)
	}
}

// retire marks e deleted and stops its timers.
func (s *MemoryStore) retire(e *entry) Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = true
	e.room.Version++
	for key, p := range e.timers {
		p.timer.Stop()
		delete(e.timers, key)
	}
	return e.room.clone()
}

// EvictStale removes rooms idle for longer than the TTL. Rooms holding a run
// lease are skipped.
func (s *MemoryStore) EvictStale(now time.Time) []string {
	cutoff := now.Add(-s.cfg.TTL)

	s.mu.RLock()
	candidates := make(map[string]*entry)
	for id, e := range s.rooms {
		if snap := e.snap.Load(); snap != nil && snap.LastActivity.Before(cutoff) && !e.leased.Load() {
			candidates[id] = e
		}
	}
	s.mu.RUnlock()

	var evicted []string
	for id, e := range candidates {
		e.mu.Lock()
		stale := !e.deleted && e.room.LastActivity.Before(cutoff) && !e.leased.Load()
		e.mu.Unlock()
		if !stale {
			continue
		}

		s.mu.Lock()
		current, ok := s.rooms[id]
		if ok && current == e {
			s.detachLocked(id, e)
		}
		s.mu.Unlock()
		if !ok || current != e {
			continue
		}

		final := s.retire(e)
		evicted = append(evicted, id)
		s.notifyDeleted(final, DeleteEvicted)
	}

	if len(evicted) > 0 {
		sort.Strings(evicted)
		s.logger.Info("evicted stale rooms", zap.Strings("room_ids", evicted))
	}
	return evicted
}

// StartEvictor runs EvictStale every EvictInterval until ctx is done.
// The returned channel closes when the loop exits.
func (s *MemoryStore) StartEvictor(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	interval := s.cfg.EvictInterval
	if interval <= 0 {
		interval = DefaultConfig().EvictInterval
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.EvictStale(s.now())
			}
		}
	}()
	return done
}

func (s *MemoryStore) TryAcquire(roomID string) (func(), bool) {
	e := s.lookup(roomID)
	if e == nil {
		return nil, false
	}
	if !e.leased.CompareAndSwap(false, true) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { e.leased.Store(false) }) }, true
}

// =============================================================================
// Mutators
// =============================================================================

// mutate runs fn under the room lock and publishes a new snapshot when fn
// reports a change.
func (s *MemoryStore) mutate(roomID string, fn func(e *entry, r *Room) bool) {
	e := s.lookup(roomID)
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.deleted || !fn(e, &e.room) {
		e.mu.Unlock()
		return
	}
	s.heal(&e.room)
	e.room.Version++
	snap := e.room.clone()
	e.snap.Store(&snap)
	e.mu.Unlock()

	s.notifyUpdated(snap)
}

// heal clears a dominant reference that no longer points at an active
// participant.
func (s *MemoryStore) heal(r *Room) {
	if r.Dominant == "" {
		return
	}
	if i := r.index(r.Dominant); i >= 0 && r.Participants[i].Status == StatusActive {
		return
	}
	s.logger.Warn("clearing invalid dominant participant",
		zap.String("room_id", r.ID),
		zap.String("dominant", r.Dominant),
	)
	r.Dominant = ""
	r.TurnsSinceDominantChange = 0
}

func (s *MemoryStore) UpdateTopics(roomID string, labels []string) {
	s.mutate(roomID, func(_ *entry, r *Room) bool {
		r.PreviousTopics = r.CurrentTopics
		r.CurrentTopics = topic.FromLabels(labels)
		r.LastActivity = s.now()
		return true
	})
}

func (s *MemoryStore) AddParticipant(roomID, personaID string) {
	s.mutate(roomID, func(e *entry, r *Room) bool {
		now := s.now()
		if i := r.index(personaID); i >= 0 {
			p := &r.Participants[i]
			p.Status = StatusActive
			p.JoinedAt = now
			s.cancelLocked(e, removeKey(personaID))
			s.cancelLocked(e, settleKey(personaID))
			s.logger.Debug("participant rejoined", zap.String("room_id", roomID), zap.String("persona_id", personaID))
		} else {
			r.Participants = append(r.Participants, Participant{ID: personaID, Status: StatusJoining, JoinedAt: now})
			s.scheduleLocked(e, roomID, settleKey(personaID), s.cfg.SettleDelay, func(r *Room) bool {
				if i := r.index(personaID); i >= 0 && r.Participants[i].Status == StatusJoining {
					r.Participants[i].Status = StatusActive
					return true
				}
				return false
			})
		}
		r.LastActivity = now
		return true
	})
}

func (s *MemoryStore) RemoveParticipant(roomID, personaID string) {
	s.mutate(roomID, func(e *entry, r *Room) bool {
		i := r.index(personaID)
		if i < 0 {
			return false
		}
		r.Participants[i].Status = StatusLeaving
		s.cancelLocked(e, settleKey(personaID))

		if r.Dominant == personaID {
			r.Dominant = successor(*r)
			r.TurnsSinceDominantChange = 0
			s.logger.Info("dominance reassigned on removal",
				zap.String("room_id", roomID),
				zap.String("removed", personaID),
				zap.String("dominant", r.Dominant),
			)
		}

		if _, scheduled := e.timers[removeKey(personaID)]; !scheduled {
			s.scheduleLocked(e, roomID, removeKey(personaID), s.cfg.RemovalGrace, func(r *Room) bool {
				i := r.index(personaID)
				if i < 0 || r.Participants[i].Status != StatusLeaving {
					return false
				}
				r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
				return true
			})
		}
		r.LastActivity = s.now()
		return true
	})
}

// successor picks the active participant with the most messages, ties broken
// by earliest JoinedAt. Returns "" when nobody is active.
func successor(r Room) string {
	best := -1
	for i, p := range r.Participants {
		if p.Status != StatusActive {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := r.Participants[best]
		if p.MessageCount > b.MessageCount ||
			(p.MessageCount == b.MessageCount && p.JoinedAt.Before(b.JoinedAt)) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return r.Participants[best].ID
}

func (s *MemoryStore) RecordTurn(roomID, personaID string) {
	s.mutate(roomID, func(e *entry, r *Room) bool {
		i := r.index(personaID)
		if i < 0 {
			return false
		}
		now := s.now()
		p := &r.Participants[i]
		p.LastSpokeAt = now
		p.MessageCount++
		if p.Status == StatusJoining {
			p.Status = StatusActive
			s.cancelLocked(e, settleKey(personaID))
		}
		r.TotalTurns++
		r.TurnsSinceDominantChange++
		r.LastActivity = now
		return true
	})
}

func (s *MemoryStore) SetDominant(roomID, personaID string) {
	s.mutate(roomID, func(_ *entry, r *Room) bool {
		if r.Dominant == personaID {
			return false
		}
		if !r.IsActive(personaID) {
			s.logger.Debug("ignoring dominance for inactive participant",
				zap.String("room_id", roomID),
				zap.String("persona_id", personaID),
			)
			return false
		}
		r.Dominant = personaID
		r.TurnsSinceDominantChange = 0
		return true
	})
}

// =============================================================================
// Timers
// =============================================================================

func removeKey(personaID string) string { return "remove:" + personaID }
func settleKey(personaID string) string { return "settle:" + personaID }

// scheduleLocked arms a timer that applies fn under the room lock. A timer
// that was cancelled, replaced or outlived its room does nothing. Caller
// holds e.mu.
func (s *MemoryStore) scheduleLocked(e *entry, roomID, key string, delay time.Duration, fn func(r *Room) bool) {
	s.cancelLocked(e, key)
	seq := s.timerSeq.Add(1)
	p := &pending{seq: seq}
	p.timer = time.AfterFunc(delay, func() {
		s.mutate(roomID, func(e *entry, r *Room) bool {
			cur, ok := e.timers[key]
			if !ok || cur.seq != seq {
				return false
			}
			delete(e.timers, key)
			return fn(r)
		})
	})
	e.timers[key] = p
}

// cancelLocked stops and forgets a pending timer. Caller holds e.mu.
func (s *MemoryStore) cancelLocked(e *entry, key string) {
	if p, ok := e.timers[key]; ok {
		p.timer.Stop()
		delete(e.timers, key)
	}
}

// pendingTimers reports how many timers a room has armed.
func (s *MemoryStore) pendingTimers(roomID string) int {
	e := s.lookup(roomID)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// =============================================================================
// Observers
// =============================================================================

func (s *MemoryStore) notifyUpdated(r Room) {
	for _, o := range s.observers {
		o.RoomUpdated(r.clone())
	}
}

func (s *MemoryStore) notifyDeleted(r Room, reason DeleteReason) {
	for _, o := range s.observers {
		o.RoomDeleted(r.clone(), reason)
	}
}

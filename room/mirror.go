package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const roomIndexSet = "rooms"

// SnapshotCache is the subset of the cache manager the mirror writes to.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	AddMember(ctx context.Context, set string, members ...string) error
	RemoveMember(ctx context.Context, set string, members ...string) error
	Members(ctx context.Context, set string) ([]string, error)
}

// RedisMirror is an Observer that writes every room snapshot to Redis so
// other processes can read room status. Notifications return at once; each
// room has at most one writer goroutine, which writes the newest pending
// snapshot and skips the ones it superseded. Writes are best effort: failures
// are logged and never reach the store.
type RedisMirror struct {
	cache   SnapshotCache
	ttl     time.Duration
	timeout time.Duration
	seq     *Sequencer
	logger  *zap.Logger

	mu       sync.Mutex
	slots    map[string]*mirrorSlot
	inflight int
	idle     chan struct{}
}

// mirrorSlot is the pending write of a room whose writer is running.
type mirrorSlot struct {
	pending *Room
	deleted bool
	reason  DeleteReason
}

// NewRedisMirror creates a mirror whose keys expire after ttl without updates.
func NewRedisMirror(cache SnapshotCache, ttl time.Duration, logger *zap.Logger) *RedisMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMirror{
		cache:   cache,
		ttl:     ttl,
		timeout: 2 * time.Second,
		seq:     NewSequencer(ttl),
		logger:  logger.With(zap.String("component", "room_mirror")),
		slots:   make(map[string]*mirrorSlot),
	}
}

func snapshotKey(roomID string) string { return "room:" + roomID }
func scopeKey(scopeID string) string   { return "scope:" + scopeID }

func (m *RedisMirror) RoomUpdated(r Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seq.Update(r) {
		m.logger.Debug("skipping stale room snapshot", zap.String("room_id", r.ID), zap.Uint64("version", r.Version))
		return
	}
	m.enqueueLocked(r, false, "")
}

func (m *RedisMirror) RoomDeleted(r Room, reason DeleteReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seq.Delete(r) {
		return
	}
	m.enqueueLocked(r, true, reason)
}

// enqueueLocked replaces the room's pending write, starting a writer when
// none runs. Caller holds m.mu.
func (m *RedisMirror) enqueueLocked(r Room, deleted bool, reason DeleteReason) {
	if slot, running := m.slots[r.ID]; running {
		slot.pending, slot.deleted, slot.reason = &r, deleted, reason
		return
	}
	slot := &mirrorSlot{pending: &r, deleted: deleted, reason: reason}
	m.slots[r.ID] = slot
	if m.inflight == 0 {
		m.idle = make(chan struct{})
	}
	m.inflight++
	go m.drain(r.ID, slot)
}

func (m *RedisMirror) drain(roomID string, slot *mirrorSlot) {
	for {
		m.mu.Lock()
		if slot.pending == nil {
			delete(m.slots, roomID)
			m.inflight--
			if m.inflight == 0 {
				close(m.idle)
			}
			m.mu.Unlock()
			return
		}
		r, deleted, reason := *slot.pending, slot.deleted, slot.reason
		slot.pending = nil
		m.mu.Unlock()

		if deleted {
			m.remove(r, reason)
		} else {
			m.write(r)
		}
	}
}

func (m *RedisMirror) write(r Room) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.cache.SetJSON(ctx, snapshotKey(r.ID), r, m.ttl); err != nil {
		m.logger.Warn("mirror room snapshot failed", zap.String("room_id", r.ID), zap.Error(err))
		return
	}
	if err := m.cache.Set(ctx, scopeKey(r.ScopeID), r.ID, m.ttl); err != nil {
		m.logger.Warn("mirror scope index failed", zap.String("room_id", r.ID), zap.Error(err))
	}
	if err := m.cache.AddMember(ctx, roomIndexSet, r.ID); err != nil {
		m.logger.Warn("mirror room index failed", zap.String("room_id", r.ID), zap.Error(err))
	}
}

func (m *RedisMirror) remove(r Room, reason DeleteReason) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	keys := []string{snapshotKey(r.ID)}
	if id, err := m.cache.Get(ctx, scopeKey(r.ScopeID)); err == nil && id == r.ID {
		keys = append(keys, scopeKey(r.ScopeID))
	}
	if err := m.cache.Delete(ctx, keys...); err != nil {
		m.logger.Warn("mirror room delete failed", zap.String("room_id", r.ID), zap.Error(err))
	}
	if err := m.cache.RemoveMember(ctx, roomIndexSet, r.ID); err != nil {
		m.logger.Warn("mirror room index delete failed", zap.String("room_id", r.ID), zap.Error(err))
	}
	m.logger.Debug("room mirror removed", zap.String("room_id", r.ID), zap.String("reason", string(reason)))
}

// Flush waits until every accepted notification has been written or ctx is
// done.
func (m *RedisMirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	if m.inflight == 0 {
		m.mu.Unlock()
		return nil
	}
	idle := m.idle
	m.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes. The cache must stay open until it returns.
func (m *RedisMirror) Close(ctx context.Context) error {
	if err := m.Flush(ctx); err != nil {
		m.logger.Warn("room mirror closed with pending writes", zap.Error(err))
		return err
	}
	return nil
}

// Load reads a mirrored room snapshot.
func (m *RedisMirror) Load(ctx context.Context, roomID string) (Room, error) {
	var r Room
	if err := m.cache.GetJSON(ctx, snapshotKey(roomID), &r); err != nil {
		return Room{}, err
	}
	return r, nil
}

// LoadByScope reads the mirrored room bound to scopeID.
func (m *RedisMirror) LoadByScope(ctx context.Context, scopeID string) (Room, error) {
	id, err := m.cache.Get(ctx, scopeKey(scopeID))
	if err != nil {
		return Room{}, err
	}
	return m.Load(ctx, id)
}

// List returns every mirrored room that has not expired. Index entries whose
// snapshot expired are pruned.
func (m *RedisMirror) List(ctx context.Context) ([]Room, error) {
	ids, err := m.cache.Members(ctx, roomIndexSet)
	if err != nil {
		return nil, err
	}
	out := make([]Room, 0, len(ids))
	var expired []string
	for _, id := range ids {
		r, err := m.Load(ctx, id)
		if err != nil {
			expired = append(expired, id)
			continue
		}
		out = append(out, r)
	}
	if len(expired) > 0 {
		if err := m.cache.RemoveMember(ctx, roomIndexSet, expired...); err != nil {
			m.logger.Warn("prune room index failed", zap.Error(err))
		}
	}
	sortRooms(out)
	return out, nil
}

var _ Observer = (*RedisMirror)(nil)

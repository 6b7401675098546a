package room

import (
	"sync"
	"time"
)

const defaultTombstoneTTL = 5 * time.Minute

type seqState struct {
	version   uint64
	deletedAt time.Time
}

// Sequencer orders the notifications an Observer receives. It drops a
// snapshot older than the newest one seen for its room, and every update that
// arrives after the room's deletion. Deleted rooms are remembered for a
// while so late updates cannot bring them back.
type Sequencer struct {
	mu           sync.Mutex
	rooms        map[string]*seqState
	tombstoneTTL time.Duration
	now          func() time.Time
}

// NewSequencer creates a Sequencer. A non-positive tombstoneTTL uses five
// minutes.
func NewSequencer(tombstoneTTL time.Duration) *Sequencer {
	if tombstoneTTL <= 0 {
		tombstoneTTL = defaultTombstoneTTL
	}
	return &Sequencer{
		rooms:        make(map[string]*seqState),
		tombstoneTTL: tombstoneTTL,
		now:          time.Now,
	}
}

// Update reports whether r is at least as new as everything seen for its
// room and the room is not deleted.
func (s *Sequencer) Update(r Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[r.ID]
	if !ok {
		s.rooms[r.ID] = &seqState{version: r.Version}
		return true
	}
	if !st.deletedAt.IsZero() || r.Version < st.version {
		return false
	}
	st.version = r.Version
	return true
}

// Delete reports whether this is the first deletion seen for r's room.
func (s *Sequencer) Delete(r Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	st, ok := s.rooms[r.ID]
	if !ok {
		st = &seqState{}
		s.rooms[r.ID] = st
	}
	if !st.deletedAt.IsZero() {
		return false
	}
	st.deletedAt = now
	st.version = max(st.version, r.Version)
	return true
}

// Len reports how many rooms are tracked, tombstones included.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Sequencer) pruneLocked(now time.Time) {
	for id, st := range s.rooms {
		if !st.deletedAt.IsZero() && now.Sub(st.deletedAt) > s.tombstoneTTL {
			delete(s.rooms, id)
		}
	}
}

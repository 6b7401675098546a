package room

import (
	"time"

	"github.com/BaSui01/agentroom/topic"
)

// Status is a participant's presence state. Removed participants are
// absent from Room.Participants.
type Status string

const (
	StatusJoining Status = "joining"
	StatusActive  Status = "active"
	StatusLeaving Status = "leaving"
)

// Participant is one persona's presence in a room.
type Participant struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSpokeAt  time.Time `json:"last_spoke_at,omitempty"`
	MessageCount int       `json:"message_count"`
}

// Room is a snapshot of one conversation room's scheduling state.
// Values handed out by a Store are copies; mutate only through the Store.
type Room struct {
	ID                       string        `json:"id"`
	ScopeID                  string        `json:"scope_id"`
	Participants             []Participant `json:"participants"`
	CurrentTopics            topic.Vector  `json:"current_topics"`
	PreviousTopics           topic.Vector  `json:"previous_topics,omitempty"`
	Dominant                 string        `json:"dominant,omitempty"`
	TurnsSinceDominantChange int           `json:"turns_since_dominant_change"`
	TotalTurns               int           `json:"total_turns"`
	CreatedAt                time.Time     `json:"created_at"`
	LastActivity             time.Time     `json:"last_activity"`

	// Version increases with every applied mutation of the room, including
	// its deletion. Observers use it to order snapshots.
	Version uint64 `json:"version"`
}

// Participant returns the participant with id.
func (r Room) Participant(id string) (Participant, bool) {
	if i := r.index(id); i >= 0 {
		return r.Participants[i], true
	}
	return Participant{}, false
}

// Has reports whether id is present in any status.
func (r Room) Has(id string) bool {
	return r.index(id) >= 0
}

// Active returns the active participants in room order.
func (r Room) Active() []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.Status == StatusActive {
			out = append(out, p)
		}
	}
	return out
}

// ActiveIDs returns the ids of active participants in room order.
func (r Room) ActiveIDs() []string {
	active := r.Active()
	out := make([]string, len(active))
	for i, p := range active {
		out[i] = p.ID
	}
	return out
}

// IsActive reports whether id is present with StatusActive.
func (r Room) IsActive(id string) bool {
	p, ok := r.Participant(id)
	return ok && p.Status == StatusActive
}

// CountWithStatus counts participants in any of the given statuses.
func (r Room) CountWithStatus(statuses ...Status) int {
	n := 0
	for _, p := range r.Participants {
		for _, s := range statuses {
			if p.Status == s {
				n++
				break
			}
		}
	}
	return n
}

func (r Room) index(id string) int {
	for i, p := range r.Participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// clone deep-copies the slices so the result shares no storage with r.
func (r Room) clone() Room {
	out := r
	out.Participants = append([]Participant(nil), r.Participants...)
	out.CurrentTopics = r.CurrentTopics.Clone()
	out.PreviousTopics = r.PreviousTopics.Clone()
	return out
}

// Turn is one recorded utterance.
type Turn struct {
	PersonaID string    `json:"persona_id"`
	Text      string    `json:"text"`
	Thinking  string    `json:"thinking,omitempty"`
	At        time.Time `json:"at"`
}

// History is the in-memory conversation history of a run, oldest first.
type History []Turn

// LastIndexOf returns the index of personaID's most recent turn, or -1.
func (h History) LastIndexOf(personaID string) int {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].PersonaID == personaID {
			return i
		}
	}
	return -1
}

// Count returns how many turns personaID has in h.
func (h History) Count(personaID string) int {
	n := 0
	for _, t := range h {
		if t.PersonaID == personaID {
			n++
		}
	}
	return n
}

// Counts returns turn counts per persona.
func (h History) Counts() map[string]int {
	m := make(map[string]int)
	for _, t := range h {
		m[t.PersonaID]++
	}
	return m
}

// Last returns the most recent turn.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}

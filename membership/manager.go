package membership

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/rng"
	"github.com/BaSui01/agentroom/room"
)

// Kind is the membership change an Event carries.
type Kind string

const (
	KindJoin  Kind = "join"
	KindLeave Kind = "leave"
)

// Event is one membership change to execute. Introduction is filled in by
// Execute for join events.
type Event struct {
	RoomID       string    `json:"room_id"`
	PersonaID    string    `json:"persona_id"`
	Kind         Kind      `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
	Introduction string    `json:"introduction,omitempty"`
}

// Policy 成员变更策略
type Policy struct {
	// 房间 active + joining 参与者上限，达到后不再产生加入事件
	MaxParticipants int `yaml:"max_participants" json:"max_participants"`

	// 每个候选 Persona 的加入概率
	JoinProbability float64 `yaml:"join_probability" json:"join_probability"`

	// 是否允许 Persona 自主离开
	AutonomousLeave bool `yaml:"autonomous_leave" json:"autonomous_leave"`

	// 自主离开概率，仅在 AutonomousLeave 开启时生效
	LeaveProbability float64 `yaml:"leave_probability" json:"leave_probability"`

	// 并发执行事件的上限
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// DefaultPolicy 返回默认成员变更策略
func DefaultPolicy() Policy {
	return Policy{
		MaxParticipants:  6,
		JoinProbability:  0.5,
		AutonomousLeave:  false,
		LeaveProbability: 0.1,
		Concurrency:      4,
	}
}

// Introducer produces the greeting of a joining persona. It must not fail;
// generation.Resilient satisfies it.
type Introducer interface {
	Introduction(ctx context.Context, p persona.Descriptor, topics []string) string
}

// Manager decides and applies membership changes.
type Manager struct {
	store     room.Store
	intro     Introducer
	directory persona.Directory
	policy    Policy
	rand      rng.Source
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand sets the random source for the join and leave draws.
func WithRand(src rng.Source) Option {
	return func(m *Manager) {
		if src != nil {
			m.rand = src
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager. directory may be nil, in which case joining
// personas are introduced by id only.
func NewManager(store room.Store, intro Introducer, directory persona.Directory, policy Policy, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		intro:     intro,
		directory: directory,
		policy:    policy,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rand == nil {
		m.rand = rng.NewTimeSeeded()
	}
	m.logger = m.logger.With(zap.String("component", "membership"))
	return m
}

// Policy returns the active policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Check draws the membership events for r. knownPersonaIDs is every persona
// that could take part; ids already in the room in any status are skipped.
func (m *Manager) Check(r room.Room, knownPersonaIDs []string) []Event {
	now := m.now()
	var events []Event

	if r.CountWithStatus(room.StatusActive, room.StatusJoining) < m.policy.MaxParticipants {
		seen := make(map[string]struct{}, len(knownPersonaIDs))
		for _, id := range knownPersonaIDs {
			if _, dup := seen[id]; dup || id == "" || r.Has(id) {
				continue
			}
			seen[id] = struct{}{}
			if m.rand.Float64() < m.policy.JoinProbability {
				events = append(events, Event{RoomID: r.ID, PersonaID: id, Kind: KindJoin, Timestamp: now})
			}
		}
	}

	if m.policy.AutonomousLeave {
		for _, id := range r.ActiveIDs() {
			if id == r.Dominant {
				continue
			}
			if m.rand.Float64() < m.policy.LeaveProbability {
				events = append(events, Event{RoomID: r.ID, PersonaID: id, Kind: KindLeave, Timestamp: now})
			}
		}
	}

	if len(events) > 0 {
		m.logger.Debug("membership events drawn", zap.String("room_id", r.ID), zap.Int("count", len(events)))
	}
	return events
}

// Execute applies events concurrently and returns them with introductions
// filled in, in input order. A failure in one event never affects another.
func (m *Manager) Execute(ctx context.Context, events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)

	g, gctx := errgroup.WithContext(ctx)
	if m.policy.Concurrency > 0 {
		g.SetLimit(m.policy.Concurrency)
	}
	for i := range out {
		g.Go(func() error {
			m.apply(gctx, &out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (m *Manager) apply(ctx context.Context, ev *Event) {
	switch ev.Kind {
	case KindJoin:
		m.store.AddParticipant(ev.RoomID, ev.PersonaID)
		var topics []string
		if r, ok := m.store.Get(ev.RoomID); ok {
			topics = r.CurrentTopics.Labels()
		}
		ev.Introduction = m.intro.Introduction(ctx, m.describe(ctx, ev.PersonaID), topics)
		m.logger.Info("persona joined",
			zap.String("room_id", ev.RoomID),
			zap.String("persona_id", ev.PersonaID),
		)
	case KindLeave:
		m.store.RemoveParticipant(ev.RoomID, ev.PersonaID)
		m.logger.Info("persona left",
			zap.String("room_id", ev.RoomID),
			zap.String("persona_id", ev.PersonaID),
		)
	default:
		m.logger.Warn("unknown membership event", zap.String("kind", string(ev.Kind)))
	}
}

func (m *Manager) describe(ctx context.Context, id string) persona.Descriptor {
	if m.directory != nil {
		d, err := m.directory.Get(ctx, id)
		if err == nil && d != nil {
			return *d
		}
		m.logger.Debug("persona lookup failed", zap.String("persona_id", id), zap.Error(err))
	}
	return persona.Descriptor{ID: id, Name: id}
}

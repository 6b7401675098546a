package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentroom/broadcast"
	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/handover"
	"github.com/BaSui01/agentroom/membership"
	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/rng"
	"github.com/BaSui01/agentroom/room"
	"github.com/BaSui01/agentroom/speaker"
	"github.com/BaSui01/agentroom/testutil"
	"github.com/BaSui01/agentroom/testutil/fixtures"
	"github.com/BaSui01/agentroom/testutil/mocks"
	"github.com/BaSui01/agentroom/types"
)

type harness struct {
	store *room.MemoryStore
	gen   *mocks.MockGenerator
	sink  *mocks.RecordingSink
	orch  *Orchestrator
}

type harnessOptions struct {
	turnRand      float64
	turnLimit     int
	joinProb      float64
	text          TextSource
	generatorErrs error

	// wrapStore decorates the store the orchestrator sees.
	wrapStore func(room.Store) room.Store
}

func newHarness(t *testing.T, ho harnessOptions) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store := room.NewMemoryStore(room.Config{
		TTL:           time.Hour,
		EvictInterval: time.Hour,
		RemovalGrace:  time.Hour,
		SettleDelay:   time.Hour,
	}, room.WithLogger(logger))

	dir := fixtures.Directory()
	idx := persona.NewIndex(fixtures.Personas())
	affinity := persona.InterestAffinity(idx.Lookup(), persona.UniformAffinity(0))

	gen := mocks.NewMockGenerator()
	if ho.generatorErrs != nil {
		gen.WithError(ho.generatorErrs)
	}
	resilient := generation.NewResilient(gen, generation.ResilientConfig{MaxRetries: 0}, logger)

	text := ho.text
	if text == nil {
		text = resilient
	}

	hcfg := handover.DefaultConfig()
	if ho.turnLimit > 0 {
		hcfg.TurnLimit = ho.turnLimit
	}

	policy := membership.DefaultPolicy()
	policy.JoinProbability = ho.joinProb

	var orchStore room.Store = store
	if ho.wrapStore != nil {
		orchStore = ho.wrapStore(store)
	}

	sink := mocks.NewRecordingSink()
	orch := New(
		orchStore,
		// u = 0 always picks the first active participant with any weight
		speaker.NewSelector(affinity, idx.Lookup(), speaker.WithRand(rng.NewSequence(0)), speaker.WithLogger(logger)),
		handover.NewManager(affinity, hcfg, logger),
		membership.NewManager(store, resilient, dir, policy, membership.WithRand(rng.NewSequence(0.5)), membership.WithLogger(logger)),
		text,
		Config{MinTurns: 3, MaxTurns: 5},
		WithDirectory(dir),
		WithSink(sink),
		WithRand(rng.NewSequence(ho.turnRand)),
		WithLogger(logger),
	)
	return &harness{store: store, gen: gen, sink: sink, orch: orch}
}

func travelTrigger() Trigger {
	return Trigger{
		ScopeID:      "post-1",
		ScopeContent: "Just got back from Lisbon!",
		TopicLabels:  fixtures.TravelTopics,
		Participants: []string{"alice", "bob"},
	}
}

func TestRun_CreatesRoomAndRunsTurnBudget(t *testing.T) {
	tests := []struct {
		name     string
		turnRand float64
		want     int
	}{
		{"minimum", 0, 3},
		{"middle", 0.5, 4},
		{"maximum", 0.99, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{turnRand: tt.turnRand, turnLimit: 100})

			res, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
			require.NoError(t, err)
			assert.False(t, res.Stopped)
			require.Len(t, res.Messages, tt.want)

			r, ok := h.store.GetByScope("post-1")
			require.True(t, ok)
			assert.Equal(t, res.RoomID, r.ID)
			assert.Equal(t, tt.want, r.TotalTurns)
			assert.Equal(t, "alice", r.Dominant, "first speaker becomes dominant")

			for _, m := range res.Messages {
				assert.Equal(t, "alice", m.PersonaID)
				assert.Equal(t, "Mock thinking", m.Thinking)
				assert.Equal(t, ExpandedThinking, m.ExpandedInfoType)
				assert.NotEmpty(t, m.Text)
			}
			assert.Equal(t, tt.want, h.gen.CallCount(generation.KindDialogue))
		})
	}
}

func TestRun_PassesGrowingHistoryToGenerator(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})
	tr := travelTrigger()
	tr.LastMessage = "Anyone been to Portugal?"
	tr.LastSpeakerID = "user-42"

	_, err := h.orch.Run(testutil.TestContext(t), tr)
	require.NoError(t, err)

	var dialogue []mocks.MockGeneratorCall
	for _, c := range h.gen.Calls() {
		if c.Kind == generation.KindDialogue {
			dialogue = append(dialogue, c)
		}
	}
	require.Len(t, dialogue, 3)
	for i, c := range dialogue {
		assert.Len(t, c.History, i+1)
	}
	assert.Equal(t, generation.Line{Speaker: "user-42", Text: "Anyone been to Portugal?"}, dialogue[0].History[0])
	assert.Equal(t, "Alice", dialogue[2].History[2].Speaker)
}

func TestRun_ReusesRoomAndUpdatesTopics(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})
	ctx := testutil.TestContext(t)

	first, err := h.orch.Run(ctx, travelTrigger())
	require.NoError(t, err)

	tr := travelTrigger()
	tr.TopicLabels = fixtures.EmotionTopics
	tr.Participants = []string{"carol"}
	second, err := h.orch.Run(ctx, tr)
	require.NoError(t, err)

	assert.Equal(t, first.RoomID, second.RoomID)
	r, ok := h.store.Get(first.RoomID)
	require.True(t, ok)
	assert.Equal(t, []string{"emotion"}, r.CurrentTopics.Labels())
	assert.Equal(t, []string{"travel", "food"}, r.PreviousTopics.Labels())
	assert.False(t, r.Has("carol"), "participants only seed new rooms")
	assert.Equal(t, 6, r.TotalTurns)
}

func TestRun_SameTopicsKeepPreviousTopics(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})
	ctx := testutil.TestContext(t)

	_, err := h.orch.Run(ctx, travelTrigger())
	require.NoError(t, err)
	_, err = h.orch.Run(ctx, travelTrigger())
	require.NoError(t, err)

	r, ok := h.store.GetByScope("post-1")
	require.True(t, ok)
	assert.Empty(t, r.PreviousTopics)
}

func TestRun_TurnLimitHandover(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 2})

	res, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
	require.NoError(t, err)

	require.Len(t, res.Handovers, 1)
	assert.Equal(t, Handover{Turn: 2, From: "alice", To: "bob", Reason: handover.ReasonTurnLimit}, res.Handovers[0])
	assert.Equal(t, ExpandedHandover, res.Messages[1].ExpandedInfoType)
	assert.Equal(t, ExpandedThinking, res.Messages[2].ExpandedInfoType)

	r, _ := h.store.Get(res.RoomID)
	assert.Equal(t, "bob", r.Dominant)
	assert.Equal(t, 1, r.TurnsSinceDominantChange)
	assert.Len(t, h.sink.OfType(broadcast.EventHandover), 1)
}

func TestRun_TopicShiftHandover(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})
	ctx := testutil.TestContext(t)

	_, err := h.orch.Run(ctx, travelTrigger())
	require.NoError(t, err)

	tr := travelTrigger()
	tr.TopicLabels = fixtures.EmotionTopics
	res, err := h.orch.Run(ctx, tr)
	require.NoError(t, err)

	require.Len(t, res.Handovers, 1, "a settled topic shift does not hand over again")
	assert.Equal(t, Handover{Turn: 1, From: "alice", To: "bob", Reason: handover.ReasonTopicShift}, res.Handovers[0])

	r, _ := h.store.Get(res.RoomID)
	assert.Equal(t, "bob", r.Dominant)
}

func TestRun_NewcomersJoinAfterTurns(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100, joinProb: 1})

	res, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	for i, id := range []string{"carol", "dave"} {
		assert.Equal(t, id, res.Events[i].PersonaID)
		assert.Equal(t, membership.KindJoin, res.Events[i].Kind)
		assert.Equal(t, "Mock introduction", res.Events[i].Introduction)
	}

	r, _ := h.store.Get(res.RoomID)
	p, ok := r.Participant("dave")
	require.True(t, ok)
	assert.Equal(t, room.StatusJoining, p.Status)
	assert.Len(t, h.sink.OfType(broadcast.EventMembership), 2)
}

func TestRun_NoJoinsWhenProbabilityZero(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})

	res, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}

func TestRun_FallbackTextOnGeneratorFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100, generatorErrs: errors.New("provider down")})

	res, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	for _, m := range res.Messages {
		assert.Equal(t, generation.FallbackDialogue, m.Text)
		assert.Equal(t, generation.FallbackThinking, m.Thinking)
	}
}

func TestRun_EmptyRoomEndsEarly(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})
	tr := travelTrigger()
	tr.Participants = nil

	res, err := h.orch.Run(testutil.TestContext(t), tr)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Empty(t, res.Messages)
	assert.Empty(t, res.Events)
}

func TestRun_EmptyRoomStillGainsMembers(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100, joinProb: 1})
	tr := travelTrigger()
	tr.Participants = nil

	res, err := h.orch.Run(testutil.TestContext(t), tr)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Empty(t, res.Messages)

	require.Len(t, res.Events, 4)
	for i, id := range []string{"alice", "bob", "carol", "dave"} {
		assert.Equal(t, id, res.Events[i].PersonaID)
		assert.Equal(t, membership.KindJoin, res.Events[i].Kind)
	}

	r, ok := h.store.Get(res.RoomID)
	require.True(t, ok)
	assert.Equal(t, 4, r.CountWithStatus(room.StatusJoining))
	assert.Len(t, h.sink.OfType(broadcast.EventMembership), 4)
}

func TestRun_StopSkipsMembership(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100, joinProb: 1})
	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	cancel()

	res, err := h.orch.Run(ctx, travelTrigger())
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Empty(t, res.Events)
}

func TestRun_PublishesEnvelopesInOrder(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})

	_, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
	require.NoError(t, err)

	var got []broadcast.EventType
	for _, e := range h.sink.Envelopes() {
		got = append(got, e.Type)
		assert.Equal(t, "post-1", e.ScopeID)
	}
	assert.Equal(t, []broadcast.EventType{
		broadcast.EventRunStarted,
		broadcast.EventMessage,
		broadcast.EventMessage,
		broadcast.EventMessage,
		broadcast.EventRunEnded,
	}, got)
}

func TestRun_RejectsSecondRunForLeasedRoom(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})
	r := h.store.Create("post-1", []string{"alice"}, nil)

	release, ok := h.store.TryAcquire(r.ID)
	require.True(t, ok)
	defer release()

	_, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunInProgress)
}

// vanishingStore deletes the room right before the lease is taken, as a
// concurrent DeleteScope or eviction would.
type vanishingStore struct {
	room.Store
	times int
	calls int
}

func (s *vanishingStore) TryAcquire(roomID string) (func(), bool) {
	s.calls++
	if s.calls <= s.times {
		s.Store.Delete(roomID)
	}
	return s.Store.TryAcquire(roomID)
}

func TestRun_RoomDeletedBeforeLease(t *testing.T) {
	t.Run("prepared again", func(t *testing.T) {
		vs := &vanishingStore{times: 1}
		h := newHarness(t, harnessOptions{turnLimit: 100, wrapStore: func(s room.Store) room.Store {
			vs.Store = s
			return vs
		}})

		res, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
		require.NoError(t, err)
		assert.Equal(t, 2, vs.calls)
		assert.Len(t, res.Messages, 3)

		r, ok := h.store.GetByScope("post-1")
		require.True(t, ok)
		assert.Equal(t, r.ID, res.RoomID)
	})

	t.Run("still missing", func(t *testing.T) {
		vs := &vanishingStore{times: 2}
		h := newHarness(t, harnessOptions{turnLimit: 100, wrapStore: func(s room.Store) room.Store {
			vs.Store = s
			return vs
		}})

		_, err := h.orch.Run(testutil.TestContext(t), travelTrigger())
		require.Error(t, err)
		assert.Equal(t, types.ErrRoomNotFound, types.GetErrorCode(err))
		assert.NotErrorIs(t, err, ErrRunInProgress)
	})
}

func TestRun_DifferentRoomsRunConcurrently(t *testing.T) {
	h := newHarness(t, harnessOptions{turnLimit: 100})
	ctx := testutil.TestContext(t)

	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range []string{"post-1", "post-2", "post-3"} {
		g.Go(func() error {
			tr := travelTrigger()
			tr.ScopeID = scope
			_, err := h.orch.Run(gctx, tr)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, h.store.List(), 3)
}

// gatedText blocks the first dialogue call until release is closed.
type gatedText struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedText() *gatedText {
	return &gatedText{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedText) Thinking(context.Context, persona.Descriptor, []string, string, string) string {
	return "hmm"
}

func (g *gatedText) DialogueTurn(context.Context, persona.Descriptor, string, []generation.Line) string {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return "hello"
}

func TestDeleteScope_StopsRunAtTurnBoundary(t *testing.T) {
	text := newGatedText()
	h := newHarness(t, harnessOptions{turnLimit: 100, text: text})
	ctx := testutil.TestContext(t)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.orch.Run(ctx, travelTrigger())
		done <- outcome{res, err}
	}()

	_, ok := testutil.WaitForChannel(text.entered, 2*time.Second)
	require.True(t, ok)

	deleted := make(chan bool, 1)
	go func() {
		d, err := h.orch.DeleteScope(ctx, "post-1")
		assert.NoError(t, err)
		deleted <- d
	}()

	// the in-flight turn must finish before the room goes away
	time.Sleep(20 * time.Millisecond)
	select {
	case <-deleted:
		t.Fatal("DeleteScope returned while a turn was in flight")
	default:
	}
	_, stillThere := h.store.GetByScope("post-1")
	assert.True(t, stillThere)

	close(text.release)

	out, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok)
	require.NoError(t, out.err)
	assert.True(t, out.res.Stopped)
	assert.Len(t, out.res.Messages, 1)
	assert.Empty(t, out.res.Events)

	d, ok := testutil.WaitForChannel(deleted, 2*time.Second)
	require.True(t, ok)
	assert.True(t, d)
	_, exists := h.store.GetByScope("post-1")
	assert.False(t, exists)
	assert.False(t, h.orch.Running(out.res.RoomID))
}

func TestDeleteScope_UnknownScope(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	deleted, err := h.orch.DeleteScope(testutil.TestContext(t), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestShutdown_WaitsForRunsAndRejectsNew(t *testing.T) {
	text := newGatedText()
	h := newHarness(t, harnessOptions{turnLimit: 100, text: text})
	ctx := testutil.TestContext(t)

	done := make(chan *Result, 1)
	go func() {
		res, err := h.orch.Run(ctx, travelTrigger())
		assert.NoError(t, err)
		done <- res
	}()
	_, ok := testutil.WaitForChannel(text.entered, 2*time.Second)
	require.True(t, ok)

	shutdown := make(chan error, 1)
	go func() { shutdown <- h.orch.Shutdown(ctx) }()

	testutil.AssertEventuallyTrue(t, h.orch.closing.Load, time.Second)
	_, err := h.orch.Run(ctx, Trigger{ScopeID: "post-2"})
	assert.ErrorIs(t, err, ErrShuttingDown)

	close(text.release)
	err, ok = testutil.WaitForChannel(shutdown, 2*time.Second)
	require.True(t, ok)
	require.NoError(t, err)

	res, ok := testutil.WaitForChannel(done, time.Second)
	require.True(t, ok)
	assert.True(t, res.Stopped)
	assert.Len(t, res.Messages, 1)
}

func TestShutdown_HonoursContext(t *testing.T) {
	text := newGatedText()
	h := newHarness(t, harnessOptions{turnLimit: 100, text: text})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.orch.Run(context.Background(), travelTrigger())
	}()
	_, ok := testutil.WaitForChannel(text.entered, 2*time.Second)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.orch.Shutdown(ctx), context.DeadlineExceeded)

	close(text.release)
	_, ok = testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok)
}

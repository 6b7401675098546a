package orchestrator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/broadcast"
	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/handover"
	"github.com/BaSui01/agentroom/internal/ctxkeys"
	"github.com/BaSui01/agentroom/internal/metrics"
	"github.com/BaSui01/agentroom/internal/tokenizer"
	"github.com/BaSui01/agentroom/membership"
	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/rng"
	"github.com/BaSui01/agentroom/room"
	"github.com/BaSui01/agentroom/speaker"
	"github.com/BaSui01/agentroom/topic"
	"github.com/BaSui01/agentroom/types"
)

const instrumentationName = "github.com/BaSui01/agentroom/orchestrator"

var (
	// ErrRunInProgress is returned when the room of a trigger is already running.
	ErrRunInProgress = types.NewError(types.ErrRunInProgress, "a run is already in progress for this room")

	// ErrShuttingDown is returned by Run after Shutdown started.
	ErrShuttingDown = types.NewError(types.ErrShuttingDown, "orchestrator is shutting down")
)

// Trigger starts a run for a scope.
type Trigger struct {
	ScopeID      string   `json:"scope_id"`
	ScopeContent string   `json:"scope_content"`
	TopicLabels  []string `json:"topic_labels"`

	// Participants seeds a room created by this trigger.
	Participants []string `json:"participants"`

	// LastMessage and LastSpeakerID describe what prompted the run, e.g. a
	// user's message. Both may be empty.
	LastMessage   string `json:"last_message,omitempty"`
	LastSpeakerID string `json:"last_speaker_id,omitempty"`
}

// ExpandedInfo types attached to messages.
const (
	ExpandedThinking = "thinking"
	ExpandedHandover = "handover"
)

// Message is one generated turn.
type Message struct {
	PersonaID        string    `json:"persona_id"`
	Text             string    `json:"text"`
	Thinking         string    `json:"thinking"`
	ExpandedInfoType string    `json:"expanded_info_type,omitempty"`
	At               time.Time `json:"at"`
}

// Handover records an applied dominance change.
type Handover struct {
	Turn   int             `json:"turn"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Reason handover.Reason `json:"reason"`
}

// Result is the output of a run.
type Result struct {
	RunID     string             `json:"run_id"`
	RoomID    string             `json:"room_id"`
	Messages  []Message          `json:"messages"`
	Events    []membership.Event `json:"events"`
	Handovers []Handover         `json:"handovers"`

	// Stopped is true when the run ended before its turn budget.
	Stopped bool `json:"stopped"`
}

// TextSource produces turn text and never fails; generation.Resilient
// satisfies it.
type TextSource interface {
	Thinking(ctx context.Context, p persona.Descriptor, topics []string, lastMessage, history string) string
	DialogueTurn(ctx context.Context, p persona.Descriptor, scopeContent string, history []generation.Line) string
}

// Config 编排循环配置
type Config struct {
	// 每次运行的最少与最多轮次
	MinTurns int `yaml:"min_turns" json:"min_turns"`
	MaxTurns int `yaml:"max_turns" json:"max_turns"`

	// 轮次之间的停顿
	TurnPause time.Duration `yaml:"turn_pause" json:"turn_pause"`

	// thinking 请求携带的对话历史 Token 预算
	HistoryTokenBudget int `yaml:"history_token_budget" json:"history_token_budget"`
}

// DefaultConfig 返回默认编排配置
func DefaultConfig() Config {
	return Config{
		MinTurns:           3,
		MaxTurns:           5,
		TurnPause:          100 * time.Millisecond,
		HistoryTokenBudget: 1500,
	}
}

type activeRun struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (r *activeRun) signal() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Orchestrator drives runs. Different rooms run concurrently; a room runs at
// most once at a time.
type Orchestrator struct {
	store      room.Store
	selector   *speaker.Selector
	handover   *handover.Manager
	membership *membership.Manager
	text       TextSource
	cfg        Config

	directory persona.Directory
	sink      broadcast.Sink
	metrics   *metrics.Collector
	tok       tokenizer.Tokenizer
	tracer    trace.Tracer
	rand      rng.Source
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	runs    map[string]*activeRun
	wg      sync.WaitGroup
	closing atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDirectory sets the persona directory used for descriptors and as the
// pool of join candidates.
func WithDirectory(d persona.Directory) Option {
	return func(o *Orchestrator) { o.directory = d }
}

// WithSink publishes every message, handover and membership event to s.
func WithSink(s broadcast.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithMetrics records run metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithTokenizer sets the tokenizer for history budgeting.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *Orchestrator) { o.tok = t }
}

// WithRand sets the random source for the turn budget.
func WithRand(src rng.Source) Option {
	return func(o *Orchestrator) {
		if src != nil {
			o.rand = src
		}
	}
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator.
func New(
	store room.Store,
	selector *speaker.Selector,
	handovers *handover.Manager,
	members *membership.Manager,
	text TextSource,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		selector:   selector,
		handover:   handovers,
		membership: members,
		text:       text,
		cfg:        cfg,
		tok:        tokenizer.NewEstimatorTokenizer(),
		tracer:     otel.Tracer(instrumentationName),
		now:        time.Now,
		logger:     zap.NewNop(),
		runs:       make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rand == nil {
		o.rand = rng.NewTimeSeeded()
	}
	if o.cfg.MinTurns <= 0 {
		o.cfg.MinTurns = 1
	}
	if o.cfg.MaxTurns < o.cfg.MinTurns {
		o.cfg.MaxTurns = o.cfg.MinTurns
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o
}

// Run executes one bounded run for t.ScopeID.
func (o *Orchestrator) Run(ctx context.Context, t Trigger) (*Result, error) {
	if o.closing.Load() {
		return nil, ErrShuttingDown
	}

	r, release, err := o.acquire(t)
	if err != nil {
		return nil, err
	}
	run, ok := o.register(r.ID)
	if !ok {
		release()
		return nil, ErrShuttingDown
	}
	defer func() {
		release()
		o.unregister(r.ID, run)
	}()

	runID := uuid.NewString()
	ctx = ctxkeys.WithRoomID(ctxkeys.WithRunID(ctx, runID), r.ID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("room.id", r.ID),
			attribute.String("scope.id", t.ScopeID),
			attribute.String("run.id", runID),
		))
	defer span.End()

	start := o.now()
	turns := o.cfg.MinTurns + o.rand.IntN(o.cfg.MaxTurns-o.cfg.MinTurns+1)
	o.logger.Info("run started", append(ctxkeys.Fields(ctx),
		zap.String("scope_id", t.ScopeID),
		zap.Int("turns", turns),
	)...)
	o.publish(ctx, r, broadcast.EventRunStarted, map[string]int{"turns": turns})

	descs := o.personas(ctx)
	idx := persona.NewIndex(descs)

	res := &Result{RunID: runID, RoomID: r.ID}
	// 仅在运行被取消、停止或房间被删除时跳过成员变动
	if !o.loop(ctx, run, t, turns, idx, res) {
		res.Events = o.changeMembership(ctx, r.ID, persona.IDs(descs))
	}

	status := "ok"
	if res.Stopped {
		status = "stopped"
	}
	span.SetAttributes(
		attribute.Int("run.messages", len(res.Messages)),
		attribute.Int("run.handovers", len(res.Handovers)),
		attribute.Bool("run.stopped", res.Stopped),
	)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	o.metrics.RecordRun(status, o.now().Sub(start))
	o.publish(ctx, r, broadcast.EventRunEnded, map[string]any{"messages": len(res.Messages), "stopped": res.Stopped})
	o.logger.Info("run finished", append(ctxkeys.Fields(ctx),
		zap.Int("messages", len(res.Messages)),
		zap.Int("events", len(res.Events)),
		zap.Bool("stopped", res.Stopped),
	)...)
	return res, nil
}

// acquire prepares the scope's room and takes its run lease. A room deleted
// between the two steps is prepared once more.
func (o *Orchestrator) acquire(t Trigger) (room.Room, func(), error) {
	for attempt := 0; ; attempt++ {
		r := o.prepare(t)
		if release, ok := o.store.TryAcquire(r.ID); ok {
			return r, release, nil
		}
		if _, exists := o.store.Get(r.ID); exists {
			return room.Room{}, nil, types.NewError(types.ErrRunInProgress, "a run is already in progress for this room").WithRoom(r.ID)
		}
		if attempt > 0 {
			return room.Room{}, nil, types.NewError(types.ErrRoomNotFound, "room was deleted before the run started").WithRoom(r.ID)
		}
		o.logger.Debug("room deleted before lease, preparing again", zap.String("room_id", r.ID))
	}
}

// prepare returns the scope's room, creating it or installing new topics.
func (o *Orchestrator) prepare(t Trigger) room.Room {
	r, ok := o.store.GetByScope(t.ScopeID)
	if !ok {
		return o.store.Create(t.ScopeID, t.Participants, t.TopicLabels)
	}
	if len(t.TopicLabels) > 0 && !topic.FromLabels(t.TopicLabels).Equal(r.CurrentTopics) {
		o.store.UpdateTopics(r.ID, t.TopicLabels)
		if updated, ok := o.store.Get(r.ID); ok {
			return updated
		}
	}
	return r
}

// loop runs up to turns turns. It returns true when the run was interrupted
// by cancellation, a stop request or deletion of the room. Running out of
// eligible speakers ends the loop early without interrupting the run.
func (o *Orchestrator) loop(ctx context.Context, run *activeRun, t Trigger, turns int, idx persona.Index, res *Result) (interrupted bool) {
	var (
		history     room.History
		lines       []generation.Line
		lastMessage = t.LastMessage
		lastSpeaker = t.LastSpeakerID
	)
	if t.LastMessage != "" {
		name := t.LastSpeakerID
		if name == "" {
			name = "user"
		}
		lines = append(lines, generation.Line{Speaker: idx.Resolve(name).DisplayName(), Text: t.LastMessage})
	}

	for i := 0; i < turns; i++ {
		if i > 0 && !o.pause(ctx, run) {
			res.Stopped = true
			return true
		}
		if o.stopped(ctx, run) {
			res.Stopped = true
			return true
		}

		snap, ok := o.store.Get(res.RoomID)
		if !ok {
			o.logger.Info("room deleted during run", zap.String("room_id", res.RoomID))
			res.Stopped = true
			return true
		}

		id := o.selector.Select(snap, lastMessage, lastSpeaker, history)
		if !snap.IsActive(id) {
			o.logger.Warn("no eligible speaker, ending run early",
				zap.String("room_id", snap.ID),
				zap.Error(types.NewError(types.ErrNoEligibleSpeaker, "no active participant").WithRoom(snap.ID)),
			)
			res.Stopped = true
			return false
		}

		msg, d := o.turn(ctx, snap, t, idx.Resolve(id), lastMessage, history, lines)
		history = append(history, room.Turn{PersonaID: id, Text: msg.Text, Thinking: msg.Thinking, At: msg.At})
		lines = append(lines, generation.Line{Speaker: idx.Resolve(id).DisplayName(), Text: msg.Text})
		res.Messages = append(res.Messages, msg)
		if d != nil {
			d.Turn = i + 1
			res.Handovers = append(res.Handovers, *d)
		}
		lastMessage, lastSpeaker = msg.Text, id
	}
	return false
}

// turn runs one complete turn. It always finishes once started.
func (o *Orchestrator) turn(
	ctx context.Context,
	snap room.Room,
	t Trigger,
	p persona.Descriptor,
	lastMessage string,
	history room.History,
	lines []generation.Line,
) (Message, *Handover) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.turn",
		trace.WithAttributes(
			attribute.String("room.id", snap.ID),
			attribute.String("persona.id", p.ID),
		))
	defer span.End()

	// 首位发言者在房间没有主导者时成为主导者
	if snap.Dominant == "" {
		o.store.SetDominant(snap.ID, p.ID)
	}

	topics := snap.CurrentTopics.Labels()
	thinking := o.text.Thinking(ctx, p, topics, lastMessage, generation.FormatHistory(lines, o.tok, o.cfg.HistoryTokenBudget))
	text := o.text.DialogueTurn(ctx, p, t.ScopeContent, lines)

	o.store.RecordTurn(snap.ID, p.ID)
	o.metrics.RecordTurn()

	msg := Message{
		PersonaID:        p.ID,
		Text:             text,
		Thinking:         thinking,
		ExpandedInfoType: ExpandedThinking,
		At:               o.now(),
	}

	var applied *Handover
	if after, ok := o.store.Get(snap.ID); ok {
		turns := append(slices.Clip(history), room.Turn{PersonaID: p.ID, Text: text, Thinking: thinking, At: msg.At})
		if d := o.handover.Check(after, turns); d.Handover {
			o.store.SetDominant(snap.ID, d.NewDominant)
			applied = &Handover{From: after.Dominant, To: d.NewDominant, Reason: d.Reason}
			msg.ExpandedInfoType = ExpandedHandover
			o.metrics.RecordHandover(string(d.Reason))
			span.AddEvent("handover", trace.WithAttributes(
				attribute.String("handover.to", d.NewDominant),
				attribute.String("handover.reason", string(d.Reason)),
			))
		}
	}

	o.publish(ctx, snap, broadcast.EventMessage, msg)
	if applied != nil {
		o.publish(ctx, snap, broadcast.EventHandover, *applied)
	}
	return msg, applied
}

func (o *Orchestrator) changeMembership(ctx context.Context, roomID string, known []string) []membership.Event {
	snap, ok := o.store.Get(roomID)
	if !ok {
		return nil
	}
	events := o.membership.Execute(ctx, o.membership.Check(snap, known))
	for _, ev := range events {
		o.metrics.RecordMembership(string(ev.Kind))
		o.publish(ctx, snap, broadcast.EventMembership, ev)
	}
	return events
}

func (o *Orchestrator) personas(ctx context.Context) []persona.Descriptor {
	if o.directory == nil {
		return nil
	}
	descs, err := o.directory.List(ctx)
	if err != nil {
		o.logger.Warn("persona directory unavailable", zap.Error(err))
		return nil
	}
	return descs
}

func (o *Orchestrator) publish(ctx context.Context, r room.Room, typ broadcast.EventType, payload any) {
	if o.sink == nil {
		return
	}
	env := broadcast.Envelope{Type: typ, RoomID: r.ID, ScopeID: r.ScopeID, At: o.now(), Payload: payload}
	if err := o.sink.Publish(ctx, env); err != nil {
		o.logger.Debug("broadcast failed", zap.String("type", string(typ)), zap.Error(err))
	}
}

// pause waits TurnPause. It returns false when the run was asked to stop.
func (o *Orchestrator) pause(ctx context.Context, run *activeRun) bool {
	if o.cfg.TurnPause <= 0 {
		return true
	}
	timer := time.NewTimer(o.cfg.TurnPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-run.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (o *Orchestrator) stopped(ctx context.Context, run *activeRun) bool {
	select {
	case <-ctx.Done():
		return true
	case <-run.stop:
		return true
	default:
		return false
	}
}

// =============================================================================
// Run registry
// =============================================================================

func (o *Orchestrator) register(roomID string) (*activeRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing.Load() {
		return nil, false
	}
	run := &activeRun{stop: make(chan struct{}), done: make(chan struct{})}
	o.runs[roomID] = run
	o.wg.Add(1)
	return run, true
}

func (o *Orchestrator) unregister(roomID string, run *activeRun) {
	o.mu.Lock()
	if o.runs[roomID] == run {
		delete(o.runs, roomID)
	}
	o.mu.Unlock()
	close(run.done)
	o.wg.Done()
}

// Running reports whether roomID has an in-flight run.
func (o *Orchestrator) Running(roomID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[roomID]
	return ok
}

// DeleteScope stops the scope's in-flight run after its current turn, waits
// for it, and deletes the room. It reports whether a room was deleted.
func (o *Orchestrator) DeleteScope(ctx context.Context, scopeID string) (bool, error) {
	r, ok := o.store.GetByScope(scopeID)
	if !ok {
		return false, nil
	}

	o.mu.Lock()
	run := o.runs[r.ID]
	o.mu.Unlock()

	if run != nil {
		run.signal()
		select {
		case <-run.done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	deleted := o.store.Delete(r.ID)
	o.logger.Info("scope deleted", zap.String("scope_id", scopeID), zap.String("room_id", r.ID))
	return deleted, nil
}

// Shutdown rejects new runs, asks every in-flight run to stop after its
// current turn and waits for them or for ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing.Store(true)
	for _, run := range o.runs {
		run.signal()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Info("orchestrator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

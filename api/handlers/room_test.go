package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentroom/internal/ctxkeys"
	"github.com/BaSui01/agentroom/internal/pool"
	"github.com/BaSui01/agentroom/orchestrator"
	"github.com/BaSui01/agentroom/room"
	"github.com/BaSui01/agentroom/types"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type fakeRunner struct {
	mu        sync.Mutex
	triggers  []orchestrator.Trigger
	requestID string
	err       error
	deleted   bool
}

func (f *fakeRunner) Run(ctx context.Context, t orchestrator.Trigger) (*orchestrator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, t)
	f.requestID, _ = ctxkeys.RequestID(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Result{RunID: "run-1", RoomID: "room-" + t.ScopeID}, nil
}

func (f *fakeRunner) DeleteScope(ctx context.Context, scopeID string) (bool, error) {
	return f.deleted, nil
}

func (f *fakeRunner) calls() []orchestrator.Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orchestrator.Trigger(nil), f.triggers...)
}

type fakeMirror struct {
	rooms map[string]room.Room
}

func (m *fakeMirror) Load(_ context.Context, roomID string) (room.Room, error) {
	if r, ok := m.rooms[roomID]; ok {
		return r, nil
	}
	return room.Room{}, errors.New("miss")
}

func (m *fakeMirror) LoadByScope(_ context.Context, scopeID string) (room.Room, error) {
	for _, r := range m.rooms {
		if r.ScopeID == scopeID {
			return r, nil
		}
	}
	return room.Room{}, errors.New("miss")
}

func (m *fakeMirror) List(context.Context) ([]room.Room, error) {
	out := make([]room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out, nil
}

func newRoomMux(h *RoomHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/rooms", h.HandleList)
	mux.HandleFunc("GET /api/v1/rooms/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/v1/scopes/{scope}", h.HandleGetScope)
	mux.HandleFunc("POST /api/v1/scopes/{scope}/trigger", h.HandleTrigger)
	mux.HandleFunc("DELETE /api/v1/scopes/{scope}", h.HandleDeleteScope)
	return mux
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// =============================================================================
// 🧪 RoomHandler 测试
// =============================================================================

func TestRoomHandler_ListAndGet(t *testing.T) {
	store := room.NewMemoryStore(room.DefaultConfig())
	created := store.Create("post-1", []string{"alice", "bob"}, []string{"go"})

	h := NewRoomHandler(store, nil, &fakeRunner{}, zaptest.NewLogger(t))
	mux := newRoomMux(h)

	w := serve(mux, http.MethodGet, "/api/v1/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Rooms  []room.Room `json:"rooms"`
		Count  int         `json:"count"`
		Source string      `json:"source"`
	}
	decodeData(t, w, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "local", list.Source)

	w = serve(mux, http.MethodGet, "/api/v1/rooms/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got room.Room
	decodeData(t, w, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "post-1", got.ScopeID)

	w = serve(mux, http.MethodGet, "/api/v1/scopes/post-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(mux, http.MethodGet, "/api/v1/rooms/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(mux, http.MethodGet, "/api/v1/scopes/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomHandler_MirrorFallback(t *testing.T) {
	store := room.NewMemoryStore(room.DefaultConfig())
	mirror := &fakeMirror{rooms: map[string]room.Room{
		"remote-1": {ID: "remote-1", ScopeID: "post-remote"},
	}}
	h := NewRoomHandler(store, mirror, &fakeRunner{}, nil)
	mux := newRoomMux(h)

	w := serve(mux, http.MethodGet, "/api/v1/rooms/remote-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(mux, http.MethodGet, "/api/v1/scopes/post-remote", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(mux, http.MethodGet, "/api/v1/rooms?source=mirror", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count  int    `json:"count"`
		Source string `json:"source"`
	}
	decodeData(t, w, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "mirror", list.Source)
}

func TestRoomHandler_MirrorDisabled(t *testing.T) {
	h := NewRoomHandler(room.NewMemoryStore(room.DefaultConfig()), nil, &fakeRunner{}, nil)
	w := serve(newRoomMux(h), http.MethodGet, "/api/v1/rooms?source=mirror", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomHandler_TriggerSync(t *testing.T) {
	runner := &fakeRunner{}
	h := NewRoomHandler(room.NewMemoryStore(room.DefaultConfig()), nil, runner, nil)
	mux := newRoomMux(h)

	w := serve(mux, http.MethodPost, "/api/v1/scopes/post-7/trigger",
		`{"content":"hello world","topics":["go","rust"],"participants":["alice"],"last_message":"hi","last_speaker_id":"user"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res orchestrator.Result
	decodeData(t, w, &res)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "room-post-7", res.RoomID)

	calls := runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, orchestrator.Trigger{
		ScopeID:       "post-7",
		ScopeContent:  "hello world",
		TopicLabels:   []string{"go", "rust"},
		Participants:  []string{"alice"},
		LastMessage:   "hi",
		LastSpeakerID: "user",
	}, calls[0])
}

func TestRoomHandler_TriggerErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		runErr     error
		wantStatus int
	}{
		{name: "bad body", body: `{"content":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"speaker":"x"}`, wantStatus: http.StatusBadRequest},
		{
			name:       "run in progress",
			body:       `{}`,
			runErr:     types.NewError(types.ErrRunInProgress, "room already has a run in progress"),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "shutting down",
			body:       `{}`,
			runErr:     types.NewError(types.ErrShuttingDown, "orchestrator is shutting down"),
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRoomHandler(room.NewMemoryStore(room.DefaultConfig()), nil, &fakeRunner{err: tt.runErr}, nil)
			w := serve(newRoomMux(h), http.MethodPost, "/api/v1/scopes/post-1/trigger", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRoomHandler_TriggerAsync(t *testing.T) {
	runner := &fakeRunner{}
	h := NewRoomHandler(room.NewMemoryStore(room.DefaultConfig()), nil, runner, zaptest.NewLogger(t))
	mux := newRoomMux(h)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/scopes/post-2/trigger", strings.NewReader(`{"async":true}`))
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-async"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted struct {
		ScopeID string `json:"scope_id"`
	}
	decodeData(t, w, &accepted)
	assert.Equal(t, "post-2", accepted.ScopeID)

	h.Wait()
	require.Len(t, runner.calls(), 1)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, "req-async", runner.requestID)
}

type blockingRunner struct {
	fakeRunner
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, t orchestrator.Trigger) (*orchestrator.Result, error) {
	b.started <- struct{}{}
	<-b.release
	return b.fakeRunner.Run(ctx, t)
}

func TestRoomHandler_TriggerAsyncBackpressure(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	h := NewRoomHandler(room.NewMemoryStore(room.DefaultConfig()), nil, runner, nil,
		WithAsyncLimits(pool.Config{MaxWorkers: 1, QueueSize: 1}))
	mux := newRoomMux(h)

	require.Equal(t, http.StatusAccepted, serve(mux, http.MethodPost, "/api/v1/scopes/a/trigger", `{"async":true}`).Code)
	<-runner.started
	require.Equal(t, http.StatusAccepted, serve(mux, http.MethodPost, "/api/v1/scopes/b/trigger", `{"async":true}`).Code)

	w := serve(mux, http.MethodPost, "/api/v1/scopes/c/trigger", `{"async":true}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, int64(1), h.AsyncStats().Rejected)

	close(runner.release)
	h.Wait()
	assert.Len(t, runner.calls(), 2)

	w = serve(mux, http.MethodPost, "/api/v1/scopes/d/trigger", `{"async":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoomHandler_DeleteScope(t *testing.T) {
	runner := &fakeRunner{deleted: true}
	h := NewRoomHandler(room.NewMemoryStore(room.DefaultConfig()), nil, runner, nil)
	mux := newRoomMux(h)

	w := serve(mux, http.MethodDelete, "/api/v1/scopes/post-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		ScopeID string `json:"scope_id"`
		Deleted bool   `json:"deleted"`
	}
	decodeData(t, w, &res)
	assert.Equal(t, "post-1", res.ScopeID)
	assert.True(t, res.Deleted)

	runner.deleted = false
	w = serve(mux, http.MethodDelete, "/api/v1/scopes/post-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/api"
	"github.com/BaSui01/agentroom/internal/ctxkeys"
	"github.com/BaSui01/agentroom/internal/pool"
	"github.com/BaSui01/agentroom/orchestrator"
	"github.com/BaSui01/agentroom/room"
	"github.com/BaSui01/agentroom/types"
)

// =============================================================================
// 🏠 房间 Handler
// =============================================================================

// RoomReader is the read side of the room store.
type RoomReader interface {
	Get(roomID string) (room.Room, bool)
	GetByScope(scopeID string) (room.Room, bool)
	List() []room.Room
}

// SnapshotReader reads mirrored room snapshots, possibly written by other
// instances. room.RedisMirror satisfies it.
type SnapshotReader interface {
	Load(ctx context.Context, roomID string) (room.Room, error)
	LoadByScope(ctx context.Context, scopeID string) (room.Room, error)
	List(ctx context.Context) ([]room.Room, error)
}

// Runner starts and cancels runs. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, t orchestrator.Trigger) (*orchestrator.Result, error)
	DeleteScope(ctx context.Context, scopeID string) (bool, error)
}

// RoomHandler serves the room and scope endpoints.
type RoomHandler struct {
	rooms  RoomReader
	mirror SnapshotReader
	runner Runner
	logger *zap.Logger

	asyncCfg pool.Config
	async    *pool.Pool
}

// RoomHandlerOption configures a RoomHandler.
type RoomHandlerOption func(*RoomHandler)

// WithAsyncLimits bounds the asynchronous runs started by HandleTrigger.
func WithAsyncLimits(cfg pool.Config) RoomHandlerOption {
	return func(h *RoomHandler) { h.asyncCfg = cfg }
}

// NewRoomHandler creates a handler. mirror may be nil.
func NewRoomHandler(rooms RoomReader, mirror SnapshotReader, runner Runner, logger *zap.Logger, opts ...RoomHandlerOption) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &RoomHandler{
		rooms:    rooms,
		mirror:   mirror,
		runner:   runner,
		logger:   logger.With(zap.String("component", "room_handler")),
		asyncCfg: pool.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.async = pool.New(h.asyncCfg, h.logger)
	return h
}

func roomNotFound(roomID string) error {
	return types.NewError(types.ErrRoomNotFound, "room not found").WithRoom(roomID)
}

// HandleList 处理 GET /api/v1/rooms
func (h *RoomHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "mirror" {
		if h.mirror == nil {
			WriteError(w, r, types.NewError(types.ErrInvalidRequest, "room mirror is not enabled"), h.logger)
			return
		}
		rooms, err := h.mirror.List(r.Context())
		if err != nil {
			WriteError(w, r, types.NewError(types.ErrInternalError, "read room mirror").WithCause(err), h.logger)
			return
		}
		WriteSuccess(w, r, http.StatusOK, api.RoomList{Rooms: rooms, Count: len(rooms), Source: "mirror"})
		return
	}

	rooms := h.rooms.List()
	WriteSuccess(w, r, http.StatusOK, api.RoomList{Rooms: rooms, Count: len(rooms), Source: "local"})
}

// HandleGet 处理 GET /api/v1/rooms/{id}，本地缺失时回退到镜像
func (h *RoomHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if rm, ok := h.rooms.Get(id); ok {
		WriteSuccess(w, r, http.StatusOK, rm)
		return
	}
	if h.mirror != nil {
		if rm, err := h.mirror.Load(r.Context(), id); err == nil {
			WriteSuccess(w, r, http.StatusOK, rm)
			return
		}
	}
	WriteError(w, r, roomNotFound(id), h.logger)
}

// HandleGetScope 处理 GET /api/v1/scopes/{scope}
func (h *RoomHandler) HandleGetScope(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	if rm, ok := h.rooms.GetByScope(scope); ok {
		WriteSuccess(w, r, http.StatusOK, rm)
		return
	}
	if h.mirror != nil {
		if rm, err := h.mirror.LoadByScope(r.Context(), scope); err == nil {
			WriteSuccess(w, r, http.StatusOK, rm)
			return
		}
	}
	WriteError(w, r, types.NewError(types.ErrRoomNotFound, "no room for scope "+scope), h.logger)
}

// HandleTrigger 处理 POST /api/v1/scopes/{scope}/trigger
func (h *RoomHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.PathValue("scope"))
	if scope == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "scope is required"), h.logger)
		return
	}

	var req api.TriggerRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	trigger := req.Trigger(scope)

	if req.Async {
		// the run outlives the request but keeps its request id
		err := h.async.Submit(context.WithoutCancel(r.Context()), func(ctx context.Context) error {
			_, err := h.runner.Run(ctx, trigger)
			if err != nil {
				h.logger.Warn("async run failed", append(ctxkeys.Fields(ctx),
					zap.String("scope_id", scope), zap.Error(err))...)
			}
			return err
		})
		switch {
		case errors.Is(err, pool.ErrPoolFull):
			WriteError(w, r, types.NewError(types.ErrRateLimited, "too many pending runs").WithRetryable(true), h.logger)
			return
		case err != nil:
			WriteError(w, r, types.NewError(types.ErrShuttingDown, "not accepting runs").WithCause(err), h.logger)
			return
		}
		WriteSuccess(w, r, http.StatusAccepted, api.TriggerAccepted{ScopeID: scope})
		return
	}

	res, err := h.runner.Run(r.Context(), trigger)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, http.StatusOK, res)
}

// HandleDeleteScope 处理 DELETE /api/v1/scopes/{scope}
func (h *RoomHandler) HandleDeleteScope(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	deleted, err := h.runner.DeleteScope(r.Context(), scope)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if !deleted {
		WriteError(w, r, types.NewError(types.ErrRoomNotFound, "no room for scope "+scope), h.logger)
		return
	}
	WriteSuccess(w, r, http.StatusOK, api.DeleteResult{ScopeID: scope, Deleted: true})
}

// Wait stops accepting asynchronous runs and blocks until the started ones
// return.
func (h *RoomHandler) Wait() {
	h.async.Close()
}

// AsyncStats 返回异步运行池统计
func (h *RoomHandler) AsyncStats() pool.Stats {
	return h.async.Stats()
}

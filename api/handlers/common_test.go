package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/internal/ctxkeys"
	"github.com/BaSui01/agentroom/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-1"))

	WriteSuccess(w, r, http.StatusOK, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
		wantMsg    string
	}{
		{
			name:       "invalid request",
			err:        types.NewError(types.ErrInvalidRequest, "scope is required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
			wantMsg:    "scope is required",
		},
		{
			name:       "run in progress",
			err:        types.NewError(types.ErrRunInProgress, "room already has a run in progress").WithRoom("room-1"),
			wantStatus: http.StatusConflict,
			wantCode:   types.ErrRunInProgress,
			wantMsg:    "room already has a run in progress",
		},
		{
			name:       "wrapped shutting down",
			err:        errors.Join(errors.New("context"), types.NewError(types.ErrShuttingDown, "orchestrator is shutting down")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   types.ErrShuttingDown,
			wantMsg:    "orchestrator is shutting down",
		},
		{
			name:       "plain error hides its message",
			err:        errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrInternalError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(w, r, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
		})
	}
}

func TestWriteError_CarriesRoomID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(w, r, types.NewError(types.ErrRoomNotFound, "room not found").WithRoom("room-9"), nil)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "room-9", resp.Error.RoomID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrRoomNotFound, http.StatusNotFound},
		{types.ErrPersonaNotFound, http.StatusNotFound},
		{types.ErrRunInProgress, http.StatusConflict},
		{types.ErrNoEligibleSpeaker, http.StatusUnprocessableEntity},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrShuttingDown, http.StatusServiceUnavailable},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrGenerationFailed, http.StatusBadGateway},
		{types.ErrInternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError}, // 默认
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, StatusFor(tt.code))
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    payload
	}{
		{name: "valid JSON", body: `{"name":"test","value":123}`, want: payload{"test", 123}},
		{name: "empty body", body: ``},
		{name: "invalid JSON", body: `{"name":"test",}`, wantErr: true},
		{name: "unknown field", body: `{"name":"test","unknown":"field"}`, wantErr: true},
		{name: "oversized", body: `{"name":"` + strings.Repeat("x", 2<<20) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))

			var got payload
			err := DecodeJSONBody(r, &got)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)
	assert.Same(t, rw, NewResponseWriter(rw), "wrapping twice reuses the wrapper")

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	// 再次写入应该被忽略
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	n, err := rw.Write([]byte("test"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(4), rw.BytesWritten)

	rw.Flush()
	assert.True(t, w.Flushed)
	assert.Same(t, w, rw.Unwrap())
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWriter_Hijack(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _, err := rw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")

	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = NewResponseWriter(inner)
	_, _, err = rw.Hijack()
	require.NoError(t, err)
	assert.True(t, inner.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, rw.StatusCode)
}

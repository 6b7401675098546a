package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/room"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.roomsActive)
	assert.NotNil(t, collector.generationTotal)
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		c.RoomUpdated(room.Room{ID: "r"})
		c.RoomDeleted(room.Room{ID: "r"}, room.DeleteEvicted)
		c.RecordTurn()
		c.RecordHandover("turn_limit")
		c.RecordMembership("join")
		c.RecordRun("ok", time.Second)
		c.ObserveGeneration(generation.KindDialogue, generation.OutcomeOK, time.Second)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/rooms", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/rooms", 503, 50*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/rooms", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/rooms", "5xx")))
}

func TestCollector_RoomObserver(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	r := room.Room{ID: "r1", Participants: []room.Participant{
		{ID: "a", Status: room.StatusActive},
		{ID: "b", Status: room.StatusJoining},
	}}
	collector.RoomUpdated(r)
	collector.RoomUpdated(r)
	collector.RoomUpdated(room.Room{ID: "r2"})
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.roomsActive))

	collector.RoomUpdated(r)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.participants.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.participants.WithLabelValues("joining")))

	collector.RoomDeleted(r, room.DeleteEvicted)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.roomsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.roomsRemoved.WithLabelValues("evicted")))
}

func TestCollector_RoomObserverIgnoresLateUpdates(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RoomUpdated(room.Room{ID: "r1", Version: 1})
	collector.RoomDeleted(room.Room{ID: "r1", Version: 3}, room.DeleteExplicit)
	collector.RoomUpdated(room.Room{ID: "r1", Version: 2})
	collector.RoomDeleted(room.Room{ID: "r1", Version: 3}, room.DeleteExplicit)

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.roomsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.roomsRemoved.WithLabelValues("deleted")))
}

func TestCollector_Conversation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTurn()
	collector.RecordTurn()
	collector.RecordHandover("topic_shift")
	collector.RecordMembership("join")
	collector.RecordRun("ok", 2*time.Second)
	collector.ObserveGeneration(generation.KindThinking, generation.OutcomeFallback, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.turnsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.handoversTotal.WithLabelValues("topic_shift")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.membershipTotal.WithLabelValues("join")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.generationTotal.WithLabelValues("thinking", "fallback")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.generationDuration))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {301, "3xx"}, {404, "4xx"}, {500, "5xx"}, {100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}

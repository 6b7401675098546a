package api

import (
	"time"

	"github.com/BaSui01/agentroom/orchestrator"
	"github.com/BaSui01/agentroom/room"
)

// =============================================================================
// 触发与房间类型
// =============================================================================

// TriggerRequest starts a run in the room attached to the scope in the URL.
type TriggerRequest struct {
	// 作用域内容（例如帖子正文）
	Content string `json:"content,omitempty"`
	// 话题标签
	Topics []string `json:"topics,omitempty"`
	// 新房间的初始参与者
	Participants []string `json:"participants,omitempty"`
	// 触发本次运行的最后一条消息
	LastMessage string `json:"last_message,omitempty"`
	// 最后一条消息的发言者
	LastSpeakerID string `json:"last_speaker_id,omitempty"`
	// 为 true 时立即返回 202，运行在后台进行
	Async bool `json:"async,omitempty"`
}

// Trigger converts the request for scopeID.
func (r TriggerRequest) Trigger(scopeID string) orchestrator.Trigger {
	return orchestrator.Trigger{
		ScopeID:       scopeID,
		ScopeContent:  r.Content,
		TopicLabels:   r.Topics,
		Participants:  r.Participants,
		LastMessage:   r.LastMessage,
		LastSpeakerID: r.LastSpeakerID,
	}
}

// TriggerAccepted is returned for asynchronous triggers.
type TriggerAccepted struct {
	ScopeID string `json:"scope_id"`
}

// RoomList is the response of the room listing.
type RoomList struct {
	Rooms  []room.Room `json:"rooms"`
	Count  int         `json:"count"`
	Source string      `json:"source"`
}

// DeleteResult reports a scope deletion.
type DeleteResult struct {
	ScopeID string `json:"scope_id"`
	Deleted bool   `json:"deleted"`
}

// StreamHello is the first frame of a websocket stream.
type StreamHello struct {
	ScopeID string    `json:"scope_id,omitempty"`
	At      time.Time `json:"at"`
}

package config

import (
	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/handover"
	"github.com/BaSui01/agentroom/internal/cache"
	"github.com/BaSui01/agentroom/internal/database"
	"github.com/BaSui01/agentroom/internal/pool"
	"github.com/BaSui01/agentroom/membership"
	"github.com/BaSui01/agentroom/orchestrator"
	"github.com/BaSui01/agentroom/room"
	"github.com/BaSui01/agentroom/speaker"
)

// =============================================================================
// 🔄 到运行时组件配置的转换
// =============================================================================

// Store 返回房间存储配置
func (c RoomConfig) Store() room.Config {
	return room.Config{
		TTL:           c.TTL,
		EvictInterval: c.EvictInterval,
		RemovalGrace:  c.RemovalGrace,
		SettleDelay:   c.SettleDelay,
	}
}

// Orchestrator 返回编排循环配置
func (c ConversationConfig) Orchestrator(historyBudget int) orchestrator.Config {
	return orchestrator.Config{
		MinTurns:           c.MinTurns,
		MaxTurns:           c.MaxTurns,
		TurnPause:          c.TurnPause,
		HistoryTokenBudget: historyBudget,
	}
}

// Weights 返回发言者评分权重，未配置的窗口沿用默认值
func (c ConversationConfig) Weights() speaker.Weights {
	w := speaker.DefaultWeights()
	if c.RecencyWindow > 0 {
		w.RecencyWindow = c.RecencyWindow
	}
	if c.DominanceWindow > 0 {
		w.DominanceWindow = c.DominanceWindow
	}
	return w
}

// Handover 返回主导权移交配置
func (c ConversationConfig) Handover() handover.Config {
	return handover.Config{
		SimilarityThreshold: c.SimilarityThreshold,
		TurnLimit:           c.TurnLimit,
	}
}

// Membership 返回成员变更策略
func (c ConversationConfig) Membership() membership.Policy {
	return membership.Policy{
		MaxParticipants:  c.MaxParticipants,
		JoinProbability:  c.JoinProbability,
		AutonomousLeave:  c.AutonomousLeave,
		LeaveProbability: c.LeaveProbability,
		Concurrency:      c.MembershipConcurrency,
	}
}

// Resilient 返回生成调用弹性配置
func (c GenerationConfig) Resilient() generation.ResilientConfig {
	return generation.ResilientConfig{
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
	}
}

// Cache 返回 Redis 缓存配置
func (c RedisConfig) Cache() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Addr = c.Addr
	cfg.Password = c.Password
	cfg.DB = c.DB
	cfg.TLS = c.TLS
	if c.KeyPrefix != "" {
		cfg.KeyPrefix = c.KeyPrefix
	}
	if c.SnapshotTTL > 0 {
		cfg.DefaultTTL = c.SnapshotTTL
	}
	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		cfg.MinIdleConns = c.MinIdleConns
	}
	return cfg
}

// Pool 返回数据库连接池配置
func (c DatabaseConfig) Pool() database.PoolConfig {
	cfg := database.DefaultPoolConfig()
	if c.MaxOpenConns > 0 {
		cfg.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		cfg.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetime > 0 {
		cfg.ConnMaxLifetime = c.ConnMaxLifetime
	}
	return cfg
}

// AsyncPool 返回异步触发工作池配置
func (c ServerConfig) AsyncPool() pool.Config {
	cfg := pool.DefaultConfig()
	cfg.MaxWorkers = c.AsyncWorkers
	cfg.QueueSize = c.AsyncQueue
	return cfg
}

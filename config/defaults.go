// =============================================================================
// 📦 AgentRoom 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Room:         DefaultRoomConfig(),
		Conversation: DefaultConversationConfig(),
		Generation:   DefaultGenerationConfig(),
		Personas:     DefaultPersonaConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		StreamBuffer:    64,
		AsyncWorkers:    16,
		AsyncQueue:      256,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultRoomConfig 返回默认房间存储配置
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		TTL:           30 * time.Minute,
		EvictInterval: 5 * time.Minute,
		RemovalGrace:  time.Second,
		SettleDelay:   2 * time.Second,
	}
}

// DefaultConversationConfig 返回默认对话编排配置
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		MinTurns:              3,
		MaxTurns:              5,
		TurnPause:             100 * time.Millisecond,
		Temperature:           0.7,
		RecencyWindow:         10,
		DominanceWindow:       5,
		SimilarityThreshold:   0.5,
		TurnLimit:             7,
		MaxParticipants:       6,
		JoinProbability:       0.5,
		AutonomousLeave:       false,
		LeaveProbability:      0.1,
		MembershipConcurrency: 4,
	}
}

// DefaultGenerationConfig 返回默认文本生成配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Provider:           "template",
		Model:              "gpt-4o-mini",
		Temperature:        0.9,
		MaxTokens:          300,
		Timeout:            20 * time.Second,
		RequestsPerSecond:  5,
		Burst:              10,
		MaxRetries:         1,
		RetryDelay:         200 * time.Millisecond,
		HistoryTokenBudget: 1500,
	}
}

// DefaultPersonaConfig 返回默认 Persona 目录配置
func DefaultPersonaConfig() PersonaConfig {
	return PersonaConfig{
		Source: "file",
		Path:   "personas.yaml",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		KeyPrefix:    "agentroom:",
		SnapshotTTL:  30 * time.Minute,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentroom",
		Name:            "agentroom",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentroom",
		SampleRate:   0.1,
	}
}

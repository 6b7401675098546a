// =============================================================================
// 📦 AgentRoom 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentroom.yaml").
//	    WithEnvPrefix("AGENTROOM").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentroom/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentRoom 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Room 房间存储配置
	Room RoomConfig `yaml:"room" env:"ROOM"`

	// Conversation 对话编排配置
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`

	// Generation 文本生成配置
	Generation GenerationConfig `yaml:"generation" env:"GENERATION"`

	// Personas Persona 目录配置
	Personas PersonaConfig `yaml:"personas" env:"PERSONAS"`

	// Redis 房间快照镜像配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// WebSocket 订阅者缓冲区大小
	StreamBuffer int `yaml:"stream_buffer" env:"STREAM_BUFFER"`
	// 异步触发的并发上限与等待队列长度
	AsyncWorkers int `yaml:"async_workers" env:"ASYNC_WORKERS"`
	AsyncQueue   int `yaml:"async_queue" env:"ASYNC_QUEUE"`
	// 每个客户端 IP 的限流，RPS 为 0 时关闭
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源，为空时拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RoomConfig 房间存储配置
type RoomConfig struct {
	// 房间空闲多久后被回收
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 回收扫描间隔
	EvictInterval time.Duration `yaml:"evict_interval" env:"EVICT_INTERVAL"`
	// leaving 状态保留时长
	RemovalGrace time.Duration `yaml:"removal_grace" env:"REMOVAL_GRACE"`
	// joining 状态自动转为 active 的延迟
	SettleDelay time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
}

// ConversationConfig 对话编排配置
type ConversationConfig struct {
	// 每次运行的轮次范围
	MinTurns int `yaml:"min_turns" env:"MIN_TURNS"`
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 轮次之间的停顿
	TurnPause time.Duration `yaml:"turn_pause" env:"TURN_PAUSE"`

	// 发言者采样温度，越低越倾向高分者
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 近期发言与主导加成的窗口
	RecencyWindow   int `yaml:"recency_window" env:"RECENCY_WINDOW"`
	DominanceWindow int `yaml:"dominance_window" env:"DOMINANCE_WINDOW"`

	// 话题切换判定的余弦相似度阈值
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	// 主导者连续轮次上限
	TurnLimit int `yaml:"turn_limit" env:"TURN_LIMIT"`

	// 成员变更策略
	MaxParticipants       int     `yaml:"max_participants" env:"MAX_PARTICIPANTS"`
	JoinProbability       float64 `yaml:"join_probability" env:"JOIN_PROBABILITY"`
	AutonomousLeave       bool    `yaml:"autonomous_leave" env:"AUTONOMOUS_LEAVE"`
	LeaveProbability      float64 `yaml:"leave_probability" env:"LEAVE_PROBABILITY"`
	MembershipConcurrency int     `yaml:"membership_concurrency" env:"MEMBERSHIP_CONCURRENCY"`

	// 随机种子，0 表示按时间播种
	Seed uint64 `yaml:"seed" env:"SEED"`
}

// GenerationConfig 文本生成配置
type GenerationConfig struct {
	// 生成器: template, openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，兼容 OpenAI 协议的服务）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 采样温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 单次回复的最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 限流
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
	// 重试
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	// 对话历史 Token 预算
	HistoryTokenBudget int `yaml:"history_token_budget" env:"HISTORY_TOKEN_BUDGET"`
}

// PersonaConfig Persona 目录配置
type PersonaConfig struct {
	// 来源: file, database
	Source string `yaml:"source" env:"SOURCE"`
	// YAML 种子文件路径
	Path string `yaml:"path" env:"PATH"`
	// 文件变更时自动重载
	Watch bool `yaml:"watch" env:"WATCH"`
	// 启动时将种子文件写入数据库
	SeedDatabase bool `yaml:"seed_database" env:"SEED_DATABASE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用房间快照镜像
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 快照过期时间
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" env:"SNAPSHOT_TTL"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否使用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 下为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时执行 GORM AutoMigrate，关闭后由 agentroom migrate 管理 Schema
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTROOM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段，键名为 PREFIX_SECTION_FIELD
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 校验
// =============================================================================

// Validate 验证配置，返回 INVALID_CONFIG 错误
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		fail("invalid HTTP port %d", c.Server.HTTPPort)
	}
	if c.Server.AsyncWorkers <= 0 || c.Server.AsyncQueue <= 0 {
		fail("server.async_workers and server.async_queue must be positive")
	}
	if c.Server.RateLimitRPS < 0 || (c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0) {
		fail("server rate limit needs rate_limit_rps >= 0 and a positive rate_limit_burst")
	}

	if c.Room.TTL <= 0 {
		fail("room.ttl must be positive")
	}
	if c.Room.EvictInterval <= 0 {
		fail("room.evict_interval must be positive")
	}
	if c.Room.RemovalGrace < 0 || c.Room.SettleDelay < 0 {
		fail("room timers must not be negative")
	}

	conv := c.Conversation
	if conv.MinTurns <= 0 || conv.MaxTurns < conv.MinTurns {
		fail("conversation turns must satisfy 0 < min_turns <= max_turns, got %d..%d", conv.MinTurns, conv.MaxTurns)
	}
	if conv.Temperature <= 0 {
		fail("conversation.temperature must be positive")
	}
	if conv.SimilarityThreshold < 0 || conv.SimilarityThreshold > 1 {
		fail("conversation.similarity_threshold must be between 0 and 1")
	}
	if conv.TurnLimit <= 0 {
		fail("conversation.turn_limit must be positive")
	}
	if conv.JoinProbability < 0 || conv.JoinProbability > 1 {
		fail("conversation.join_probability must be between 0 and 1")
	}
	if conv.LeaveProbability < 0 || conv.LeaveProbability > 1 {
		fail("conversation.leave_probability must be between 0 and 1")
	}
	if conv.MaxParticipants <= 0 {
		fail("conversation.max_participants must be positive")
	}

	switch c.Generation.Provider {
	case "template":
	case "openai":
		if c.Generation.APIKey == "" && c.Generation.BaseURL == "" {
			fail("generation.api_key is required for the openai provider")
		}
	default:
		fail("unknown generation provider %q", c.Generation.Provider)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		fail("generation.temperature must be between 0 and 2")
	}

	switch c.Personas.Source {
	case "file":
		if c.Personas.Path == "" {
			fail("personas.path is required for the file source")
		}
	case "database":
		if c.Database.DSN() == "" {
			fail("unsupported database driver %q", c.Database.Driver)
		}
	default:
		fail("unknown persona source %q", c.Personas.Source)
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig, "config validation failed").WithCause(errors.Join(errs...))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// =============================================================================
// AgentRoom 主入口
// =============================================================================
// 多人格对话编排服务入口，包含 HTTP/WebSocket 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	agentroom serve                         # 启动服务
//	agentroom serve --config agentroom.yaml # 指定配置文件
//	agentroom simulate --topics travel,food # 本地运行一次对话并输出结果
//	agentroom migrate up                    # 执行人格库数据库迁移
//	agentroom version                       # 显示版本信息
//	agentroom health                        # 健康检查
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/orchestrator"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "simulate":
		runSimulate(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting AgentRoom",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}

	srv := NewServer(a, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}

	logger.Info("AgentRoom stopped")
}

// =============================================================================
// 🎭 simulate 命令
// =============================================================================

func runSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	scope := fs.String("scope", "local", "Scope id the conversation is attached to")
	content := fs.String("content", "", "Scope content the personas react to")
	topics := fs.String("topics", "", "Comma separated topic labels")
	participants := fs.String("participants", "", "Comma separated initial persona ids")
	message := fs.String("message", "", "Last message that triggered the run")
	runs := fs.Int("runs", 1, "Number of consecutive runs in the same room")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	// 本地模拟不需要遥测与 Redis 镜像，日志输出到 stderr 以免混入结果
	cfg.Telemetry.Enabled = false
	cfg.Redis.Enabled = false
	cfg.Log.OutputPaths = []string{"stderr"}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	trigger := orchestrator.Trigger{
		ScopeID:      *scope,
		ScopeContent: *content,
		TopicLabels:  splitList(*topics),
		Participants: splitList(*participants),
		LastMessage:  *message,
	}
	if len(trigger.Participants) == 0 {
		trigger.Participants, err = a.DefaultParticipants(ctx, 2)
		if err != nil {
			logger.Fatal("Failed to list personas", zap.Error(err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for i := 0; i < max(*runs, 1); i++ {
		res, err := a.orchestrator.Run(ctx, trigger)
		if err != nil {
			logger.Fatal("Run failed", zap.Error(err))
		}
		if err := enc.Encode(res); err != nil {
			logger.Fatal("Encode result failed", zap.Error(err))
		}
		if n := len(res.Messages); n > 0 {
			last := res.Messages[n-1]
			trigger.LastMessage, trigger.LastSpeakerID = last.Text, last.PersonaID
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AgentRoom %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentRoom - multi-persona conversation rooms

Usage:
  agentroom <command> [options]

Commands:
  serve     Start the AgentRoom server
  simulate  Run conversations locally and print the results as JSON
  migrate   Run persona database migrations (see 'agentroom migrate help')
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'simulate':
  --config <path>          Path to configuration file (YAML)
  --scope <id>             Scope id (default "local")
  --content <text>         Scope content the personas react to
  --topics <a,b>           Topic labels
  --participants <a,b>     Initial persona ids (default: first two personas)
  --message <text>         Last message that triggered the run
  --runs <n>               Consecutive runs in the same room (default 1)

Examples:
  agentroom serve --config /etc/agentroom/agentroom.yaml
  agentroom simulate --topics travel,food --content "Back from Lisbon!"
  agentroom migrate up --config /etc/agentroom/agentroom.yaml
  agentroom health --addr http://localhost:8080
  agentroom version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentroom/broadcast"
	"github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/generation/openai"
	"github.com/BaSui01/agentroom/handover"
	"github.com/BaSui01/agentroom/internal/cache"
	"github.com/BaSui01/agentroom/internal/database"
	"github.com/BaSui01/agentroom/internal/metrics"
	"github.com/BaSui01/agentroom/internal/telemetry"
	"github.com/BaSui01/agentroom/internal/tlsutil"
	"github.com/BaSui01/agentroom/internal/tokenizer"
	"github.com/BaSui01/agentroom/membership"
	"github.com/BaSui01/agentroom/orchestrator"
	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/rng"
	"github.com/BaSui01/agentroom/room"
	"github.com/BaSui01/agentroom/speaker"
)

// app holds the wired runtime components.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	collector    *metrics.Collector
	store        *room.MemoryStore
	mirror       *room.RedisMirror
	cache        *cache.Manager
	pool         *database.PoolManager
	directory    persona.Directory
	watcher      *config.FileWatcher
	hub          *broadcast.Hub
	orchestrator *orchestrator.Orchestrator
	telemetry    *telemetry.Providers

	evictorDone <-chan struct{}
	stopEvictor context.CancelFunc
}

type appOption func(*appOptions)

type appOptions struct {
	collector *metrics.Collector
	generator generation.Generator
}

// withCollector injects the metrics collector instead of registering a new one.
func withCollector(c *metrics.Collector) appOption {
	return func(o *appOptions) { o.collector = c }
}

// withGenerator overrides the configured text generator.
func withGenerator(g generation.Generator) appOption {
	return func(o *appOptions) { o.generator = g }
}

// newApp wires every component from cfg. Components started here are stopped
// by Close.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (_ *app, err error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, logger); err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.telemetry, err = nil, nil
	}

	a.collector = o.collector
	if a.collector == nil {
		a.collector = metrics.NewCollector("agentroom", logger)
	}
	if a.telemetry.Enabled() {
		rec, err := metrics.NewOTelRecorder(otel.Meter("github.com/BaSui01/agentroom"))
		if err != nil {
			return nil, fmt.Errorf("init otel instruments: %w", err)
		}
		a.collector.AttachOTel(rec)
	}

	storeOpts := []room.Option{room.WithLogger(logger), room.WithObserver(a.collector)}
	if cfg.Redis.Enabled {
		a.cache, err = cache.NewManager(cfg.Redis.Cache(), logger)
		if err != nil {
			return nil, fmt.Errorf("init redis mirror: %w", err)
		}
		a.mirror = room.NewRedisMirror(a.cache, cfg.Redis.SnapshotTTL, logger)
		storeOpts = append(storeOpts, room.WithObserver(a.mirror))
	}
	a.store = room.NewMemoryStore(cfg.Room.Store(), storeOpts...)

	lookup, err := a.initDirectory(ctx)
	if err != nil {
		return nil, err
	}

	gen := o.generator
	if gen == nil {
		gen = a.newGenerator()
	}
	text := generation.NewResilient(gen, cfg.Generation.Resilient(), logger,
		generation.WithCallObserver(a.collector))

	src := newRandSource(cfg.Conversation.Seed)
	affinity := persona.InterestAffinity(lookup, persona.UniformAffinity(0.5))
	conv := cfg.Conversation

	selector := speaker.NewSelector(affinity, lookup,
		speaker.WithWeights(conv.Weights()),
		speaker.WithTemperature(conv.Temperature),
		speaker.WithRand(src),
		speaker.WithLogger(logger),
	)
	handovers := handover.NewManager(affinity, conv.Handover(), logger)
	members := membership.NewManager(a.store, text, a.directory, conv.Membership(),
		membership.WithRand(src),
		membership.WithLogger(logger),
	)

	a.hub = broadcast.NewHub(logger)
	a.orchestrator = orchestrator.New(a.store, selector, handovers, members, text,
		conv.Orchestrator(cfg.Generation.HistoryTokenBudget),
		orchestrator.WithDirectory(a.directory),
		orchestrator.WithSink(a.hub),
		orchestrator.WithMetrics(a.collector),
		orchestrator.WithTokenizer(tokenizer.ForModel(cfg.Generation.Model, logger)),
		orchestrator.WithRand(src),
		orchestrator.WithLogger(logger),
	)

	evictCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopEvictor = cancel
	a.evictorDone = a.store.StartEvictor(evictCtx)
	return a, nil
}

// newRandSource returns a seeded source, or a time seeded one for seed 0.
func newRandSource(seed uint64) rng.Source {
	if seed == 0 {
		return rng.NewTimeSeeded()
	}
	return rng.New(seed)
}

// initDirectory opens the persona source and returns the lookup the scorers
// read descriptors through.
func (a *app) initDirectory(ctx context.Context) (persona.Lookup, error) {
	pc := a.cfg.Personas
	switch pc.Source {
	case "database":
		pool, err := database.Open(a.cfg.Database.Driver, a.cfg.Database.DSN(), a.cfg.Database.Pool(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("open persona database: %w", err)
		}
		a.pool = pool
		dir := persona.NewGormDirectory(pool.DB(), a.logger)
		if a.cfg.Database.AutoMigrate {
			if err := dir.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		if pc.SeedDatabase && pc.Path != "" {
			if err := a.seedDatabase(ctx, pc.Path); err != nil {
				return nil, err
			}
		}
		a.directory = dir
		return persona.DirectoryLookup(dir, 2*time.Second), nil

	default:
		descs, err := persona.LoadFile(pc.Path)
		if err != nil {
			return nil, err
		}
		mem := persona.NewMemoryDirectory(descs...)
		a.directory = mem
		a.logger.Info("personas loaded", zap.String("path", pc.Path), zap.Int("count", mem.Len()))

		if pc.Watch {
			if err := a.watchPersonas(ctx, mem, pc.Path); err != nil {
				return nil, err
			}
		}
		return mem.Lookup, nil
	}
}

func (a *app) seedDatabase(ctx context.Context, path string) error {
	descs, err := persona.LoadFile(path)
	if err != nil {
		return err
	}
	err = a.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return persona.NewGormDirectory(tx, a.logger).Upsert(ctx, descs...)
	})
	if err != nil {
		return fmt.Errorf("seed personas: %w", err)
	}
	a.logger.Info("personas seeded", zap.String("path", path), zap.Int("count", len(descs)))
	return nil
}

// watchPersonas reloads mem whenever the file changes. A broken or removed
// file keeps the last good set.
func (a *app) watchPersonas(ctx context.Context, mem *persona.MemoryDirectory, path string) error {
	w, err := config.NewFileWatcher([]string{path}, config.WithWatcherLogger(a.logger))
	if err != nil {
		return err
	}
	w.OnChange(func(ev config.FileEvent) {
		a.reloadPersonas(mem, ev)
	})
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	a.watcher = w
	return nil
}

func (a *app) reloadPersonas(mem *persona.MemoryDirectory, ev config.FileEvent) {
	if ev.Op == config.FileOpRemove {
		a.logger.Warn("persona file removed, keeping current personas", zap.String("path", ev.Path))
		return
	}
	descs, err := persona.LoadFile(ev.Path)
	if err != nil {
		a.logger.Warn("persona reload failed, keeping current personas",
			zap.String("path", ev.Path), zap.Error(err))
		return
	}
	mem.Replace(descs...)
	a.logger.Info("personas reloaded", zap.String("path", ev.Path), zap.Int("count", len(descs)))
}

func (a *app) newGenerator() generation.Generator {
	gc := a.cfg.Generation
	if gc.Provider != "openai" {
		return generation.NewTemplateGenerator(newRandSource(a.cfg.Conversation.Seed))
	}

	reqOpts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(tlsutil.HTTPClient(0)),
	}
	if gc.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(gc.APIKey))
	}
	if gc.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(gc.BaseURL))
	}
	client := oai.NewClient(reqOpts...)
	return openai.NewGeneratorFromClient(&client, func(o *openai.Options) {
		o.Model = gc.Model
		o.Temperature = gc.Temperature
		o.MaxCompletionTokens = int64(gc.MaxTokens)
		o.HistoryTokenBudget = gc.HistoryTokenBudget
	})
}

// DefaultParticipants returns the first n persona ids of the directory.
func (a *app) DefaultParticipants(ctx context.Context, n int) ([]string, error) {
	descs, err := a.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := persona.IDs(descs)
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids, nil
}

// Ready reports whether the backing services answer.
func (a *app) Ready(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close stops runs first, then the background loops, then the connections.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.orchestrator != nil {
		if err := a.orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator: %w", err))
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.stopEvictor != nil {
		a.stopEvictor()
		<-a.evictorDone
	}
	// 镜像写入需在 Redis 连接关闭前完成
	if a.mirror != nil {
		if err := a.mirror.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("room mirror: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

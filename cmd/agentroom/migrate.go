package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

var errMigrateUsage = errors.New("usage: agentroom migrate <up|down|steps|goto|force|version|status> [options]")

func runMigrate(args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrateCommand(ctx, args, os.Stdout); err != nil {
		if errors.Is(err, errMigrateUsage) {
			printMigrateUsage()
		}
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// migrateCommand runs one migrate subcommand against the configured persona
// database. The subcommand comes first; flags and a numeric argument follow.
func migrateCommand(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errMigrateUsage
	}
	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage()
		return nil
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "Path to config file")
	driver := fs.String("driver", "", "Database driver override: postgres, mysql, sqlite")
	verbose := fs.Bool("verbose", false, "Log each migration step")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}

	logger := zap.NewNop()
	if *verbose {
		cfg.Log.OutputPaths = []string{"stderr"}
		cfg.Log.Level = "debug"
		logger = initLogger(cfg.Log)
		defer func() { _ = logger.Sync() }()
	}

	m, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	cli.SetOutput(out)

	switch sub {
	case "up":
		return cli.RunUp(ctx)
	case "down":
		return cli.RunDown(ctx)
	case "version":
		return cli.RunVersion(ctx)
	case "status":
		return cli.RunStatus(ctx)
	case "steps":
		n, err := intArg(fs)
		if err != nil {
			return err
		}
		return cli.RunSteps(ctx, n)
	case "goto":
		n, err := intArg(fs)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("goto version must not be negative: %d", n)
		}
		return cli.RunGoto(ctx, uint(n))
	case "force":
		n, err := intArg(fs)
		if err != nil {
			return err
		}
		return cli.RunForce(ctx, n)
	default:
		return fmt.Errorf("unknown migrate subcommand %q: %w", sub, errMigrateUsage)
	}
}

func intArg(fs *flag.FlagSet) (int, error) {
	if fs.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one numeric argument: %w", errMigrateUsage)
	}
	n, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", fs.Arg(0), err)
	}
	return n, nil
}

func printMigrateUsage() {
	fmt.Println(`Persona schema migrations

Usage:
  agentroom migrate <subcommand> [options] [N]   (options before N)

Subcommands:
  up          Apply all pending migrations
  down        Roll back the last migration
  steps N     Apply N migrations, or roll back with "-- -N"
  goto N      Migrate to version N
  force N     Record version N without running migrations (clears a dirty state)
  version     Show the current version
  status      Show every migration and whether it is applied

Options:
  --config <path>     Path to configuration file (YAML)
  --driver <name>     Override database.driver: postgres, mysql, sqlite
  --verbose           Log each migration step to stderr

Examples:
  agentroom migrate up --config /etc/agentroom/agentroom.yaml
  agentroom migrate status
  agentroom migrate goto 1
  agentroom migrate force 2`)
}

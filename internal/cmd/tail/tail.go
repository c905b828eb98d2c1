// Package tail parses tail command flags and runs the sync client
// against a ledger server.
package tail

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/soundfield/touchledger/internal/ledger/api/httpapi"
	"github.com/soundfield/touchledger/internal/ledger/domain"
	entrypoint "github.com/soundfield/touchledger/internal/platform/cmd"
	"github.com/soundfield/touchledger/internal/replay"
	"github.com/soundfield/touchledger/internal/sync"
)

// Modes the tail command runs in.
const (
	ModeTail     = "tail"
	ModeBackfill = "backfill"
	ModeReplay   = "replay"
)

// Config holds tail command configuration.
type Config struct {
	Server       string        `env:"TOUCHLEDGER_TAIL_SERVER" envDefault:"http://localhost:8080"`
	SessionID    uint64        `env:"TOUCHLEDGER_TAIL_SESSION"`
	Mode         string        `env:"TOUCHLEDGER_TAIL_MODE" envDefault:"tail"`
	TickInterval time.Duration `env:"TOUCHLEDGER_TAIL_TICK" envDefault:"1s"`
	ChunkSize    uint64        `env:"TOUCHLEDGER_TAIL_CHUNK"`
	RecentWindow uint64        `env:"TOUCHLEDGER_TAIL_WINDOW"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Server, "server", cfg.Server, "Ledger server base URL")
	fs.Uint64Var(&cfg.SessionID, "session", cfg.SessionID, "Session id to follow")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "One of tail, backfill, replay")
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Live tail poll interval")
	fs.Uint64Var(&cfg.ChunkSize, "chunk", cfg.ChunkSize, "Backfill chunk width in slots")
	fs.Uint64Var(&cfg.RecentWindow, "window", cfg.RecentWindow, "Backfill window when the session start is unknown")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config before running.
func (cfg Config) Validate() error {
	if cfg.SessionID == 0 {
		return fmt.Errorf("session id is required")
	}
	switch cfg.Mode {
	case ModeTail, ModeBackfill, ModeReplay:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// Run executes the tail command until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTail, func(ctx context.Context) error {
		reader := httpapi.NewClient(cfg.Server, nil)
		switch cfg.Mode {
		case ModeTail:
			return runTail(ctx, reader, cfg)
		case ModeBackfill:
			return runBackfill(ctx, reader, cfg)
		default:
			return runReplay(ctx, reader, cfg)
		}
	})
}

func syncConfig(cfg Config) sync.Config {
	return sync.Config{
		TickInterval: cfg.TickInterval,
		ChunkSize:    cfg.ChunkSize,
		RecentWindow: cfg.RecentWindow,
	}
}

func runTail(ctx context.Context, reader sync.Reader, cfg Config) error {
	client := sync.New(reader, cfg.SessionID, printEvent, syncConfig(cfg))
	client.Start(ctx)
	defer client.Stop()

	log.Printf("tailing session %d on %s", cfg.SessionID, cfg.Server)
	<-ctx.Done()
	return nil
}

func runBackfill(ctx context.Context, reader sync.Reader, cfg Config) error {
	client := sync.New(reader, cfg.SessionID, nil, syncConfig(cfg))
	events, err := client.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	for _, evt := range events {
		printEvent(evt)
	}
	log.Printf("backfilled %d events for session %d", len(events), cfg.SessionID)
	return nil
}

func runReplay(ctx context.Context, reader sync.Reader, cfg Config) error {
	client := sync.New(reader, cfg.SessionID, nil, syncConfig(cfg))
	events, err := client.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	scheduler := replay.NewScheduler(replay.Config{})
	if err := scheduler.Play(events, printEvent); err != nil {
		if errors.Is(err, replay.ErrEmptySequence) {
			log.Printf("session %d has no events to replay", cfg.SessionID)
			return nil
		}
		return fmt.Errorf("replay: %w", err)
	}
	defer scheduler.Stop()

	log.Printf("replaying %d events for session %d", len(events), cfg.SessionID)
	<-ctx.Done()
	return nil
}

func printEvent(evt domain.TouchEvent) {
	log.Printf("session=%d seq=%d slot=%d idx=%d actor=%s touch=(%d,%d)",
		evt.SessionID, evt.SessionSequence, evt.Slot, evt.SlotLocalIndex,
		evt.Actor, evt.X, evt.Y)
}

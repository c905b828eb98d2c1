// Package ledger parses ledger server flags and starts the HTTP API.
package ledger

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/soundfield/touchledger/internal/ledger/api/httpapi"
	"github.com/soundfield/touchledger/internal/ledger/service"
	"github.com/soundfield/touchledger/internal/ledger/slot"
	"github.com/soundfield/touchledger/internal/ledger/storage/sqlite"
	entrypoint "github.com/soundfield/touchledger/internal/platform/cmd"
)

const shutdownTimeout = 5 * time.Second

// Config holds ledger server configuration.
type Config struct {
	Port         int           `env:"TOUCHLEDGER_LEDGER_PORT" envDefault:"8080"`
	Addr         string        `env:"TOUCHLEDGER_LEDGER_ADDR"`
	DBPath       string        `env:"TOUCHLEDGER_LEDGER_DB" envDefault:"touchledger.sqlite"`
	Admin        string        `env:"TOUCHLEDGER_LEDGER_ADMIN"`
	SlotGenesis  string        `env:"TOUCHLEDGER_SLOT_GENESIS"`
	SlotInterval time.Duration `env:"TOUCHLEDGER_SLOT_INTERVAL" envDefault:"1s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The ledger server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The ledger server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the ledger sqlite database")
	fs.StringVar(&cfg.Admin, "admin", cfg.Admin, "Admin identity allowed to end any session")
	fs.StringVar(&cfg.SlotGenesis, "slot-genesis", cfg.SlotGenesis, "Slot genesis timestamp (RFC 3339, defaults to process start)")
	fs.DurationVar(&cfg.SlotInterval, "slot-interval", cfg.SlotInterval, "Slot duration")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SlotSource builds the slot source described by the config.
func (cfg Config) SlotSource() (*slot.IntervalSource, error) {
	genesis := time.Now()
	if cfg.SlotGenesis != "" {
		parsed, err := time.Parse(time.RFC3339, cfg.SlotGenesis)
		if err != nil {
			return nil, fmt.Errorf("parse slot genesis: %w", err)
		}
		genesis = parsed
	}
	return slot.NewIntervalSource(genesis, cfg.SlotInterval, nil), nil
}

// Run starts the ledger API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedger, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	slots, err := cfg.SlotSource()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	ledger := service.New(store, slots, service.WithAdmin(cfg.Admin))

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewServer(ledger, log.Default()),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("ledger listening on %s (db %s)", addr, cfg.DBPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

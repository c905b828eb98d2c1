package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tailcmd "github.com/soundfield/touchledger/internal/cmd/tail"
	"github.com/soundfield/touchledger/internal/platform/config"
)

func main() {
	cfg, err := tailcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		config.Exitf("invalid flags: %v", err)
	}
	log.SetPrefix("[TAIL] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tailcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

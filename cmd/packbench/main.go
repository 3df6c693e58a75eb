// ABOUTME: CLI entrypoint for the packing workbench control-panel server.
// ABOUTME: Wires together the document store, packing client, panel store, retention sweeper, and HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/allen-cell-animated/packing-workbench/docstore"
	"github.com/allen-cell-animated/packing-workbench/packing"
	"github.com/allen-cell-animated/packing-workbench/panel"
	"github.com/allen-cell-animated/packing-workbench/web"
)

var version = "dev"

// cliConfig holds flags layered on top of the environment configuration.
type cliConfig struct {
	showVersion bool
	bind        string
	seedFile    string
	skipPreload bool
}

func main() {
	if err := web.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("packbench %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated cliConfig.
func parseFlags() cliConfig {
	var cfg cliConfig

	fs := flag.NewFlagSet("packbench", flag.ContinueOnError)
	fs.StringVar(&cfg.bind, "bind", "", "Socket address to listen on (overrides PACKWB_BIND)")
	fs.StringVar(&cfg.seedFile, "seed", "", "YAML fixtures file to load at startup (overrides PACKWB_SEED)")
	fs.BoolVar(&cfg.skipPreload, "no-preload", false, "Skip loading all recipes at startup")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	return cfg
}

// run builds the full service graph and serves until interrupted.
// Returns an exit code: 0 for success, 1 for failure.
func run(cli cliConfig) int {
	cfg, err := web.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if cli.bind != "" {
		cfg.Bind = cli.bind
	}
	if cli.seedFile != "" {
		cfg.SeedFile = cli.seedFile
	}

	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: create data dir %s: %v\n", cfg.Home, err)
		return 1
	}

	store, err := docstore.OpenSqlite(cfg.Home + "/documents.db")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open document store: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	if cfg.SeedFile != "" {
		n, err := docstore.SeedFromFile(ctx, store, cfg.SeedFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: load seed file %s: %v\n", cfg.SeedFile, err)
			return 1
		}
		log.Printf("component=main action=seed_loaded file=%s docs=%d", cfg.SeedFile, n)
	}

	client := packing.NewClient(cfg.SubmitURL, cfg.ViewerURL, store)
	panelStore := panel.New(store, client)

	if err := panelStore.LoadInputOptions(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: load packing inputs: %v\n", err)
		return 1
	}
	if !cli.skipPreload {
		if err := panelStore.LoadAllRecipes(ctx); err != nil {
			// keep serving; recipes load on demand through the API
			log.Printf("component=main action=preload_failed err=%v", err)
		}
	}

	sweeper := docstore.NewSweeper(store, cfg.SweepInterval)
	go sweeper.Run(ctx)

	server := web.NewServer(panelStore, cfg.Bind, cfg.AuthToken)

	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()

	select {
	case err := <-errChan:
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	case <-ctx.Done():
	}

	return 0
}

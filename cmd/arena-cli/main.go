package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codearena/internal/cli/command"
	"codearena/internal/cli/config"
	httpclient "codearena/internal/cli/http"
	"codearena/internal/cli/repl"
	"codearena/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := flag.String("token", "", "Override access token for this run")
	sessionPath := flag.String("session", "", "Override session file path")
	raw := flag.Bool("raw", false, "Print response bodies without indentation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *sessionPath != "" {
		cfg.SessionPath = *sessionPath
	}

	store := state.NewStore(cfg.SessionPath)
	session, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session failed: %v\n", err)
		os.Exit(1)
	}
	base := cfg.BaseURL
	if session.BaseURL != "" {
		base = session.BaseURL
	}
	if *baseURL != "" {
		base = *baseURL
	}
	if *token != "" {
		session.Token = *token
	}

	rl, err := repl.NewReadline(cfg.HistoryFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open terminal failed: %v\n", err)
		os.Exit(1)
	}

	client := httpclient.New(base, cfg.Timeout, func() string {
		return session.Token
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	pretty := *cfg.PrettyJSON && !*raw
	repl.New(client, command.Registry(), &session, store, pretty, rl, rl.Stdout()).Run(ctx)
}

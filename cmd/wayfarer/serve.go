package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wayfarerhq/wayfarer/internal/agent"
	"github.com/wayfarerhq/wayfarer/internal/agent/ai"
	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/db"
	"github.com/wayfarerhq/wayfarer/internal/executor"
	"github.com/wayfarerhq/wayfarer/internal/realtime"
	"github.com/wayfarerhq/wayfarer/internal/scheduler"
	"github.com/wayfarerhq/wayfarer/internal/server"
	"github.com/wayfarerhq/wayfarer/internal/session"
	"github.com/wayfarerhq/wayfarer/internal/tools"
)

// runServe boots the full runtime: database, agent, scheduler, and HTTP
// server. Blocks until interrupted.
func runServe(cfg *config.Config) {
	if !cfg.Configured() {
		fmt.Fprintln(os.Stderr, "No API key configured.")
		fmt.Fprintf(os.Stderr, "Set ANTHROPIC_API_KEY or OPENAI_API_KEY, or edit %s\n", config.Path())
		os.Exit(1)
	}

	if err := cfg.EnsureDirs(); err != nil {
		fatal("initialize directories: %v", err)
	}

	sqlDB, err := db.Open(cfg.DBPath())
	if err != nil {
		fatal("open database: %v", err)
	}
	defer sqlDB.Close()

	var provider ai.Provider
	if cfg.Provider == "ollama" {
		if !ai.CheckOllamaAvailable(cfg.OllamaURL) {
			fmt.Fprintln(os.Stderr, "Warning: Ollama is not reachable, is it running?")
		}
		provider = ai.NewOllamaProvider(cfg.OllamaURL, cfg.Model)
	} else {
		var err error
		provider, err = ai.New(cfg.Provider, cfg.APIKey, cfg.Model)
		if err != nil {
			fatal("%v", err)
		}
	}

	sessions := session.NewStore(sqlDB)
	registry := tools.NewDefaultRegistry(cfg)
	defer registry.Close()
	runner := agent.NewRunner(sessions, provider, registry, cfg)

	exec := executor.New()
	defer exec.Stop()

	hub := realtime.NewHub()

	jobs := scheduler.NewStore(sqlDB)
	engine := scheduler.NewEngine(jobs, exec, func(ctx context.Context, job scheduler.Job) (string, error) {
		// Every fire gets its own session so unattended runs never touch
		// the interactive conversation.
		return runner.RunTurn(ctx, session.ScheduledKey(), job.Task, nil)
	})
	if err := engine.Start(); err != nil {
		fatal("start scheduler: %v", err)
	}
	defer engine.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	fmt.Printf("Wayfarer ready at http://%s:%d (workspace: %s)\n", cfg.Host, cfg.Port, cfg.Workspace)

	srv := server.New(cfg, sessions, runner, exec, hub, jobs, engine, ai.NewModelCatalog(provider))
	if err := srv.Run(ctx); err != nil {
		fatal("server: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/testagent/internal/api"
	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/events"
	"github.com/mattjoyce/testagent/internal/history"
	"github.com/mattjoyce/testagent/internal/lock"
	"github.com/mattjoyce/testagent/internal/log"
	"github.com/mattjoyce/testagent/internal/storage"
	"github.com/mattjoyce/testagent/internal/workspace"
)

const eventBufferSize = 256

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen, baseDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Agent.Listen = listen
			}
			if baseDir != "" {
				cfg.Agent.BaseDir = baseDir
			}
			return runServe(cmd.Context(), root, cfg.Agent.Listen, cfg.Agent.BaseDir)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides agent.listen)")
	cmd.Flags().StringVar(&baseDir, "base-dir", "", "workspace root (overrides agent.base_dir)")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, listen, baseDir string) error {
	cfg := root.cfg
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("testagent starting", "version", version, "config", cfg.SourcePath, "base_dir", baseDir)

	if err := storage.CheckLocal(baseDir); err != nil {
		if errors.Is(err, storage.ErrNetworkFilesystem) {
			return err
		}
		logger.Warn("could not check base dir filesystem", "base_dir", baseDir, "error", err)
	}

	pidLock, err := lock.ForDir(baseDir)
	if err != nil {
		return fmt.Errorf("acquire lock on %s (another agent may be running): %w", baseDir, err)
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	sig, err := command.ParseSignal(cfg.Agent.DefaultSignal)
	if err != nil {
		return fmt.Errorf("agent.default_signal: %w", err)
	}

	hub := events.NewHub(eventBufferSize)
	bridge := events.NewBridge(hub)

	execOpts := []command.Option{
		command.WithLogger(log.WithComponent("command")),
		command.WithDefaultSignal(sig),
		command.WithWaitDelay(cfg.Agent.WaitDelay),
		command.WithObserver(bridge),
	}
	storeOpts := []workspace.Option{
		workspace.WithRetention(cfg.Agent.Retention),
		workspace.WithLogger(log.WithComponent("workspace")),
		workspace.WithObserver(bridge),
	}
	apiOpts := []api.Option{api.WithEvents(hub)}

	if cfg.Metrics.Enabled {
		metrics := api.NewMetrics(cfg.Metrics.Namespace)
		execOpts = append(execOpts, command.WithObserver(metrics))
		storeOpts = append(storeOpts, workspace.WithObserver(metrics))
		apiOpts = append(apiOpts, api.WithMetrics(metrics))
	}

	if cfg.History.Path != "" {
		journal, err := history.Open(ctx, cfg.History.Path, cfg.History.Limit, log.WithComponent("history"))
		if err != nil {
			return fmt.Errorf("open history %s: %w", cfg.History.Path, err)
		}
		defer journal.Close()
		execOpts = append(execOpts, command.WithObserver(journal))
		apiOpts = append(apiOpts, api.WithHistory(journal))
		logger.Info("history journal enabled", "path", cfg.History.Path)
	}

	exec := command.NewExecutor(execOpts...)
	store, err := workspace.NewStore(baseDir, append(storeOpts, workspace.WithKiller(exec))...)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}

	srv := api.New(api.Config{
		Listen:          listen,
		ShutdownTimeout: cfg.Agent.ShutdownTimeout,
	}, store, exec, log.WithComponent("api"), apiOpts...)

	logger.Info("testagent running (press Ctrl+C to stop)", "listen", listen)
	err = srv.Start(ctx)
	store.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("testagent stopped")
		return nil
	}
	return err
}

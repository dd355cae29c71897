package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wasmfactors/runtime/internal/host"
	"github.com/wasmfactors/runtime/internal/observability/logging"
	"github.com/wasmfactors/runtime/internal/runtimeconfig"
	"github.com/wasmfactors/runtime/internal/trigger"
	httptrigger "github.com/wasmfactors/runtime/internal/trigger/http"
	redistrigger "github.com/wasmfactors/runtime/internal/trigger/redis"
	wstrigger "github.com/wasmfactors/runtime/internal/trigger/websocket"
)

func newServeCmd() *cobra.Command {
	var runtimeConfigPath string
	var hostConfigPath string

	cmd := &cobra.Command{
		Use:   "serve <manifest.toml>",
		Short: "Load a manifest and drive its configured triggers until terminated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args[0], runtimeConfigPath, hostConfigPath)
		},
	}
	cmd.Flags().StringVar(&runtimeConfigPath, "runtime-config", "", "path to runtime-config.toml")
	cmd.Flags().StringVar(&hostConfigPath, "host-config", "", "path to the host process's own config.toml")
	return cmd
}

func runServe(ctx context.Context, manifestPath, runtimeConfigPath, hostConfigPath string) error {
	hostCfg, err := runtimeconfig.Load(hostConfigPath)
	if err != nil {
		return fmt.Errorf("loading host config: %w", err)
	}
	logger := logging.New(logging.Config{
		Level:  hostCfg.Log.Level,
		Format: hostCfg.Log.Format,
		Output: hostCfg.Log.Output,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := host.Load(ctx, host.Options{
		ManifestPath:      manifestPath,
		RuntimeConfigPath: runtimeConfigPath,
		Engine:            hostCfg.Engine,
		Stdio:             hostCfg.Stdio,
	})
	if err != nil {
		return fmt.Errorf("loading app: %w", err)
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Error("engine close failed", "error", err)
		}
	}()

	httpTrig := httptrigger.New(httptrigger.Options{
		ListenAddr:        hostCfg.Triggers.HTTP.ListenAddr,
		ReadTimeout:       hostCfg.Triggers.HTTP.ReadTimeout,
		WriteTimeout:      hostCfg.Triggers.HTTP.WriteTimeout,
		ShutdownTimeout:   hostCfg.Triggers.HTTP.ShutdownTimeout,
		MaxRequestsPerSec: hostCfg.Triggers.HTTP.MaxRequestsPerSec,
		RateLimitBurst:    hostCfg.Triggers.HTTP.RateLimitBurst,
		Logger:            logger,
	})
	app.OutboundHTTPState.SetInterceptor(httpTrig.Interceptor(app.Executor))

	redisTrig := redistrigger.New(redistrigger.Options{
		Addr:     hostCfg.Triggers.Redis.Addr,
		Password: hostCfg.Triggers.Redis.Password,
		DB:       hostCfg.Triggers.Redis.DB,
		Logger:   logger,
	})

	wsTrig := wstrigger.New(wstrigger.Options{
		ListenAddr:      hostCfg.Triggers.WebSocket.ListenAddr,
		ShutdownTimeout: hostCfg.Triggers.WebSocket.ShutdownTimeout,
		Logger:          logger,
	})

	cfg := trigger.Config{Triggers: app.Locked.Triggers}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpTrig.Run(gctx, app.Executor, cfg) })
	g.Go(func() error { return redisTrig.Run(gctx, app.Executor, cfg) })
	g.Go(func() error { return wsTrig.Run(gctx, app.Executor, cfg) })

	logger.Info("wasmfactors runtime serving", "app", app.Locked.Name, "version", app.Locked.Version)
	return g.Wait()
}

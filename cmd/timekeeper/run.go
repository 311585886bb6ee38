// ABOUTME: The run subcommand: sets up channels, then serves chat commands
// ABOUTME: Runs the Matrix sync loop and the optional metrics endpoint together

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-timekeeper/internal/bot"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Matrix and serve chat commands",
		RunE:  withApp(runBot),
	}
}

func runBot(ctx context.Context, a *app) error {
	if a.matrix == nil {
		return fmt.Errorf("run needs the matrix backend, config has %q", a.cfg.Backend)
	}

	printBanner()
	startupLine("homeserver", a.cfg.Matrix.Homeserver)
	startupLine("user", a.cfg.Matrix.UserID)
	startupLine("guild", a.cfg.Guild)
	startupLine("timezone", a.cfg.Location.String())

	report, err := a.service.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setting up channels: %w", err)
	}
	for _, w := range report.Warnings {
		a.logger.Warn("setup", "warning", w)
	}

	bridge := bot.NewBridge(bot.BridgeConfig{
		CommandPrefix: a.cfg.Bridge.CommandPrefix,
		AllowedRooms:  a.cfg.Bridge.AllowedRooms,
		AllowedUsers:  a.cfg.Bridge.AllowedUsers,
	}, a.matrix, bot.NewCommands(a.service), a.seen, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bridge.Run(gctx)
	})

	if a.cfg.Metrics.Enabled {
		startupLine("metrics", "http://"+a.cfg.Metrics.ListenAddr+a.cfg.Metrics.Path)
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.metrics.Handler())
		srv := &http.Server{
			Addr:              a.cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	fmt.Println()

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutting down")
		return nil
	}
	return err
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/profile-refinery/internal/api"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			listen := resolvePort(port, appInstance.Config().Server.Port)
			if err := appInstance.Config().CheckListenPort(listen); err != nil {
				return err
			}
			return serve(ctx, appInstance, listen)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to server.port, or PORT when set)")
	return cmd
}

// resolvePort prefers the flag, then PORT as set by Cloud Run, then config.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort > 0 {
		return flagPort
	}
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && p > 0 {
		return p
	}
	return cfgPort
}

func serve(ctx context.Context, appInstance App, port int) error {
	cfg := appInstance.Config()
	logger := appInstance.Logger()
	runner := appInstance.Runner()

	runs := api.NewRunHandler(ctx, runner, api.NewLogBuffer(cfg.Server.LogLines), logger.Named("api"))
	records := api.NewRecordsHandler(appInstance.Store(), runner, logger.Named("api"))
	apiServer := api.NewServer(cfg, runs, records, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		if runner.Running() {
			runner.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	logger.Info("shutdown complete")
	return err
}

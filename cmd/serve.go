package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekballo/heatmap-api/internal/api"
	"github.com/ekballo/heatmap-api/internal/cache"
	"github.com/ekballo/heatmap-api/internal/reports"
	"github.com/ekballo/heatmap-api/internal/saturation"
)

var servePort int

// lateInvalidator breaks the construction cycle between the report
// service (which fires invalidations) and the saturation service
// (which owns the cache entries being invalidated).
type lateInvalidator struct {
	target reports.Invalidator
}

func (l *lateInvalidator) InvalidateReports(ctx context.Context) error {
	if l.target == nil {
		return nil
	}
	return l.target.InvalidateReports(ctx)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the heatmap HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := cache.Open(cfg.Cache)
		if err != nil {
			return err
		}
		defer c.Close()

		policy := policyFromConfig(cfg.Saturation)

		inv := &lateInvalidator{}
		reportsSvc := reports.NewService(env.reports, env.units, inv, cfg.Saturation.PostType)

		satSvc, err := saturation.NewService(env.units, reportsSvc, c, policy)
		if err != nil {
			return err
		}
		inv.target = satSvc

		handler := api.NewHandler(satSvc, reportsSvc, policy.GlobalDivisor)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		addr := fmt.Sprintf(":%d", port)

		srv := &http.Server{
			Addr:              addr,
			Handler:           handler.Router(cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.String("addr", addr),
			zap.String("namespace", cfg.Server.Namespace),
			zap.String("cache", cfg.Cache.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

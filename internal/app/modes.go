package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cryptodash/internal/dashboard"
	"github.com/alanyoungcy/cryptodash/internal/pipeline"
	"github.com/alanyoungcy/cryptodash/internal/server"
	"github.com/alanyoungcy/cryptodash/internal/server/handler"
	"github.com/alanyoungcy/cryptodash/internal/server/ws"
	"github.com/alanyoungcy/cryptodash/internal/service"
)

// StandaloneMode serves the dashboard from one process with no external
// infrastructure.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")
	return a.serve(ctx, deps)
}

// FullMode additionally shares snapshots between replicas through Redis,
// records history in PostgreSQL and, when enabled, archives old history to
// S3.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.serve(ctx, deps)
}

// serve builds the service layer on top of deps and runs the HTTP server,
// WebSocket hub and poller, plus the snapshot follower and archiver when
// their infrastructure is present.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	var svc *service.DashboardService
	hub := ws.NewHub(service.ChannelDashboard, func() ([]byte, error) { return svc.StateMessage() }, a.logger)
	hub.AllowOrigins(a.cfg.Server.CORSOrigins...)

	svcDeps := service.DashboardDeps{
		Source:  deps.Source,
		Cache:   deps.SnapshotCache,
		History: deps.History,
		Bus:     deps.SignalBus,
		Local:   hub,
		Logger:  a.logger,
	}
	if deps.Notifier != nil {
		svcDeps.Notifier = deps.Notifier
	}
	svc = service.NewDashboardService(svcDeps)

	if err := svc.WarmStart(ctx); err != nil {
		a.logger.WarnContext(ctx, "warm start failed", slog.String("error", err.Error()))
	}

	poller := pipeline.NewMarketPoller(svc, deps.LockManager, deps.SnapshotCache, pipeline.PollerConfig{
		Interval:     a.cfg.Dashboard.RefreshInterval.Duration,
		FetchTimeout: a.cfg.CoinGecko.Timeout.Duration,
		LockTTL:      a.cfg.Dashboard.PollLockTTL.Duration,
	}, a.logger)

	renderer, err := dashboard.NewRenderer()
	if err != nil {
		return err
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RefreshRateLimit:  a.cfg.Server.RefreshRateLimit,
		RefreshRateWindow: a.cfg.Server.RefreshRateWindow.Duration,
	}, server.Handlers{
		Dashboard: handler.NewDashboardHandler(svc, renderer, deps.Sessions, a.cfg.Dashboard.SessionTTL.Duration, a.logger),
		Assets:    handler.NewAssetHandler(svc, a.logger),
		Refresh:   handler.NewRefreshHandler(svc, poller, a.logger),
		Status:    handler.NewStatusHandler(svc, a.cfg.Mode, svc.InstanceID(), a.startedAt),
		Health:    handler.NewHealthHandler(deps.HealthChecks),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return ignoreCanceled(hub.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(poller.RunLoop(ctx)) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if deps.SignalBus != nil {
		follower := pipeline.NewSnapshotFollower(svc, deps.SignalBus, service.ChannelSnapshots, svc.InstanceID(), a.logger)
		g.Go(func() error { return ignoreCanceled(follower.Run(ctx)) })
	}

	if deps.Archiver != nil {
		archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error { return ignoreCanceled(archiver.RunCron(ctx, a.cfg.Archive.Cron)) })
	}

	return g.Wait()
}

// ignoreCanceled treats context cancellation as a clean exit so a normal
// shutdown does not surface as a group error.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    appcfg "github.com/park285/cheese-duel/internal/config"
    "github.com/park285/cheese-duel/internal/duelbuilder"
    "github.com/park285/cheese-duel/internal/obslog"
    "go.uber.org/zap"
)

func main() {
    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    logger, err := obslog.Init(cfg.Log.Options())
    if err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer func() { _ = logger.Sync() }()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    deps, err := duelbuilder.New(ctx, cfg, logger)
    if err != nil {
        logger.Fatal("init_error", zap.Error(err))
    }
    defer func() { _ = deps.Close() }()

    // Restore sessions that survived a restart; failures are not fatal
    rctx, rcancel := context.WithTimeout(ctx, 30*time.Second)
    if n, err := deps.Coordinator.Restore(rctx); err != nil {
        logger.Warn("restore_error", zap.Error(err))
    } else if n > 0 {
        logger.Info("sessions_restored", zap.Int("count", n))
    }
    rcancel()

    go deps.Coordinator.Run(ctx, cfg.SweepInterval)

    srv := &http.Server{
        Addr:              cfg.HTTPAddr,
        Handler:           deps.Handler(cfg, logger),
        ReadHeaderTimeout: 10 * time.Second,
    }
    errCh := make(chan error, 1)
    go func() {
        logger.Info("server_listen",
            zap.String("addr", cfg.HTTPAddr),
            zap.Bool("rules_endpoint", cfg.ServeRulesEndpoint),
            zap.Duration("disconnect_grace", cfg.DisconnectGrace),
        )
        errCh <- srv.ListenAndServe()
    }()

    select {
    case <-ctx.Done():
    case err := <-errCh:
        if err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("server_error", zap.Error(err))
        }
    }

    logger.Info("server_shutdown")
    sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer scancel()
    deps.Hub.CloseAll("server shutdown")
    if err := srv.Shutdown(sctx); err != nil {
        logger.Warn("shutdown_error", zap.Error(err))
    }
}

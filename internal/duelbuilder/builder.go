package duelbuilder

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/park285/cheese-duel/internal/chat"
    "github.com/park285/cheese-duel/internal/config"
    "github.com/park285/cheese-duel/internal/duel"
    "github.com/park285/cheese-duel/internal/msgcat"
    "github.com/park285/cheese-duel/internal/obslog"
    "github.com/park285/cheese-duel/internal/rules"
    "github.com/park285/cheese-duel/internal/store"
    "github.com/park285/cheese-duel/internal/transport"
    "go.uber.org/zap"
)

type Deps struct {
    Oracle      rules.Oracle
    Snapshots   store.Store
    Catalog     *msgcat.Catalog
    Relay       *chat.Relay
    Coordinator *duel.Coordinator
    Hub         *transport.Hub
}

// New wires every server dependency from cfg.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
    if cfg == nil {
        return nil, fmt.Errorf("nil config")
    }
    if logger == nil {
        logger = obslog.L()
    }

    catalog, err := msgcat.New(cfg.MessagesDir)
    if err != nil {
        return nil, fmt.Errorf("load messages: %w", err)
    }

    // Oracle: remote when ORACLE_URL is set, otherwise in-process
    var oracle rules.Oracle
    if u := strings.TrimSpace(cfg.OracleURL); u != "" {
        oracle = rules.NewRemote(u, rules.WithTimeout(cfg.OracleTimeout), rules.WithRetry(cfg.OracleRetry))
        logger.Info("oracle_remote", zap.String("url", u))
    } else {
        oracle = rules.NewLocal()
    }

    // Snapshots: Redis when REDIS_URL is set, otherwise memory
    var snapshots store.Store
    if strings.TrimSpace(cfg.RedisURL) != "" {
        pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
        defer cancel()
        rs, err := store.OpenRedis(pctx, cfg.RedisURL, cfg.SnapshotTTL)
        if err != nil {
            return nil, fmt.Errorf("init snapshot store: %w", err)
        }
        snapshots = rs
    } else {
        snapshots = store.NewMemory()
    }

    relay := chat.NewRelay(
        chat.WithHistoryLimit(cfg.ChatHistoryLimit),
        chat.WithMaxRunes(cfg.ChatMaxRunes),
        chat.WithSystemName(catalog.RenderOr("system.sender", nil, "System")),
        chat.WithLogger(logger),
    )

    coord, err := duel.NewCoordinator(duel.NewRegistry(), duel.Config{
        Oracle:          oracle,
        Relay:           relay,
        Snapshots:       snapshots,
        Catalog:         catalog,
        Logger:          logger,
        OracleTimeout:   cfg.OracleTimeout,
        DisconnectGrace: cfg.DisconnectGrace,
        WaitingTimeout:  cfg.WaitingTimeout,
    })
    if err != nil {
        _ = snapshots.Close()
        return nil, err
    }

    hub := transport.NewHub(coord, transport.Options{
        AllowedOrigins:     cfg.AllowedOrigins,
        MaxFramesPerSecond: cfg.MaxFramesPerSecond,
        OutboundBuffer:     cfg.OutboundBuffer,
        PingInterval:       cfg.PingInterval,
        Catalog:            catalog,
        Logger:             logger,
    })

    return &Deps{Oracle: oracle, Snapshots: snapshots, Catalog: catalog, Relay: relay, Coordinator: coord, Hub: hub}, nil
}

// Handler returns the HTTP routes of the server: /ws, /health, /sessions/{id}
// and, when enabled, the rules oracle under /rules/.
func (d *Deps) Handler(cfg *config.AppConfig, logger *zap.Logger) http.Handler {
    if logger == nil {
        logger = obslog.L()
    }
    mux := http.NewServeMux()
    mux.Handle("/ws", d.Hub)
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        w.WriteHeader(http.StatusOK)
        _, _ = fmt.Fprintf(w, "ok sessions=%d connections=%d\n", d.Coordinator.Registry().Len(), d.Hub.Len())
    })
    mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
        sum, err := d.Coordinator.Summary(r.PathValue("id"))
        if errors.Is(err, duel.ErrSessionNotFound) {
            http.Error(w, "session not found", http.StatusNotFound)
            return
        }
        if err != nil {
            logger.Warn("session_summary_error", zap.String("session_id", r.PathValue("id")), zap.Error(err))
            http.Error(w, "internal error", http.StatusInternalServerError)
            return
        }
        w.Header().Set("Content-Type", "application/json")
        _ = json.NewEncoder(w).Encode(sum)
    })
    if cfg != nil && cfg.ServeRulesEndpoint {
        mux.Handle("/rules/", http.StripPrefix("/rules", rules.Handler(d.Oracle, logger)))
    }
    return mux
}

func (d *Deps) Close() error {
    if d == nil || d.Snapshots == nil {
        return nil
    }
    return d.Snapshots.Close()
}

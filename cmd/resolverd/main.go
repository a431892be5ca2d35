// Command resolverd runs the stub resolver as a long-lived daemon: it loads
// configuration, opens the server-pool/stats database, starts the resolver's
// event loop over a UDP transport, and optionally exposes a read-only
// introspection API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jroosing/resolverd/internal/api"
	"github.com/jroosing/resolverd/internal/config"
	"github.com/jroosing/resolverd/internal/logging"
	"github.com/jroosing/resolverd/internal/resolver"
	"github.com/jroosing/resolverd/internal/store"
)

// statsPersistInterval is how often the running resolver's counters and
// server-pool health are flushed to the database, so a crash loses at most
// this much history.
const statsPersistInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	configPath string
	dbPath     string
	apiHost    string
	apiPort    int
	jsonLogs   bool
	debug      bool
	nodeID     string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.dbPath, "db", "", "Override SQLite database path")
	flag.StringVar(&f.apiHost, "api-host", "", "Override introspection API bind host")
	flag.IntVar(&f.apiPort, "api-port", 0, "Override introspection API bind port (also enables the API)")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&f.nodeID, "node-id", "", "Unique node ID (auto-generated if empty)")
	flag.Parse()
	return f
}

// applyCLIOverrides applies command-line overrides to the config.
func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.dbPath != "" {
		cfg.Store.Path = f.dbPath
	}
	if f.apiHost != "" {
		cfg.API.Host = f.apiHost
	}
	if f.apiPort != 0 {
		cfg.API.Port = f.apiPort
		cfg.API.Enabled = true
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	nodeID := flags.nodeID
	if nodeID == "" {
		nodeID = uuid.New().String()[:8]
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("resolverd starting",
		"node_id", nodeID,
		"servers", len(cfg.Resolver.Servers),
		"selection_mode", cfg.Resolver.SelectionMode,
		"db", cfg.Store.Path,
	)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if health, loadErr := db.LoadServerHealth(); loadErr == nil && len(health) > 0 {
		logger.Info("loaded persisted server health", "records", len(health))
	}

	rc := cfg.Resolver.ToResolverConfig()
	if err := rc.Normalize(); err != nil {
		return fmt.Errorf("invalid resolver config: %w", err)
	}

	transport, err := resolver.NewUDPTransport(rc.LocalAddr, logger)
	if err != nil {
		return fmt.Errorf("failed to open UDP transport: %w", err)
	}

	res, err := resolver.New(rc, transport, resolver.NewWallTimerService(), logger)
	if err != nil {
		return fmt.Errorf("failed to start resolver: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.New(cfg.API, res, nodeID, logger)
		logger.Info("introspection API starting", "addr", apiSrv.Addr())

		go func() {
			if serveErr := apiSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.Error("API server error", "err", serveErr)
				cancel()
			}
		}()
	}

	go persistLoop(ctx, db, res, logger)

	<-ctx.Done()
	logger.Info("resolverd shutting down")

	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	persistOnce(db, res, logger)

	return res.Close()
}

// persistLoop periodically flushes the resolver's counters and server pool
// health to the database until ctx is cancelled.
func persistLoop(ctx context.Context, db *store.DB, res *resolver.Resolver, logger *slog.Logger) {
	ticker := time.NewTicker(statsPersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			persistOnce(db, res, logger)
		case <-ctx.Done():
			return
		}
	}
}

func persistOnce(db *store.DB, res *resolver.Resolver, logger *slog.Logger) {
	stats := res.Stats()
	if err := db.SaveStats(store.StatsRecord{
		QueriesSubmitted:   stats.QueriesSubmitted,
		QueriesSent:        stats.QueriesSent,
		QueriesRetried:     stats.QueriesRetried,
		QueriesDelivered:   stats.QueriesDelivered,
		QueriesFailed:      stats.QueriesFailed,
		CacheHits:          stats.CacheHits,
		SendErrors:         stats.SendErrors,
		MalformedResponses: stats.MalformedResponses,
		ServersQuarantined: stats.ServersQuarantined,
	}); err != nil {
		logger.Warn("failed to persist stats", "err", err)
	}

	snap := res.Introspect()
	for _, s := range snap.Servers {
		until := time.Time{}
		if s.Quarantined {
			until = time.Now().Add(time.Hour) // approximate: exact expiry lives in the timer, not the pool
		}
		if err := db.SaveServerHealth(store.ServerHealthRecord{
			IP: s.IP, Port: s.Port, NoRspCount: s.NoRspCount, QuarantinedUntil: until,
		}); err != nil {
			logger.Warn("failed to persist server health", "server", s.Addr, "err", err)
		}
	}
}

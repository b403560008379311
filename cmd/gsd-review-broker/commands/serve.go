package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/gsdlabs/gsd-review-broker/internal/broker"
	"github.com/gsdlabs/gsd-review-broker/internal/build"
	"github.com/gsdlabs/gsd-review-broker/internal/config"
	"github.com/gsdlabs/gsd-review-broker/internal/db"
	"github.com/gsdlabs/gsd-review-broker/internal/diff"
	"github.com/gsdlabs/gsd-review-broker/internal/mcp"
	"github.com/gsdlabs/gsd-review-broker/internal/notify"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
	"github.com/gsdlabs/gsd-review-broker/internal/web"
)

// shutdownGrace bounds how long open requests may linger once a signal
// arrives.
const shutdownGrace = 5 * time.Second

// runServe is the broker daemon: open the store, wire the core, serve until
// interrupted, then checkpoint and close.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var rotCfg *build.LogRotatorConfig
	if !noRotate {
		rotCfg = build.DefaultLogRotatorConfig()
		rotCfg.LogDir = cfg.LogDir
	}
	logMgr, err := build.NewLogManager(rotCfg)
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer logMgr.Close()

	log := logMgr.Subsystem(build.SubBroker)
	log.Info("Starting gsd-review-broker",
		"version", build.Version(),
		"repo_root", cfg.RepoRoot,
	)
	if !cfg.Review.Enabled {
		log.Warn("Reviews are disabled in the project config; " +
			"serving anyway for direct clients")
	}

	path := dbPath
	if path == "" {
		path = db.DefaultDBPath(cfg.RepoRoot)
	}

	sqlite, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName: path,
	}, logMgr.Subsystem(build.SubDB))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// Close runs the WAL checkpoint-truncate; skipping it leaves
	// phantom locks behind on some platforms.
	defer sqlite.Close()

	svc := broker.NewService(
		broker.Config{
			RepoRoot: cfg.RepoRoot,
			DBPath:   path,
			Version:  build.Version(),
		},
		store.NewSQLStore(sqlite.DB, logMgr.Subsystem(build.SubStore)),
		notify.NewBus(),
		diff.NewValidator(
			cfg.RepoRoot, logMgr.Subsystem(build.SubDiff),
		),
		log,
	)

	mcpServer := mcp.NewServer(svc, build.Version())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("Shutting down")
		cancel()
	}()

	if stdio {
		// Subprocess mode: the spawning client owns the transport.
		return mcpServer.Run(ctx, &sdkmcp.StdioTransport{})
	}

	webServer, err := web.NewServer(web.Config{
		Addr:      cfg.Addr(),
		StaticDir: staticDir,
		LogDir:    cfg.LogDir,
	}, svc, logMgr.Subsystem(build.SubWeb))
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	// One loopback listener carries both surfaces: MCP tool calls under
	// /mcp, the dashboard everywhere else.
	mux := http.NewServeMux()
	mux.Handle("/mcp", sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server {
			return mcpServer.MCP()
		}, nil,
	))
	mux.Handle("/", webServer.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Broker listening", "addr", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(
		context.Background(), shutdownGrace,
	)
	defer done()

	if err := httpServer.Shutdown(shutdownCtx); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {

		log.Warn("HTTP shutdown incomplete", "err", err)
	}

	return nil
}

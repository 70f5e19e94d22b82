// Command replayctl wires a tape store, the matching/latency/error
// policies, and the management HTTP surface together from config. The real
// expect-style harness and CLI are external collaborators that import this
// module as a library and drive a transport.Transport directly; this binary
// exists to load a tape population, expose its /status and /metrics
// surface to an operator, and print the same exit summary a library caller
// gets from store.Store when a session ends.
//
// Usage:
//
//	./replayctl
//
//	# with the management surface and gops diagnostics enabled
//	MANAGEMENT_PORT=8090 MANAGEMENT_TOKEN=secret REPLAY_GOPS_AGENT=true ./replayctl
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/jimmc414/claude-cli-control/internal/config"
	"github.com/jimmc414/claude-cli-control/internal/management"
	"github.com/jimmc414/claude-cli-control/internal/metrics"
	"github.com/jimmc414/claude-cli-control/internal/replaylog"
	"github.com/jimmc414/claude-cli-control/internal/store"
)

func main() {
	cfg := config.Load()
	logger := replaylog.New("REPLAYCTL", cfg.LogLevel)

	printBanner(cfg)

	if cfg.GopsAgent {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("[REPLAYCTL] gops agent.Listen failed: %v", err)
		}
		logger.Info("start", "gops diagnostic agent listening")
	}

	s := store.New(cfg.TapesPath, cfg.IndexCacheFile, logger)
	if err := s.LoadAll(); err != nil {
		log.Fatalf("[REPLAYCTL] loading tapes from %s: %v", cfg.TapesPath, err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warnf("shutdown", "store close error: %v", err)
		}
	}()

	m := metrics.New()
	m.TapesLoaded.Store(int64(len(s.All())))

	var srv *http.Server
	if cfg.ManagementPort != 0 {
		mgmt := management.New(cfg, s, m)
		addr := fmt.Sprintf(":%d", cfg.ManagementPort)
		srv = &http.Server{
			Addr:              addr,
			Handler:           mgmt.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Infof("start", "management surface listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("[REPLAYCTL] management server: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown", "signal received, shutting down")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnf("shutdown", "management server shutdown error: %v", err)
		}
	}

	if cfg.Summary {
		printSummary(s)
	}
}

func printBanner(cfg *config.Config) {
	mgmtLine := "disabled"
	if cfg.ManagementPort != 0 {
		mgmtLine = fmt.Sprintf("http://localhost:%d", cfg.ManagementPort)
	}
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          Record/Replay Tape Transport  (Go)          ║
╚══════════════════════════════════════════════════════╝
  Tapes path      : %s
  Record mode     : %s
  Fallback mode   : %s
  Latency mode    : %s
  Error rate      : %.1f%%
  Management      : %s
  Redaction       : %v

  Check status:
    curl %s/status
`, cfg.TapesPath, cfg.Record, cfg.Fallback, cfg.LatencyMode, cfg.ErrorRate, mgmtLine, cfg.Redact, mgmtLine)
}

func printSummary(s *store.Store) {
	all := s.All()
	unused := s.UnusedTapes()
	created := s.NewTapes()
	fmt.Printf(`
── Session summary ──────────────────────────────────────
  Tapes loaded : %d
  Tapes unused : %d
  Tapes created: %d
──────────────────────────────────────────────────────────
`, len(all), len(unused), len(created))
}

// Command rubin-spv-node runs a header-only SPV sync engine against the
// RubyCoin network: it maintains a local flat-file header chain, verifies
// announcements and chunk batches from peers, and exposes the resulting
// tip height over Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"rubin.dev/spvchain/crypto"
	"rubin.dev/spvchain/ingest"
	"rubin.dev/spvchain/node"
	"rubin.dev/spvchain/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := node.DefaultConfig()
	var peerFlags []string

	cmd := &cobra.Command{
		Use:   "rubin-spv-node",
		Short: "Header-only SPV sync engine for the RubyCoin network",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Peers = node.NormalizePeers(peerFlags...)
			if err := node.ValidateConfig(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Network, "network", cfg.Network, "network name (used as the on-disk chain directory)")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "base data directory")
	flags.StringVar(&cfg.BindAddr, "bind-addr", cfg.BindAddr, "peer listener address (validated only; this binary opens no listener)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringSliceVar(&peerFlags, "peer", nil, "seed peer address (repeatable, comma-separated)")
	flags.IntVar(&cfg.MaxPeers, "max-peers", cfg.MaxPeers, "maximum number of simultaneously connected peers")
	flags.StringVar(&cfg.BootstrapURL, "bootstrap-url", cfg.BootstrapURL, "URL to download an initial header snapshot from")
	flags.DurationVar(&cfg.BootstrapTimeout, "bootstrap-timeout", cfg.BootstrapTimeout, "timeout for the bootstrap snapshot download")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "timeout for a single peer header/chunk request (validated only; requests use the fixed 10s ingest.RequestTimeout)")
	flags.IntVar(&cfg.AnnouncementQueueSize, "announcement-queue-size", cfg.AnnouncementQueueSize, "buffered tip-announcement queue size")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on (empty disables)")

	return cmd
}

func run(ctx context.Context, cfg node.Config) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	headerPath := cfg.HeaderFilePath()
	if err := os.MkdirAll(filepath.Dir(headerPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.OpenOrBootstrap(ctx, log, headerPath, cfg.BootstrapURL, cfg.BootstrapTimeout)
	if err != nil {
		return fmt.Errorf("open header store: %w", err)
	}
	defer st.Close()

	ledger, err := store.OpenPeerLedger(cfg.PeerLedgerPath())
	if err != nil {
		return fmt.Errorf("open peer ledger: %w", err)
	}
	defer ledger.Close()

	registry := prometheus.NewRegistry()
	metrics := ingest.NewMetrics(registry)

	requester := newPeerPool(log, cfg.Peers, cfg.MaxPeers)
	publisher := &logTipPublisher{log: log}

	loop, err := ingest.NewLoop(log, st, ledger, crypto.Std{}, requester, publisher, metrics, cfg.AnnouncementQueueSize)
	if err != nil {
		return fmt.Errorf("build ingest loop: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(log, cfg.MetricsAddr, registry)
	}

	go requester.announceLoop(ctx, loop)

	log.Info("starting rubin-spv-node",
		"network", cfg.Network, "data_dir", cfg.DataDir, "tip_height", loop.TipHeight())
	return loop.Run(ctx)
}

func serveMetrics(log *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server exited", "error", err)
	}
}

// logTipPublisher is the enclosing network layer's notification sink for
// this binary: this node has no upstream process of its own to forward
// new tips to, so "announce the tip to the enclosing network layer"
// (ingest.TipPublisher) is satisfied by a structured log line carrying
// the new height and the peer that supplied it.
type logTipPublisher struct {
	log *slog.Logger
}

func (p *logTipPublisher) NewBlockchainHeight(height uint64, peerID string) {
	p.log.Info("new blockchain height", "height", height, "peer", peerID)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package node

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the full set of knobs the SPV node needs at startup. It
// follows the same flat, JSON-tagged shape the wider protocol's node
// config uses, extended with the fields this engine's ingestion loop and
// bootstrap path need.
type Config struct {
	Network  string   `json:"network"`
	DataDir  string   `json:"data_dir"`
	BindAddr string   `json:"bind_addr"`
	LogLevel string   `json:"log_level"`
	Peers    []string `json:"peers"`
	MaxPeers int      `json:"max_peers"`

	// BootstrapURL is fetched to seed the header file on first run if
	// the file does not already exist. Empty means start from height 0.
	BootstrapURL string `json:"bootstrap_url"`
	// BootstrapTimeout bounds the snapshot download.
	BootstrapTimeout time.Duration `json:"bootstrap_timeout"`
	// RequestTimeout is validated as a positive duration but is not passed
	// to the ingestion loop: each header/chunk request to a peer is bounded
	// by the fixed ingest.RequestTimeout (10s).
	RequestTimeout time.Duration `json:"request_timeout"`
	// AnnouncementQueueSize bounds how many pending tip announcements the
	// ingestion loop buffers before it starts dropping them.
	AnnouncementQueueSize int `json:"announcement_queue_size"`
	// MetricsAddr is where the Prometheus /metrics endpoint is served.
	// Empty disables the metrics server.
	MetricsAddr string `json:"metrics_addr"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".rubin-spv"
	}
	return filepath.Join(home, ".rubin-spv")
}

func DefaultConfig() Config {
	return Config{
		Network:               "mainnet",
		DataDir:               DefaultDataDir(),
		BindAddr:              "0.0.0.0:19111",
		Peers:                 nil,
		LogLevel:              "info",
		MaxPeers:              8,
		BootstrapTimeout:      30 * time.Second,
		RequestTimeout:        10 * time.Second,
		AnnouncementQueueSize: 64,
		MetricsAddr:           "127.0.0.1:9191",
	}
}

// HeaderFilePath is where this config's header store lives on disk.
func (c Config) HeaderFilePath() string {
	return filepath.Join(c.DataDir, c.Network, "blockchain_headers")
}

// PeerLedgerPath is where this config's peer-strike ledger lives on disk.
func (c Config) PeerLedgerPath() string {
	return filepath.Join(c.DataDir, c.Network, "peers.db")
}

func NormalizePeers(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, p := range strings.Split(token, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	for _, peer := range cfg.Peers {
		if err := validatePeerAddr(peer); err != nil {
			return fmt.Errorf("invalid peer %q: %w", peer, err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxPeers <= 0 {
		return errors.New("max_peers must be > 0")
	}
	if cfg.MaxPeers > 4096 {
		return errors.New("max_peers must be <= 4096")
	}
	if cfg.BootstrapTimeout <= 0 {
		return errors.New("bootstrap_timeout must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}
	if cfg.AnnouncementQueueSize <= 0 {
		return errors.New("announcement_queue_size must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

func validatePeerAddr(addr string) error {
	if err := validateAddr(addr); err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(addr)
	if strings.TrimSpace(host) == "" {
		return errors.New("missing host")
	}
	return nil
}

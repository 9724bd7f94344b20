package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheusHen/p2pchat/peerchat"
	"github.com/TheusHen/p2pchat/peerchat/metrics"
	"github.com/TheusHen/p2pchat/peerchat/peerstore"
	"github.com/TheusHen/p2pchat/peerchat/session"
)

// app is the dependency graph shared by subcommands.
type app struct {
	cfg     *Config
	log     *slog.Logger
	store   *peerstore.Store
	metrics *metrics.Metrics
	console *Console
}

var (
	configFile string
	appCtx     *app
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "peerchat",
		Short:         "Ephemeral end-to-end encrypted peer-to-peer chat",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			store, err := peerstore.Load(cfg.Store.Path)
			if err != nil {
				log.Warn("ignoring unreadable peer store", "err", err)
			}
			var m *metrics.Metrics
			if cfg.Metrics.Addr != "" {
				m = metrics.New()
			}
			appCtx = &app{cfg: cfg, log: log, store: store, metrics: m}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default peerchat.yaml in ., ~/.config/peerchat or ~)")
	pf.String("transport", "tcp", "transport: tcp or quic")
	pf.Duration("handshake-timeout", 10*time.Second, "handshake deadline")
	pf.Int("discovery-port", 8888, "UDP port for presence broadcasts")
	pf.String("store", "", "peer store file (default ~/.p2p-chat.json)")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9090")
	pf.String("transcript-dir", "", "record lz4 compressed transcripts in this directory")
	pf.String("log-level", "info", "log level: debug, info, warn or error")

	root.AddCommand(
		listenCmd(),
		connectCmd(),
		discoverCmd(),
		addPeerCmd(),
		listPeersCmd(),
		transcriptCmd(),
	)
	return root
}

func (a *app) newPeer() (*peerchat.Peer, error) {
	tr, err := peerchat.NewTransport(a.cfg.Transport)
	if err != nil {
		return nil, err
	}
	p := peerchat.NewPeer(tr, session.HandshakeOptions{Timeout: a.cfg.Handshake.Timeout})
	p.Logger = a.log
	p.Metrics = a.metrics
	return p, nil
}

// openConsole attaches the terminal. Ctrl+C inside readline cancels ctx the
// same way SIGINT does.
func (a *app) openConsole(cancel context.CancelFunc) *Console {
	if a.console == nil {
		a.console = NewConsole()
		a.console.Interrupt = cancel
	}
	return a.console
}

// serveMetrics runs the metrics endpoint for the lifetime of ctx.
func (a *app) serveMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	go func() {
		a.log.Info("serving metrics", "addr", a.cfg.Metrics.Addr)
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
			a.log.Error("metrics server stopped", "err", err)
		}
	}()
}

// Command raidanode runs one node of the coin-authentication network:
// the binary wire-protocol server (internal/server) plus the admin HTTP
// surface (internal/admin), wired together from a JWCC config file.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/raida-net/coinnode/internal/admin"
	"github.com/raida-net/coinnode/internal/config"
	"github.com/raida-net/coinnode/internal/handler"
	"github.com/raida-net/coinnode/internal/healing"
	"github.com/raida-net/coinnode/internal/locker"
	"github.com/raida-net/coinnode/internal/server"
	"github.com/raida-net/coinnode/internal/store"
	"github.com/raida-net/coinnode/internal/ticket"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "raidanode: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("raidanode", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to the JWCC node config file (required)")
	dataDirOverride := fs.String("data-dir", "", "override the config file's data_dir")
	listenOverride := fs.String("listen", "", "override the config file's listen_addr")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("raidanode: --config is required")
	}

	// Startup order (spec.md §9): config → log → cache+bitmap → ticket
	// pool → indices → dispatcher → accept loop.
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dataDirOverride != "" {
		cfg.DataDir = *dataDirOverride
	}
	if *listenOverride != "" {
		cfg.ListenAddr = *listenOverride
	}

	logFlags := log.LstdFlags
	logger := log.New(os.Stderr, "raidanode: ", logFlags)
	if *verbose {
		logger.SetFlags(logFlags | log.Lmicroseconds)
	}

	storeCfg := store.Config{
		Root:           cfg.DataDir,
		RecordsPerPage: cfg.RecordsPerPage,
		TotalPages:     cfg.TotalPages,
		Seed:           []byte(cfg.AdminKeyHex),
		MaxCachedPages: 256,
		ReserveTTL:     cfg.ReservationTTL(),
	}
	st, err := store.Open(storeCfg, logger)
	if err != nil {
		return fmt.Errorf("raidanode: opening store: %w", err)
	}

	pool := ticket.NewPool(256, cfg.TicketTTL())
	lockers := locker.NewIndex()
	tradeLockers := locker.NewTradeIndex()

	adminKey, err := cfg.AdminKey()
	if err != nil {
		return err
	}
	hctx := &handler.Ctx{
		Store:        st,
		Tickets:      pool,
		Lockers:      lockers,
		TradeLockers: tradeLockers,
		NodeID:       cfg.NodeID,
		CoinID:       cfg.CoinID,
		AdminKey:     adminKey,
		Dialer:       healing.NetDialer{Timeout: server.DialerTimeout},
		PeerTimeout:  server.DialerTimeout,
		FSRoot:       cfg.DataDir,
		Logger:       logger,
	}
	for i, p := range cfg.Peers {
		if i >= len(hctx.Peers) {
			break
		}
		hctx.Peers[i] = healing.PeerAddr(p)
	}

	srv := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		NodeID:     cfg.NodeID,
		CoinID:     cfg.CoinID,
	}, hctx, logger)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("raidanode: listening on %s: %w", cfg.ListenAddr, err)
	}

	adminSrv := admin.New(hctx)

	flusher := store.NewFlusher(st.Cache, cfg.FlushInterval(), logger)
	flusher.Start()

	sweepStop := make(chan struct{})
	sweepDone := make(chan struct{})
	go runTicketSweepLoop(pool, cfg.TicketTTL()/2, sweepStop, sweepDone)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	adminErr := make(chan error, 1)
	go func() { adminErr <- adminSrv.Start(cfg.AdminHTTPListen) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("received signal %v, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			logger.Printf("wire server stopped: %v", err)
		}
	case err := <-adminErr:
		if err != nil {
			logger.Printf("admin server stopped: %v", err)
		}
	}

	// Shutdown is the reverse of startup: accept loop, then admin
	// surface, then background flusher.
	srv.Shutdown()
	ln.Close()

	if err := adminSrv.Shutdown(); err != nil {
		logger.Printf("admin shutdown: %v", err)
	}

	close(sweepStop)
	<-sweepDone
	flusher.Stop()

	return nil
}

// runTicketSweepLoop periodically expires healing tickets that have
// outlived their TTL, the ticket-pool counterpart of store.Flusher.
func runTicketSweepLoop(pool *ticket.Pool, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pool.Sweep()
		}
	}
}

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bridgeport-dev/bridgeport/internal/config"
	"github.com/bridgeport-dev/bridgeport/internal/event"
	"github.com/bridgeport-dev/bridgeport/internal/lifecycle"
	"github.com/bridgeport-dev/bridgeport/internal/logging"
	"github.com/bridgeport-dev/bridgeport/internal/portscan"
	"github.com/bridgeport-dev/bridgeport/internal/server"
	"github.com/bridgeport-dev/bridgeport/internal/storage"
	"github.com/bridgeport-dev/bridgeport/internal/tool"
	"github.com/bridgeport-dev/bridgeport/pkg/types"
)

var (
	serveDir       string
	serveRangeFrom int
	serveRangeTo   int
	serveNoCORS    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridgeport server",
	Long: `Start the bridgeport HTTP server on an automatically allocated
loopback port.

The server scans the configured port range, prefers the port it used
last time, and restarts itself on a different port if the current one
is taken away. Clients discover the active port through lifecycle
events on GET /event or by polling GET /status.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().IntVar(&serveRangeFrom, "range-start", 0, "First port to consider (overrides config)")
	serveCmd.Flags().IntVar(&serveRangeTo, "range-end", 0, "Last port to consider (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "Disable CORS headers")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if appConfig.Log.Level != "" && !cmd.Flags().Changed("log-level") {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(appConfig.Log.Level),
			Output: os.Stderr,
			Pretty: appConfig.Log.Pretty || logPretty,
		})
	}

	srvCfg := appConfig.Server
	if serveRangeFrom != 0 {
		srvCfg.PortRangeStart = serveRangeFrom
	}
	if serveRangeTo != 0 {
		srvCfg.PortRangeEnd = serveRangeTo
	}

	log := logging.Component("serve")
	log.Info().
		Str("version", Version).
		Str("directory", workDir).
		Int("rangeStart", srvCfg.PortRangeStart).
		Int("rangeEnd", srvCfg.PortRangeEnd).
		Msg("starting bridgeport")

	store := storage.New(paths.StoragePath())
	bus := event.NewBus()
	defer bus.Close()

	toolReg := tool.DefaultRegistry(workDir, appConfig.Tools)

	// The lifecycle manager owns the listener and calls srv.Serve with it;
	// the server reads session state back through the manager. The mgr
	// variable closes that loop.
	var mgr *lifecycle.Manager

	serverConfig := server.DefaultConfig()
	serverConfig.Directory = workDir
	serverConfig.EnableCORS = !serveNoCORS
	srv := server.New(serverConfig, toolReg, bus, func() types.ServerSession {
		if mgr == nil {
			return types.ServerSession{Status: types.StatusStarting}
		}
		return mgr.Session()
	})

	probe := portscan.NewTCPProbe(time.Duration(srvCfg.ProbeTimeoutMs) * time.Millisecond)
	cache := portscan.NewCache(time.Duration(srvCfg.CacheTTLMs) * time.Millisecond)
	scanner := portscan.NewScanner(probe, cache)

	busSink := event.SinkFunc(bus)
	sink := func(u types.StatusUpdate) {
		log.Info().
			Str("status", string(u.Status)).
			Int("port", u.Port).
			Str("message", u.Message).
			Msg("lifecycle transition")
		busSink(u)
	}

	mgr = lifecycle.New(
		lifecycle.Config{Server: srvCfg},
		scanner,
		probe,
		store,
		sink,
		srv.Serve,
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	dispose := mgr.StartServer(ctx, srvCfg.PortRangeStart, srvCfg.PortRangeEnd)

	watcher, err := config.NewWatcher(workDir, func(updated *types.Config) {
		log.Info().Msg("configuration reloaded; restart to apply port range changes")
	})
	if err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	dispose()
	log.Info().Msg("stopped")
	return nil
}

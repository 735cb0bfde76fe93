// Command traintastic-server runs the model-railway control server: it
// loads (or creates) a world, starts the protocol interfaces, and serves
// the client protocol over TCP/WebSocket plus UDP discovery.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/traintastic/traintastic-go/internal/eventloop"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/observability"
	"github.com/traintastic/traintastic-go/internal/server"
	"github.com/traintastic/traintastic-go/internal/traintastic"
	"github.com/traintastic/traintastic-go/internal/value"
	"github.com/traintastic/traintastic-go/internal/version"
)

// Exit codes: 0 success, 1 run failure, 2 restart requested.
const (
	exitOK      = 0
	exitFailure = 1
	exitRestart = 2
)

var (
	flagDataDir      string
	flagWorld        string
	flagPort         int
	flagSimulate     bool
	flagOnline       bool
	flagPower        bool
	flagRun          bool
	flagOTLPEndpoint string
)

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "traintastic-server")
	}
	return "traintastic-data"
}

func main() {
	os.Exit(run())
}

func run() int {
	exitCode := exitOK

	rootCmd := &cobra.Command{
		Use:     "traintastic-server [world-uuid]",
		Short:   "Traintastic model railway control server",
		Version: version.String(),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flagWorld = args[0]
			}
			code, err := serve()
			exitCode = code
			return err
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&flagDataDir, "datadir", defaultDataDir(), "data directory holding world files")
	rootCmd.Flags().StringVar(&flagWorld, "world", "", "world UUID to load at startup")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "listener port (default from settings)")
	rootCmd.Flags().BoolVar(&flagSimulate, "simulate", false, "force every interface into simulation mode")
	rootCmd.Flags().BoolVar(&flagOnline, "online", false, "set every interface online after loading")
	rootCmd.Flags().BoolVar(&flagPower, "power", false, "power on the world after loading")
	rootCmd.Flags().BoolVar(&flagRun, "run", false, "set the world to run after loading (implies --power)")
	rootCmd.Flags().StringVar(&flagOTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC collector endpoint for tracing (disabled when empty)")

	if err := rootCmd.Execute(); err != nil {
		if exitCode == exitOK {
			exitCode = exitFailure
		}
		return exitCode
	}
	return exitCode
}

func serve() (int, error) {
	zl, err := zap.NewProduction()
	if err != nil {
		return exitFailure, err
	}
	defer func() { _ = zl.Sync() }()
	logger := log.NewRegistry(zl.Sugar())
	logger.AddSink(log.NewRingBufferSink(1000))

	if flagOTLPEndpoint != "" {
		shutdown, err := observability.InitTracer("traintastic-server", flagOTLPEndpoint)
		if err != nil {
			return exitFailure, err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	loop := eventloop.New(1024)
	loop.Run()
	defer loop.Stop()

	root, err := traintastic.New(flagDataDir, loop, logger)
	if err != nil {
		return exitFailure, err
	}

	if flagWorld != "" {
		if _, err := root.LoadWorld(flagWorld); err != nil {
			return exitFailure, err
		}
	} else {
		root.NewWorld()
	}
	applyStartupFlags(root)

	srv := server.New(root, loop, server.Config{Port: flagPort})
	if err := srv.Start(); err != nil {
		return exitFailure, err
	}

	// SIGINT/SIGTERM (and SIGBREAK on Windows) trigger graceful shutdown;
	// the restart method requests exit code 2 so a supervisor relaunches.
	sig := make(chan os.Signal, 1)
	notifyShutdown(sig)

	done := make(chan int, 4)
	root.OnShutdown = func() { done <- exitOK }
	root.OnRestart = func() { done <- exitRestart }

	var code int
	select {
	case <-sig:
		code = exitOK
	case code = <-done:
	}
	signal.Stop(sig)

	srv.Stop()
	if w := root.World(); w != nil && root.Settings().AutoSaveWorldOnExit() {
		if err := root.SaveWorld(); err != nil {
			return exitFailure, err
		}
	}
	root.CloseWorld()
	return code, nil
}

// applyStartupFlags mirrors the CLI's --simulate/--online/--power/--run
// onto the freshly loaded world.
func applyStartupFlags(root *traintastic.Root) {
	w := root.World()
	if w == nil {
		return
	}
	for _, o := range w.Objects() {
		if flagSimulate {
			if item, ok := o.Item("simulation"); ok {
				if p, ok := item.(interface{ SetInternal(value.Value) error }); ok {
					_ = p.SetInternal(value.NewBool(true))
				}
			}
		}
		if flagOnline {
			if starter, ok := o.(interface{ Start() }); ok {
				starter.Start()
			}
		}
	}
	if flagPower || flagRun {
		w.PowerOn()
	}
	if flagRun {
		_ = w.Run()
	}
}

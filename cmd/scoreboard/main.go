// Command scoreboard decodes swim-meet timing console telemetry from a serial
// line or UDP broadcasts and serves the live race state over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/banshee-data/swim.report/internal/api"
	"github.com/banshee-data/swim.report/internal/config"
	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/version"
)

var exampleUsage = strings.TrimSpace(`
  scoreboard --serial-port /dev/ttyUSB0 --itf OS2-Swimming.itf
  scoreboard --replay serial_log.bin --follow
  scoreboard --pcap meet.pcap --no-udp
  scoreboard --demo --listen :8080
  scoreboard status --url http://scoreboard.local:8080
`)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		monitoring.Errorf("scoreboard: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags flagValues

	root := &cobra.Command{
		Use:           "scoreboard",
		Short:         "Decode timing console telemetry and serve the live race state",
		Example:       exampleUsage,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), flags)
			if err != nil {
				return err
			}
			if err := monitoring.SetLevel(cfg.GetLogLevel()); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	bindFlags(root.Flags(), &flags)

	root.AddCommand(newStatusCmd(), newPortsCmd())
	return root
}

// loadConfig reads the config file, if any, then applies explicitly set flags.
func loadConfig(fs *pflag.FlagSet, flags flagValues) (*config.Config, error) {
	cfg := &config.Config{}
	if flags.configPath != "" {
		var err error
		if cfg, err = config.Load(flags.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	applyFlags(cfg, flags, fs.Changed)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run serves HTTP and drives the pipeline until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	monitoring.Infof("%s starting with sources %v", version.String(), p.plan.Names())

	server := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(p.Handler()),
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	select {
	case err = <-serveErr:
		cancel()
		<-runErr
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case err = <-runErr:
	}

	monitoring.Infof("shutting down HTTP server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
	defer cancelShutdown()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		monitoring.Warnf("HTTP server shutdown error: %v", serr)
		server.Close()
	}
	monitoring.Infof("graceful shutdown complete")
	return err
}

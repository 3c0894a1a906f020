package cliplugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"announce/internal/announcer"
	"announce/internal/announcer/metrics"
	"announce/internal/config"
	"announce/internal/identity"
	"announce/internal/keywatcher"
	"announce/internal/netaddr"
	"announce/internal/node"
	"announce/internal/util/logger/sl"
)

const shutdownTimeout = 5 * time.Second

// RunCommand announces this node until the context is cancelled.
type RunCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewRunCommand(app *AppContext) *RunCommand {
	return &RunCommand{app: app}
}

func (r *RunCommand) Meta() *cobra.Command {
	if r.cmd != nil {
		return r.cmd
	}
	r.cmd = &cobra.Command{
		Use:   "run",
		Short: "Broadcast the discovery beacon",
		Long:  "Broadcast the discovery beacon every interval until interrupted.",
		Args:  cobra.NoArgs,
	}
	f := r.cmd.Flags()
	f.DurationP("interval", "i", 0, "time between beacons (overrides config)")
	f.IntP("port", "p", 0, "advertised listening port (overrides config)")
	f.String("local-addr", "", "advertised local address (overrides config)")
	f.String("broadcast-addr", "", "destination address (overrides config)")
	f.String("metrics-addr", "", "serve prometheus metrics on this address")
	f.Bool("watch-key", false, "restart announcing when the key file changes")
	return r.cmd
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("interval") {
		if cfg.Interval, err = f.GetDuration("interval"); err != nil {
			return err
		}
	}
	if f.Changed("port") {
		if cfg.Port, err = f.GetInt("port"); err != nil {
			return err
		}
	}
	if f.Changed("local-addr") {
		if cfg.LocalAddr, err = f.GetString("local-addr"); err != nil {
			return err
		}
	}
	if f.Changed("broadcast-addr") {
		if cfg.BroadcastAddr, err = f.GetString("broadcast-addr"); err != nil {
			return err
		}
	}
	if f.Changed("metrics-addr") {
		if cfg.MetricsAddr, err = f.GetString("metrics-addr"); err != nil {
			return err
		}
	}
	if f.Changed("watch-key") {
		if cfg.WatchKey, err = f.GetBool("watch-key"); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func (r *RunCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.Run"

	cfg, err := r.app.LoadConfig()
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	log := r.app.Logger(cfg).With(
		slog.String("op", op),
		slog.String("instance", uuid.NewString()),
	)
	log.Info("starting announcer", slog.String("env", cfg.Env))

	keys, created, err := identity.LoadOrCreate(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if created {
		log.Info("New identity created", slog.String("key_file", cfg.KeyFile))
	}

	local, broadcast, err := netaddr.Resolve(cfg.LocalAddr, cfg.BroadcastAddr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var opts []announcer.Option
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		observer, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, announcer.WithObserver(observer))

		srv := serveMetrics(cfg.MetricsAddr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown", sl.Err(err))
			}
		}()
	}

	n, err := node.New(node.Settings{
		LocalAddr:     local,
		Port:          cfg.Port,
		BroadcastAddr: broadcast,
		BroadcastPort: cfg.BroadcastPort,
		Interval:      cfg.Interval,
	}, keys, log, opts...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer n.Close()

	if cfg.WatchKey {
		w, err := keywatcher.New(cfg.KeyFile, n.ReloadKey, keywatcher.Config{Logger: log})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, keywatcher.ErrWatcherClosed) {
				log.Error("Key watcher stopped", sl.Err(err))
			}
		}()
	}

	if err := n.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("Shutting down gracefully")
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Serving metrics", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", sl.Err(err))
		}
	}()
	return srv
}

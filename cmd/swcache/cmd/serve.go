package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/swcache"
	asynchook "github.com/unkn0wn-root/swcache/hooks/async"
	promhooks "github.com/unkn0wn-root/swcache/hooks/prom"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the caching proxy",
	Long:  "Install and activate the worker, then serve the origin through it until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "listen address")
	serveCmd.Flags().Duration("trim-interval", 0, "run the size governor periodically (0 = only on CACHE_CLEANUP)")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("trim_interval", serveCmd.Flags().Lookup("trim-interval"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hooks swcache.Hooks
	reg := prometheus.NewRegistry()
	if cfg.Metrics {
		ph, err := promhooks.New(reg, "swcache")
		if err != nil {
			return err
		}
		ah := asynchook.New(ph, 1, 4096)
		defer ah.Close()
		hooks = ah
	}

	a, err := newApp(ctx, cfg, hooks)
	if err != nil {
		return err
	}
	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := a.close(shutdown); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := a.worker.Start(ctx); err != nil {
		a.log.Error("worker start failed", swcache.Fields{"err": err})
		return err
	}

	mux := http.NewServeMux()
	if cfg.Metrics {
		mux.Handle("GET "+a.worker.ControlPath()+"/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", a.worker.Handler())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.log.Info("serving", swcache.Fields{"listen": cfg.Listen, "origin": cfg.Origin})

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.log.Info("shutting down", nil)
	return srv.Shutdown(shutdown)
}

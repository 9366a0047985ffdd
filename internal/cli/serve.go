package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voxkey/internal/httpapi"
	"voxkey/internal/watch"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *Options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon and its HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			log := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					log.Warn().Err(err).Msg("close runtime")
				}
			}()
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			return serve(ctx, rt, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults VOXKEY_ADDR or config)")
	return cmd
}

// serve starts the models watcher and serves the API on ln until ctx is
// cancelled.
func serve(ctx context.Context, rt *Runtime, ln net.Listener) error {
	cfg, log := rt.Cfg, rt.Log

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)
	srv := &http.Server{
		Handler:           httpapi.NewMux(&httpapi.ManagerService{M: rt.Manager, Events: rt.Events}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	if *cfg.WatchModels {
		w, err := watch.New(rt.Oracle.ModelsRoot(), func() {
			if err := rt.Manager.Refresh(); err != nil {
				log.Debug().Err(err).Msg("refresh after change")
			}
		}, watch.Options{Logger: &log})
		if err != nil {
			log.Warn().Err(err).Msg("models watcher unavailable")
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Str("storage_root", cfg.StorageRoot).Msg("voxkeyd listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})
	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/precache"
	"github.com/unkn0wn-root/precache/handler"
)

const shutdownTimeout = 10 * time.Second

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := build(ctx, cfg, cmd.Root().ErrWriter)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	reg, err := rt.register(ctx)
	if err != nil {
		return err
	}
	h, err := handler.New(handler.Options{
		Registration: reg,
		Network:      rt.network,
		Logger:       rt.log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(cfg.MetricsPath, rt.metrics.Handler(), h),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	rt.log.Info("listening", precache.Fields{"addr": cfg.Listen, "origin": cfg.Origin})

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	rt.log.Info("shutting down", nil)
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newRouter serves metrics on metricsPath (when set) and hands every other
// request to h.
func newRouter(metricsPath string, metrics, h http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if metricsPath != "" {
		r.Method(http.MethodGet, metricsPath, metrics)
	}
	r.Handle("/*", h)
	return r
}

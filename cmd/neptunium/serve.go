package main

import (
	"context"
	"log/slog"
	"neptunium/application"
	"neptunium/application/server"
	"neptunium/cmd/neptunium/chat"
	"neptunium/cmd/neptunium/config"
	"neptunium/lib/diag"
	"neptunium/lib/metrics"
	"neptunium/protocol/packet"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		bind string
		port uint16
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a chat room",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bind") {
				if cfg.Bind, err = application.ParseBindMode(bind); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", `interface to listen on, "local" or "any"`)
	cmd.Flags().Uint16VarP(&port, "port", "p", 0, "port to listen on")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := diag.NewHub()
	hub.Subscribe(diag.Logger{L: logger})

	packets := packet.NewRegistry()
	if err := chat.Register(packets); err != nil {
		return err
	}
	logger.Info("packet registry", "fingerprint", packets.Fingerprint())

	handlers := server.NewHandlers(hub)
	room, err := chat.Serve(handlers)
	if err != nil {
		return err
	}

	appCfg := cfg.Application(logger)
	appCfg.Server.Sink = hub
	appCfg.Server.Metrics = metrics.New(metrics.Config{Registry: reg})

	srv, err := application.CreateServer(cfg.Bind, cfg.Port, cfg.Credential, packets, handlers, appCfg)
	if err != nil {
		return err
	}
	room.Attach(srv)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

		httpSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serving metrics")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "sessions", len(srv.Sessions()))
		return srv.Close()
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/devlearn/playground/internal/server"
	"github.com/devlearn/playground/internal/storage"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		host       string
		port       int
		catalogDir string
		runtime    string
		backend    string
		noWatch    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor and practice pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("catalog-dir") {
				cfg.Catalog.Dir = catalogDir
			}
			if flags.Changed("runtime") {
				cfg.Interpreter.Runtime = runtime
			}
			if flags.Changed("storage") {
				cfg.Storage.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			lib, err := loadLibrary(cfg)
			if err != nil {
				return err
			}
			store, err := storage.Open(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			bridge := newBridge(cfg.Interpreter)
			defer func() { _ = bridge.Close(context.Background()) }()
			if cfg.Interpreter.Runtime == "" {
				logger.Warn("interp.disabled", "reason", "interpreter.runtime not set")
			}

			srv, err := server.New(server.Options{
				Config:  cfg,
				Library: lib,
				Store:   store,
				Bridge:  bridge,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			if cfg.Catalog.Watch && cfg.Catalog.Dir != "" && !noWatch {
				if err := srv.EnableWatch(); err != nil {
					logger.Warn("catalog.watch.failed", "err", err)
				}
			}

			logger.Info("server.listening",
				"addr", cfg.Server.Addr(),
				"storage", cfg.Storage.Backend,
				"catalog", cfg.Catalog.Dir)
			return listenAndServe(ctx, cfg.Server.Addr(), srv)
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "listen host")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	cmd.Flags().StringVar(&catalogDir, "catalog-dir", "", "directory overlaying the built-in templates")
	cmd.Flags().StringVar(&runtime, "runtime", "", "URL or path of the CPython WASI module")
	cmd.Flags().StringVar(&backend, "storage", "", "storage backend: memory, file, sqlite or postgres")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the catalog directory on change")
	return cmd
}

// listenAndServe runs the HTTP server until ctx is cancelled.
func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	logger := pslog.Ctx(ctx)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		logger.Info("server.stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

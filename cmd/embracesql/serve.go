package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/EmbraceSQL/embracesql/internal/bootstrap"
	"github.com/EmbraceSQL/embracesql/internal/interfaces/rest"
)

var (
	servePort    int
	serveMigrate bool
	serveStrict  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve every generated module over HTTP",
	Example: `  # Serve the current directory on the configured port
  embracesql serve

  # Apply pending migrations first, on another port
  embracesql serve --root ./app --migrate --port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manager, err := startEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer manager.Close()

		if serveMigrate {
			if _, err := bootstrap.MigrateAll(ctx, manager, cfg.EmbraceSQLRoot, logger); err != nil {
				return err
			}
		}
		if _, err := bootstrap.RunAssertions(bootstrap.Catalogs(manager), logger, serveStrict); err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		if !cfg.Log.Debug && !debug {
			gin.SetMode(gin.ReleaseMode)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           rest.NewRouter(manager, cfg, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.Infow("serving", "addr", srv.Addr, "modules", len(manager.Engine().Modules()))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
		}

		logger.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&servePort, "port", 0, "port to listen on (default from configuration)")
	f.BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	f.BoolVar(&serveStrict, "strict", false, "refuse to serve when catalog assertions report errors")
}

package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"auction-house/internal/server"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var migrateOnStart bool

// serveCmd starts the HTTP API and the background sweeper
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the auction sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Create the schema before serving")
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := backend.Close(closeCtx); err != nil {
			utils.Warn("failed to close store", map[string]any{"error": err.Error()})
		}
	}()

	if m, ok := backend.(Migrator); ok && migrateOnStart {
		if err := m.Migrate(ctx); err != nil {
			return err
		}
	}

	a, err := newApp(cfg, backend)
	if err != nil {
		return err
	}

	router := server.SetupRouter(ctx, server.Services{
		Bidding:  a.bidding,
		Auctions: a.auctions,
		Auth:     a.auth,
		Events:   a.hub,
	}, server.Options{
		UploadDir:    cfg.UploadDir,
		BidRateLimit: cfg.BidRateLimit,
		BidRateBurst: cfg.BidRateBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end when ctx is cancelled instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		a.sweeper.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		utils.Info("server starting", map[string]any{"port": cfg.Port, "env": cfg.Env, "store": cfg.Store})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-sweeperDone
			return err
		}
	}

	utils.Info("shutting down server", nil)
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server forced shutdown", map[string]any{"error": err.Error()})
	}
	<-sweeperDone

	utils.Info("server stopped", nil)
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

package devserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/narrate/internal/devserver/config"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// App runs the development backend until it receives a termination signal
// or its context is canceled.
type App struct {
	config *config.Config
	logger logging.Logger
	server *Server
}

func NewApp(cfg *config.Config) *App {
	logger := logging.New(os.Stdout, cfg.LogLevel, true)
	return &App{config: cfg, logger: logger, server: NewServer(cfg, logger)}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP on the configured address and shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:              app.config.EndpointAddr,
		Handler:           app.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting devserver", "addr", app.config.EndpointAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			app.logger.Error(ctx, "server failed", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	app.logger.Info(context.Background(), "shutting down devserver")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	httpx "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/http"
)

// runHTTPServer serves the operations API until the context is cancelled,
// then drains in-flight requests.
func runHTTPServer(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Jobs:        opts.Services.Jobs,
		FailedJobs:  opts.Services.FailedJobs,
		Results:     opts.Services.Results,
		Costs:       opts.Services.Costs,
		POIs:        opts.Services.Repos.POIs,
		Schedules:   opts.Services.ScheduleCache,
		MaxRetries:  cfg.Workers.MaxRetries,
		HTTP:        cfg.HTTP,
		MetricsPath: metricsPath,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

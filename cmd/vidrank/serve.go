package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/okian/vidrank/internal/adapters/http/api"
	"github.com/okian/vidrank/internal/adapters/http/swagger"
	service "github.com/okian/vidrank/internal/app"
	"github.com/okian/vidrank/pkg/logger"
	"github.com/okian/vidrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	metricsInterval           = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			log := logger.Named("http")
			handler := api.NewServer(rt.svc,
				api.WithVersion(version),
				api.WithAllowedOrigins(c.cfg.AllowedOrigins),
				api.WithLogger(log),
				api.WithRoutes(swagger.Register),
			).Handler()

			err = supervise(ctx, newHTTPService(c.cfg.Addr, handler, log),
				&metricsService{svc: rt.svc, interval: metricsInterval})
			logger.Get().Info(context.Background(), "server stopped")
			return err
		},
	}
}

// supervise runs the HTTP server and helpers until ctx is cancelled or the
// server cannot listen.
func supervise(ctx context.Context, h *httpService, others ...suture.Service) error {
	sup := suture.New("vidrank", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: logger.Slog()}).MustHook(),
		Timeout:   shutdownTimeout,
	})
	sup.Add(h)
	for _, svc := range others {
		sup.Add(svc)
	}

	err := sup.Serve(ctx)
	if listenErr := h.Err(); listenErr != nil {
		return listenErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// httpService runs the API server under the supervisor.
type httpService struct {
	srv *http.Server
	log logger.Logger

	mu  sync.Mutex
	err error
}

// Err returns the listen failure that stopped the service, if any.
func (s *httpService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func newHTTPService(addr string, h http.Handler, log logger.Logger) *httpService {
	return &httpService{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
}

// Serve implements suture.Service.
func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "starting HTTP server", logger.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		// A port that cannot be bound will not free up on restart.
		err = fmt.Errorf("http server: %w", err)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", suture.ErrTerminateSupervisorTree, err)
	case <-ctx.Done():
	}

	s.log.Info(ctx, "shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	return suture.ErrDoNotRestart
}

func (s *httpService) String() string { return "http" }

// metricsService periodically publishes process and history gauges.
type metricsService struct {
	svc      *service.Service
	interval time.Duration
}

// Serve implements suture.Service.
func (m *metricsService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			updateSystemMetrics()
			// GetStats refreshes the records gauge as a side effect.
			_, _ = m.svc.GetStats(ctx)
		}
	}
}

func (m *metricsService) String() string { return "metrics" }

func updateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(ms.PauseTotalNs) / float64(ms.NumGC) / nanosecondsPerMillisecond)
	}
}

package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrServerStart wraps listen and serve failures.
	ErrServerStart = errors.New("http server failed to start")
	// ErrServerShutdown wraps drain failures on the way down.
	ErrServerShutdown = errors.New("http server failed to shut down cleanly")
)

// Server runs the API with bounded request timeouts and a graceful
// drain on shutdown.
type Server struct {
	srv             *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
	stop            sync.Once
}

// NewServer wraps handler in an http.Server listening on addr. A nil
// logger silences lifecycle messages.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:          logger,
		shutdownTimeout: 10 * time.Second,
	}
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for up to the shutdown timeout. It returns
// nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	s.logger.Info("http server listening", slog.String("addr", s.srv.Addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(ErrServerStart, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	if err := s.Stop(context.Background()); err != nil {
		return err
	}
	<-errCh
	return nil
}

// Stop drains the server. It is idempotent and safe to call while Run
// is blocked.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stop.Do(func() {
		sctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
		err = s.srv.Shutdown(sctx)
	})
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrServerShutdown, err)
	}
	return nil
}

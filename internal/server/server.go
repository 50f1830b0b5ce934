package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgerai/ledgerai/internal/config"
	"github.com/ledgerai/ledgerai/internal/service"
	"github.com/rs/zerolog/log"
)

type Server struct {
	cfg   *config.Config
	http  *http.Server
	store service.Store // closed on shutdown
}

// New opens every backing service named in cfg and builds the HTTP server.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	c, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	router, err := NewRouter(cfg, c)
	if err != nil {
		_ = c.Store.Close()
		return nil, fmt.Errorf("setup routes: %w", err)
	}

	s := &Server{cfg: cfg, store: c.Store}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.AgentTimeout.Std() + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		s.closeStore()
		return err
	case err := <-errCh:
		s.closeStore()
		return err
	}
}

func (s *Server) closeStore() {
	if err := s.store.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing ledger store")
	} else {
		log.Info().Msg("ledger store closed")
	}
}

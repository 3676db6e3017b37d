// Package server exposes login runs over HTTP for schedulers that poke a URL
// instead of running the binary.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fragmede/streakkeeper/internal/config"
	"github.com/fragmede/streakkeeper/internal/metrics"
	"github.com/fragmede/streakkeeper/internal/runner"
)

const shutdownTimeout = 10 * time.Second

// Runner performs one run.
type Runner interface {
	Run(ctx context.Context, opts runner.Options) (runner.Result, error)
}

// Server answers /run, /metrics and /healthz.
type Server struct {
	runner  Runner
	opts    runner.Options
	metrics *metrics.Metrics
	log     *clog.Logger

	// A session has a single owner, so runs never overlap.
	mu sync.Mutex
}

// New returns a server that performs runs described by opts.
func New(r Runner, opts runner.Options, m *metrics.Metrics, log *clog.Logger) *Server {
	return &Server{runner: r, opts: opts, metrics: m, log: log}
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/run", s.handleRun)
	router.POST("/run", s.handleRun)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return router
}

func (s *Server) handleRun(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.runner.Run(c.Request.Context(), s.opts)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.String(http.StatusOK, Message(res))
}

// Message is the body of a successful /run.
func Message(res runner.Result) string {
	if res.Target == config.TargetStreak || res.Target == "" {
		return fmt.Sprintf("Login successful! Current streak: %d days", res.Streak.Current)
	}
	return res.Message()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

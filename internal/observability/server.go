package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/screener/internal/token"
)

// PatternLister lists recorded pattern events, oldest first.
type PatternLister interface {
	ListPatterns(ctx context.Context) ([]token.PatternEvent, error)
}

// RecentPatterns is the in-process buffer of the newest pattern events.
type RecentPatterns interface {
	Recent() []token.PatternEvent
	Query(address string) []token.PatternEvent
}

// BlacklistView exposes the blacklist read-only.
type BlacklistView interface {
	Coins() []string
	Developers() []string
}

// ServerDeps are the read-only views the status server exposes. Nil fields
// disable the matching route.
type ServerDeps struct {
	Health    *HealthMonitor
	Metrics   *Metrics
	Stats     func() any
	Patterns  PatternLister
	Recent    RecentPatterns
	Blacklist BlacklistView
}

// Server is the operator-facing HTTP API.
type Server struct {
	echo *echo.Echo
	addr string
	deps ServerDeps
}

const defaultPatternLimit = 100

func NewServer(port int, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogging())

	s := &Server{echo: e, addr: fmt.Sprintf(":%d", port), deps: deps}

	if deps.Health != nil {
		e.GET("/health", s.handleHealth)
	}
	if deps.Stats != nil {
		e.GET("/stats", s.handleStats)
	}
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}
	if deps.Patterns != nil || deps.Recent != nil {
		e.GET("/patterns", s.handlePatterns)
	}
	if deps.Blacklist != nil {
		e.GET("/blacklist", s.handleBlacklist)
	}
	return s
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("status server: listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status server: stopped unexpectedly")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	h := s.deps.Health.Check(c.Request().Context())
	code := http.StatusOK
	if h.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, h)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Stats())
}

// handlePatterns returns the newest ?limit= events (default 100), oldest
// first, optionally filtered by ?type= and ?token=. The recent buffer answers
// when it holds enough matching events; otherwise the full log is read.
func (s *Server) handlePatterns(c echo.Context) error {
	limit := defaultPatternLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	pt := token.PatternType(c.QueryParam("type"))
	addr := c.QueryParam("token")

	source := "recent"
	var filtered []token.PatternEvent
	if s.deps.Recent != nil {
		buffered := s.deps.Recent.Recent()
		if addr != "" {
			buffered = s.deps.Recent.Query(addr)
		}
		filtered = filterPatterns(buffered, pt, addr)
	}

	if len(filtered) < limit && s.deps.Patterns != nil {
		events, err := s.deps.Patterns.ListPatterns(c.Request().Context())
		if err != nil {
			log.Error().Err(err).Msg("status server: list patterns failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "list patterns failed")
		}
		source = "store"
		filtered = filterPatterns(events, pt, addr)
	}

	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	if filtered == nil {
		filtered = []token.PatternEvent{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":    len(filtered),
		"source":   source,
		"patterns": filtered,
	})
}

func filterPatterns(events []token.PatternEvent, pt token.PatternType, addr string) []token.PatternEvent {
	out := make([]token.PatternEvent, 0, len(events))
	for _, e := range events {
		if pt != "" && e.PatternType != pt {
			continue
		}
		if addr != "" && e.TokenAddress != addr {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Server) handleBlacklist(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{
		"coins": nonNil(s.deps.Blacklist.Coins()),
		"devs":  nonNil(s.deps.Blacklist.Developers()),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("status server: request")
			return err
		}
	}
}

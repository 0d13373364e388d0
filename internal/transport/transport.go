// Package transport wires the chat server's HTTP surface: the WebSocket
// upgrade endpoint, a health probe, and Prometheus metrics exposition.
// Everything here is external-collaborator plumbing around the core chat
// components, not part of the core itself.
package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bken/chatserver/internal/chat"
	"bken/chatserver/internal/msgfilter"
	"bken/chatserver/internal/ratelimit"
	"bken/chatserver/internal/session"
	"bken/chatserver/internal/usernames"
)

// Config holds everything the transport layer needs to admit sessions.
type Config struct {
	Usernames *usernames.Manager
	Hub       *chat.Hub
	MaxMsgLen int
	RateLimit ratelimit.Config
	Wordlist  msgfilter.Wordlist
	Offline   bool
}

// Server is the Echo application exposing the chat endpoint.
type Server struct {
	echo *echo.Echo
	cfg  Config
}

// New constructs an Echo app with the socket, health, and metrics routes.
func New(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, cfg: cfg}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := req.URL.Path
			if path == "/socket/v1" || path == "/health" {
				slog.Debug("http request",
					"method", req.Method,
					"path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			} else {
				slog.Info("http request",
					"method", req.Method,
					"path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP(),
				)
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/socket/v1", s.handleSocket)
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.cfg.Offline {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "offline")
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.cfg.Hub.RosterSize(),
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (s *Server) handleSocket(c echo.Context) error {
	if s.cfg.Offline {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is offline")
	}

	username := strings.TrimSpace(c.QueryParam("username"))
	key := c.QueryParam("key")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "remote", c.RealIP(), "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "upgrade failed")
	}
	defer conn.Close()

	deps := session.Deps{
		Usernames: s.cfg.Usernames,
		Hub:       s.cfg.Hub,
		MaxMsgLen: s.cfg.MaxMsgLen,
		RateLimit: s.cfg.RateLimit,
		Wordlist:  s.cfg.Wordlist,
	}
	params := session.Params{Username: username, Key: key}

	if err := session.Run(c.Request().Context(), conn, deps, params); err != nil {
		slog.Debug("session ended with error", "remote", c.RealIP(), "err", err)
	}
	return nil
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("http server stopped")
		return nil
	}
}

// Package devserver is an in-memory stand-in for the clinic backend. It
// serves the same REST contract the gateway consumes (users, patients, scans
// and image inference) so the CLI can be exercised locally and the gateway
// can be tested against a real HTTP peer. Nothing is persisted.
package devserver

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/octscan/octscan/internal/platform/middleware"
)

type Config struct {
	// SigningKey signs HS256 access tokens. A random key is generated when
	// empty, which invalidates tokens on every restart.
	SigningKey []byte
	TokenTTL   time.Duration
	// BodyLimit and UploadLimit cap JSON and multipart bodies ("1M", "20M").
	BodyLimit   string
	UploadLimit string
	CORSOrigins []string
}

type Server struct {
	echo   *echo.Echo
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	data   *backend
	images *imageStore
}

type Option func(*Server)

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(cfg Config, logger zerolog.Logger, opts ...Option) *Server {
	if len(cfg.SigningKey) == 0 {
		key := make([]byte, 32)
		if _, err := crypto_rand.Read(key); err != nil {
			panic(fmt.Sprintf("devserver: generate signing key: %v", err))
		}
		cfg.SigningKey = key
		logger.Warn().Msg("no signing key configured, tokens will not survive a restart")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "1M"
	}
	if cfg.UploadLimit == "" {
		cfg.UploadLimit = "20M"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		data:   newBackend(),
		images: newImageStore(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	s.echo = e
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/test", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "success"})
	})

	e.POST("/register", s.Register)
	e.POST("/login", s.Login)
	e.POST("/predict", s.Predict)
	e.GET("/uploads/:name", s.GetUpload)

	api := e.Group("", s.requireAuth)
	api.GET("/users/me", s.Me)

	api.GET("/patients", s.ListPatients)
	api.POST("/patients", s.CreatePatient)
	api.GET("/patients/:id", s.GetPatient)
	api.PUT("/patients/:id", s.UpdatePatient)
	api.DELETE("/patients/:id", s.DeletePatient)
	api.GET("/patients/:id/scans", s.ListPatientScans)

	api.GET("/scans", s.ListScans)
	api.POST("/scans/:id", s.CreateScan)
	api.PUT("/scans/:id", s.UpdateScan)
	api.DELETE("/scans/:id", s.DeleteScan)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting dev backend")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleError renders every error as {"detail": "..."}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		default:
			msg = fmt.Sprint(m)
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
	}
	if code == http.StatusUnauthorized {
		c.Response().Header().Set("WWW-Authenticate", "Bearer")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"detail": msg})
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("write error response")
	}
}

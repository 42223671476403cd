// Package httpapi serves the upload-and-analyze endpoint and the files each
// run writes.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/snufilmfest/ottcluster/internal/logging"
	"github.com/snufilmfest/ottcluster/internal/metrics"
	"github.com/snufilmfest/ottcluster/pkg/pipeline"
	"github.com/snufilmfest/ottcluster/pkg/report"
)

// Server provides HTTP endpoints for ottcluster.
type Server struct {
	echo    *echo.Echo
	logger  *logging.Logger
	config  *Config
	opts    pipeline.Options
	metrics *metrics.Metrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
}

// NewServer creates a new HTTP server. opts is the base pipeline
// configuration; each request overrides k and the sample limit. m may be
// nil to disable /metrics.
func NewServer(cfg *Config, opts pipeline.Options, logger *logging.Logger, m *metrics.Metrics) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 8000, MaxUploadBytes: 150 << 20}
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			ctx = logging.WithLogger(ctx, logger)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:    e,
		logger:  logger.Named("http"),
		config:  cfg,
		opts:    opts,
		metrics: m,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/api/upload-and-analyze", s.handleAnalyze)
	s.echo.GET("/uploads/:name", s.handleUpload)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AnalyzeResponse is the response body for POST /api/upload-and-analyze.
// Paths are file names under /uploads/.
type AnalyzeResponse struct {
	*report.Report
	PlotURL string `json:"plot_url,omitempty"`
	CSVURL  string `json:"csv_url,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleAnalyze runs the pipeline on an uploaded CSV. Form fields: file,
// k (invalid or missing selects the default) and sample_limit.
func (s *Server) handleAnalyze(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	if fh.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty filename")
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		return echo.NewHTTPError(http.StatusBadRequest, "only .csv files are supported")
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}
	defer src.Close()

	opts := s.opts
	opts.K = formInt(c, "k", pipeline.DefaultK)
	opts.SampleLimit = max(formInt(c, "sample_limit", 0), 0)
	opts.RunID = uuid.NewString()

	var observers []pipeline.Observer
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}
	rep, err := pipeline.New(opts, s.logger, observers...).Run(ctx, src)
	switch {
	case errors.Is(err, pipeline.ErrData), errors.Is(err, pipeline.ErrParameter):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error(ctx, "analysis failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
	}

	out := *rep
	resp := AnalyzeResponse{Report: &out}
	if rep.PlotPath != "" {
		out.PlotPath = filepath.Base(rep.PlotPath)
		resp.PlotURL = "/uploads/" + out.PlotPath
	}
	if rep.CSVPath != "" {
		out.CSVPath = filepath.Base(rep.CSVPath)
		resp.CSVURL = "/uploads/" + out.CSVPath
	}
	return c.JSON(http.StatusOK, resp)
}

// handleUpload serves a file written by a run.
func (s *Server) handleUpload(c echo.Context) error {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	path := filepath.Join(s.opts.OutputDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return c.File(path)
}

func formInt(c echo.Context, name string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.FormValue(name)))
	if err != nil {
		return fallback
	}
	return v
}

func isBodyTooLarge(err error) bool {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code == http.StatusRequestEntityTooLarge
	}
	var me *http.MaxBytesError
	return errors.As(err, &me)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns nil after a clean Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

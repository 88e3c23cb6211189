// Package server exposes the relay control surface over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/internal/relay"
	"github.com/Aidin1998/feedrelay/internal/trigger"
	"github.com/Aidin1998/feedrelay/pkg/errors"
)

const (
	defaultSessionsLimit = 20
	maxSessionsLimit     = 500
)

// Invoker runs sessions and reports on them
type Invoker interface {
	Invoke(ctx context.Context, o trigger.Overrides) (*trigger.Response, error)
	State() relay.State
	Running() bool
	Recent(ctx context.Context, n int) ([]relay.Result, error)
}

// NextRunner reports the next scheduled firing
type NextRunner interface {
	Next() time.Time
}

// Config tunes the HTTP surface
type Config struct {
	Service string
	// RateLimit is requests per second per client on /v1; 0 disables it.
	RateLimit float64
	RateBurst int
}

// Server represents the HTTP server
type Server struct {
	logger   *zap.Logger
	invoker  Invoker
	schedule NextRunner
	service  string
	limiter  *rateLimiter
}

// NewServer creates a new HTTP server. schedule may be nil when periodic
// sessions are disabled.
func NewServer(logger *zap.Logger, invoker Invoker, schedule NextRunner, cfg Config) *Server {
	if cfg.Service == "" {
		cfg.Service = "feedrelay"
	}
	s := &Server{
		logger:   logger.Named("http"),
		invoker:  invoker,
		schedule: schedule,
		service:  cfg.Service,
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return s
}

// Router creates a new HTTP router
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware(s.service))
	router.Use(cors.Default())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.middleware(s))
	}
	{
		v1.GET("/state", s.handleState)
		v1.GET("/sessions", s.handleSessions)
		v1.POST("/invoke", s.handleInvoke)
	}
	return router
}

func (s *Server) handleState(c *gin.Context) {
	body := gin.H{
		"state":   s.invoker.State().String(),
		"running": s.invoker.Running(),
	}
	if s.schedule != nil {
		if next := s.schedule.Next(); !next.IsZero() {
			body["next_run"] = next
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSessions(c *gin.Context) {
	limit := defaultSessionsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSessionsLimit {
			s.writeProblem(c, errors.InvalidConfig.
				Explain("invalid limit %q", raw).
				WithField("range", "limit", "must be an integer between 1 and "+strconv.Itoa(maxSessionsLimit)))
			return
		}
		limit = n
	}

	sessions, err := s.invoker.Recent(c.Request.Context(), limit)
	if err != nil {
		s.writeProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleInvoke(c *gin.Context) {
	var o trigger.Overrides
	// an empty body, chunked or not, means no overrides
	if err := c.ShouldBindJSON(&o); err != nil && !errors.Is(err, io.EOF) {
		s.writeProblem(c, errors.InvalidConfig.Explain("invalid request body").Wrap(err))
		return
	}

	resp, err := s.invoker.Invoke(c.Request.Context(), o)
	if err != nil {
		p := errors.ToProblemDetails(err, c.Request.URL.Path)
		if resp != nil {
			p.WithExtra("session", resp.Session)
		}
		s.render(c, p, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeProblem writes an RFC 7807 response for err
func (s *Server) writeProblem(c *gin.Context, err error) {
	s.render(c, errors.ToProblemDetails(err, c.Request.URL.Path), err)
}

func (s *Server) render(c *gin.Context, p *errors.ProblemDetails, err error) {
	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.HasTraceID() {
		p.WithTraceID(sc.TraceID().String())
	}
	if p.Status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	} else {
		s.logger.Warn("Request rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	data, mErr := json.Marshal(p)
	if mErr != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(p.Status, "application/problem+json", data)
}

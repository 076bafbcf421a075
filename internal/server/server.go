package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/strrl/brightspots/internal/dashboard"
	"github.com/strrl/brightspots/internal/delta"
)

type Config struct {
	Addr string
	// Admin enables the write endpoints.
	Admin bool
	// DeltasDir serves delta files from disk when set.
	DeltasDir    string
	AllowOrigins []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PushWait bounds how long a write waits for its delta push.
	PushWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		AllowOrigins: []string{"*"},
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		PushWait:     30 * time.Second,
	}
}

type Server struct {
	cfg    Config
	dash   *dashboard.Dashboard
	logger *zap.Logger
	engine *gin.Engine
}

func New(cfg Config, d *dashboard.Dashboard, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = def.AllowOrigins
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PushWait <= 0 {
		cfg.PushWait = def.PushWait
	}

	s := &Server{
		cfg:    cfg,
		dash:   d,
		logger: logger,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), corsMiddleware(s.cfg.AllowOrigins))

	api := r.Group("/api")
	api.GET("/summary", s.getSummary)
	api.GET("/themes", s.getThemes)
	api.GET("/tags/:domain", s.getTags)
	api.GET("/tags/:domain/cloud", s.getTagCloud)
	api.GET("/tags/:domain/:tag/entries", s.getTagEntries)
	api.GET("/tags/:domain/:tag/companies", s.getTagCompanies)
	api.GET("/rollups/:field", s.getRollup)
	api.GET("/companies", s.getCompanies)
	api.GET("/customer-themes", s.getCustomerThemes)
	api.GET("/emerging-tech", s.getEmergingTech)
	api.GET("/assessments", s.getAssessments)
	api.GET("/companies/:company/assessments", s.getCompanyAssessments)
	api.GET("/companies/:company/interest/:category/:topic", s.getInterest)
	api.GET("/export", s.getExport)
	api.GET("/records/:id", s.getRecord)

	admin := api.Group("", s.requireAdmin)
	admin.PUT("/companies/:company/assessments", s.putAssessments)
	admin.PUT("/companies/:company/customer-themes", s.putCustomerThemes)
	admin.PUT("/companies/:company/emerging-tech", s.putEmergingTech)
	admin.POST("/companies/:company/interest/:category/:topic", s.postInterest)

	if s.cfg.DeltasDir != "" {
		files := r.Group("/" + delta.Dir)
		files.GET("/:file", s.getDeltaFile)
		files.PUT("/:file", s.putDeltaFile)
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			"GET", "POST", "PUT", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "X-Requested-With", "Cache-Control",
		},
		ExposeHeaders: []string{
			"Content-Type", "Cache-Control",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) requireAdmin(c *gin.Context) {
	if !s.cfg.Admin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin mode is required for changes"})
		return
	}
	c.Next()
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       2 * s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr), zap.Bool("admin", s.cfg.Admin))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.dash.Wait()
	return nil
}

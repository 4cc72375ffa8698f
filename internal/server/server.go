// Package server exposes caption editing, preview and export over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mgpai22/burnsub/internal/burn"
	"github.com/mgpai22/burnsub/internal/jobs"
	"github.com/mgpai22/burnsub/internal/logging"
	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/session"
	"github.com/mgpai22/burnsub/internal/subtitle"
	"github.com/mgpai22/burnsub/internal/upload"
)

type Prober interface {
	Probe(ctx context.Context, path string) (*media.Info, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, videoPath, model string) ([]subtitle.Segment, error)
}

type Burner interface {
	Run(ctx context.Context, job *burn.ExportJob) (*burn.Result, error)
}

type Deps struct {
	Uploads     *upload.Store
	Sessions    *session.Manager
	Jobs        *jobs.Runner
	Prober      Prober
	Transcriber Transcriber
	Burner      Burner
	// where the burner writes <job id>/<file>
	OutputDir string
	Logger    *logging.Logger
}

type Server struct {
	deps   Deps
	log    *logging.Logger
	router *gin.Engine
}

func New(deps Deps) *Server {
	s := &Server{
		deps: deps,
		log:  logging.OrNop(deps.Logger),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestLogger(s.log))
	router.Use(recoveryMiddleware())
	router.Use(corsMiddleware())
	router.Use(errorHandlerMiddleware())

	api := router.Group("/api")
	{
		api.POST("/upload", s.handleUpload)
		api.GET("/fonts", s.handleFonts)
		api.POST("/burn", s.handleBurn)

		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions/:id", s.handleGetSession)
		api.DELETE("/sessions/:id", s.handleDeleteSession)
		api.POST("/sessions/:id/transcribe", s.handleTranscribe)
		api.PUT("/sessions/:id/segments", s.handleReplaceSegments)
		api.POST("/sessions/:id/segments", s.handleInsertSegment)
		api.POST("/sessions/:id/segments/normalize", s.handleNormalizeSegments)
		api.PATCH("/sessions/:id/segments/:index", s.handleEditSegment)
		api.DELETE("/sessions/:id/segments/:index", s.handleDeleteSegment)
		api.PATCH("/sessions/:id/style", s.handleStyle)
		api.GET("/sessions/:id/preview", s.handlePreview)
		api.GET("/sessions/:id/subtitles.srt", s.handleSubtitles)
		api.POST("/sessions/:id/export", s.handleExport)

		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)
		api.DELETE("/jobs/:id", s.handleCancelJob)
	}

	router.GET("/uploads/:id", s.handleUploadedVideo)
	router.GET("/outputs/:job/:name", s.handleOutput)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"service":  "burnsub",
			"sessions": s.deps.Sessions.Len(),
		})
	})

	return router
}

// Run serves on addr until ctx is done, then drains in-flight requests and
// cancels running jobs.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.deps.Jobs.Shutdown(shutdownCtx); err != nil {
		s.log.Warnw("jobs did not stop in time", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// one structured line per request
func requestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Microsecond),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.Last().Error())
		}

		switch {
		case c.Writer.Status() >= 500:
			log.Errorw("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warnw("request", fields...)
		default:
			log.Debugw("request", fields...)
		}
	}
}

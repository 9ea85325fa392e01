// Package server exposes the conversion pipeline over HTTP and reports
// liveness over the gRPC health protocol.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/export"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
	"github.com/FreelineGuide/ExamBulldozer/internal/pipeline"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
)

const (
	headerRequestID = "X-Request-ID"
	headerAPIKey    = "X-API-Key"
)

// Deps are the collaborators the API serves from.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Service      llm.TextCompletionService
	Models       *llm.Catalog
	Schemas      *schema.Catalog
	Exporter     *export.Service
	Settings     pipeline.Settings
	DefaultModel string
}

type Server struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewService(logger)
	}
	return &Server{deps: deps, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.Healthz)

	v1 := r.Group("/v1")
	v1.GET("/models", s.ListModels)
	v1.GET("/models/:id/check", s.CheckModel)
	v1.GET("/question-types", s.ListQuestionTypes)
	v1.GET("/question-types/:id", s.GetQuestionType)
	v1.PUT("/question-types/:id", s.PutQuestionType)
	v1.DELETE("/question-types/:id", s.DeleteQuestionType)
	v1.POST("/plan", s.Plan)
	v1.POST("/convert", s.Convert)
	v1.POST("/export", s.Export)
	return r
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))

		c.Next()

		s.logger.Info("server.http.request",
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": s.deps.DefaultModel,
		"models":  s.deps.Models.List(),
	})
}

// CheckModel sends a short prompt for the model and reports whether it and
// its key are usable. The key may be supplied in the X-API-Key header.
func (s *Server) CheckModel(c *gin.Context) {
	cfg, err := s.deps.Settings.RunConfig(s.deps.Models, c.Param("id"), "", c.GetHeader(headerAPIKey))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pipeline.CheckModel(c.Request.Context(), s.deps.Service, cfg))
}

// writeError maps err onto a status and a JSON body.
func (s *Server) writeError(c *gin.Context, err error) {
	status := common.HTTPStatus(err)
	if errors.Is(err, schema.ErrReadOnly) {
		status = http.StatusConflict
	}
	code := ""
	var ae *common.AppError
	if errors.As(err, &ae) {
		code = ae.Code
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("server.http.error", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(err error) error {
	return common.NewAppError(common.CodeInvalidInput, "malformed request body: "+err.Error(), common.ErrInvalidInput)
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/FreelineGuide/ExamBulldozer/internal/normalize"
	"github.com/FreelineGuide/ExamBulldozer/internal/pipeline"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type convertRequest struct {
	QuestionType string `json:"question_type" binding:"required"`
	Model        string `json:"model"`
	Text         string `json:"text"`
	APIKey       string `json:"api_key"`
}

type planBatch struct {
	Index     int  `json:"index"`
	Units     int  `json:"units"`
	Tokens    int  `json:"tokens"`
	Oversized bool `json:"oversized"`
}

type planResponse struct {
	QuestionType string      `json:"question_type"`
	Model        string      `json:"model"`
	Units        int         `json:"units"`
	FixedCost    int         `json:"fixed_cost"`
	Budget       int         `json:"budget"`
	Batches      []planBatch `json:"batches"`
}

type exportRequest struct {
	QuestionType string             `json:"question_type" binding:"required"`
	Label        string             `json:"label"`
	Records      []normalize.Record `json:"records"`
}

func (s *Server) runConfig(req convertRequest) (pipeline.RunConfig, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.deps.DefaultModel
	}
	return s.deps.Settings.RunConfig(s.deps.Models, model, req.QuestionType, req.APIKey)
}

// Plan is a dry run: it reports how text would be batched without calling a model.
func (s *Server) Plan(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest(err))
		return
	}
	cfg, err := s.runConfig(req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	cfg.RequireAPIKey = false

	prep, err := s.deps.Orchestrator.Prepare(c.Request.Context(), cfg, req.Text)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := planResponse{
		QuestionType: prep.Descriptor.ID,
		Model:        cfg.ModelID,
		Units:        len(prep.Units),
		FixedCost:    prep.Plan.FixedCost,
		Budget:       prep.Plan.Budget,
		Batches:      make([]planBatch, 0, len(prep.Plan.Batches)),
	}
	for _, b := range prep.Plan.Batches {
		out.Batches = append(out.Batches, planBatch{Index: b.Index, Units: len(b.Units), Tokens: b.Tokens, Oversized: b.Oversized})
	}
	c.JSON(http.StatusOK, out)
}

// Convert runs the pipeline. Per-batch failures are part of a 200 response;
// only configuration errors fail the request.
func (s *Server) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest(err))
		return
	}
	cfg, err := s.runConfig(req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.deps.Orchestrator.Run(c.Request.Context(), cfg, req.Text)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Export renders records as an XLSX attachment.
func (s *Server) Export(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest(err))
		return
	}
	f, err := s.deps.Exporter.ExportXLSX(req.QuestionType, req.Label, req.Records)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	c.Data(http.StatusOK, contentTypeXLSX, f.Data)
}

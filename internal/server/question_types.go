package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
)

type questionTypeRequest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	JSONSchema     json.RawMessage `json:"json_schema"`
	PromptTemplate string          `json:"prompt_template"`
}

func (s *Server) ListQuestionTypes(c *gin.Context) {
	list, err := s.deps.Schemas.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question_types": list})
}

func (s *Server) GetQuestionType(c *gin.Context) {
	d, err := s.deps.Schemas.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// PutQuestionType creates or replaces a custom question type, or overrides a
// built-in one.
func (s *Server) PutQuestionType(c *gin.Context) {
	var req questionTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest(err))
		return
	}
	d := schema.Descriptor{
		ID:             c.Param("id"),
		Name:           req.Name,
		Description:    req.Description,
		JSONSchema:     req.JSONSchema,
		PromptTemplate: req.PromptTemplate,
	}
	ctx := c.Request.Context()
	if err := s.deps.Schemas.Put(ctx, d); err != nil {
		s.writeError(c, err)
		return
	}
	stored, err := s.deps.Schemas.Get(ctx, d.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *Server) DeleteQuestionType(c *gin.Context) {
	if err := s.deps.Schemas.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

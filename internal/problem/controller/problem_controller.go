package controller

import (
	"strconv"

	"codearena/internal/common/http/middleware"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/problem/model"
	"codearena/internal/problem/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem catalogue endpoints.
type ProblemController struct {
	problemService *service.ProblemService
}

func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// Create handles problem creation.
func (h *ProblemController) Create(c *gin.Context) {
	var req CreateProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	problem, err := h.problemService.CreateProblem(c.Request.Context(), service.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Difficulty:  model.Difficulty(req.Difficulty),
		Topics:      req.Topics,
		Constraints: req.Constraints,
		Examples:    req.Examples,
		TestCases:   req.TestCases,
		Inactive:    req.Inactive,
		CreatedBy:   middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, CreateProblemResponse{ID: problem.ID, Slug: problem.Slug})
}

// Get returns a problem with hidden test cases stripped.
func (h *ProblemController) Get(c *gin.Context) {
	problemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	problem, err := h.problemService.GetProblem(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toProblemResponse(problem))
}

func (h *ProblemController) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	problems, err := h.problemService.ListProblems(c.Request.Context(), model.ListFilter{
		Difficulty: model.Difficulty(c.Query("difficulty")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]ProblemResponse, 0, len(problems))
	for _, p := range problems {
		out = append(out, toProblemResponse(p))
	}
	response.Success(c, out)
}

// parseID reads a positive integer path parameter, answering 400 when it is not one.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

type CreateProblemRequest struct {
	Title       string                `json:"title" binding:"required"`
	Description string                `json:"description" binding:"required"`
	Difficulty  string                `json:"difficulty" binding:"required"`
	Topics      []string              `json:"topics"`
	Constraints []string              `json:"constraints"`
	Examples    []model.Example       `json:"examples"`
	TestCases   []judgemodel.TestCase `json:"testCases"`
	Inactive    bool                  `json:"inactive"`
}

type CreateProblemResponse struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

type ProblemResponse struct {
	ID          int64                 `json:"id"`
	Title       string                `json:"title"`
	Slug        string                `json:"slug"`
	Description string                `json:"description"`
	Difficulty  model.Difficulty      `json:"difficulty"`
	Topics      []string              `json:"topics"`
	Constraints []string              `json:"constraints"`
	Examples    []model.Example       `json:"examples"`
	TestCases   []judgemodel.TestCase `json:"testCases"`
	Stats       model.Stats           `json:"stats"`
}

func toProblemResponse(p *model.Problem) ProblemResponse {
	return ProblemResponse{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Difficulty:  p.Difficulty,
		Topics:      p.Topics,
		Constraints: p.Constraints,
		Examples:    p.Examples,
		TestCases:   p.VisibleCases(),
		Stats:       p.Stats(),
	}
}

package controller

import (
	"strconv"

	"codearena/internal/common/http/middleware"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/submit/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitController handles run, submit and solved-history endpoints.
type SubmitController struct {
	submitService *service.SubmitService
}

func NewSubmitController(submitService *service.SubmitService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Run evaluates code against the visible test cases.
func (h *SubmitController) Run(c *gin.Context) {
	problemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	result, err := h.submitService.Run(c.Request.Context(), service.RunInput{
		ProblemID:  problemID,
		UserID:     middleware.CurrentUserID(c),
		Language:   req.Language,
		SourceCode: req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	result = result.Redacted()
	response.Success(c, RunResponse{
		Output:      result.Stdout,
		Stderr:      result.Stderr,
		Status:      result.Verdict,
		TestResults: result.TestResults,
	})
}

// Submit judges code against every test case and records the outcome.
func (h *SubmitController) Submit(c *gin.Context) {
	problemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	outcome, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		ProblemID:  problemID,
		UserID:     middleware.CurrentUserID(c),
		Language:   req.Language,
		SourceCode: req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ToSubmitResponse(outcome))
}

func (h *SubmitController) Solved(c *gin.Context) {
	entries, err := h.submitService.History(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// SolvedSource returns the archived accepted solution for one problem.
func (h *SubmitController) SolvedSource(c *gin.Context) {
	problemID, ok := parseID(c, "problemId")
	if !ok {
		return
	}
	source, err := h.submitService.SolvedSource(c.Request.Context(), middleware.CurrentUserID(c), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"problemId": problemID, "code": source})
}

func (h *SubmitController) Activity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.submitService.Activity(c.Request.Context(), middleware.CurrentUserID(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

func (h *SubmitController) GlobalLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.submitService.GlobalLeaderboard(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// CodeRequest is the body of run and submit calls.
type CodeRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

type RunResponse struct {
	Output      string                  `json:"output"`
	Stderr      string                  `json:"stderr,omitempty"`
	Status      judgemodel.Verdict      `json:"status"`
	TestResults []judgemodel.CaseResult `json:"testResults"`
}

type SubmitResponse struct {
	Output      string                  `json:"output"`
	Stderr      string                  `json:"stderr,omitempty"`
	Status      judgemodel.Verdict      `json:"status"`
	Message     string                  `json:"message"`
	TestResults []judgemodel.CaseResult `json:"testResults"`
	FirstSolve  bool                    `json:"firstSolve"`
	Points      int64                   `json:"points,omitempty"`
}

// ToSubmitResponse renders a submit outcome with hidden cases redacted.
func ToSubmitResponse(outcome *service.SubmitOutcome) SubmitResponse {
	result := outcome.Result.Redacted()
	message := result.Message
	if message == "" {
		switch {
		case outcome.FirstSolve:
			message = "Accepted! Problem solved."
		case result.Accepted():
			message = "Accepted. Problem already solved."
		default:
			message = "Submission did not pass all test cases."
		}
	}
	return SubmitResponse{
		Output:      result.Stdout,
		Stderr:      result.Stderr,
		Status:      result.Verdict,
		Message:     message,
		TestResults: result.TestResults,
		FirstSolve:  outcome.FirstSolve,
		Points:      outcome.PointsAdded,
	}
}

package controller

import (
	"strconv"
	"time"

	"codearena/internal/common/http/middleware"
	"codearena/internal/contest/model"
	"codearena/internal/contest/service"
	submitcontroller "codearena/internal/submit/controller"
	"codearena/pkg/utils/logger"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContestController exposes contest lifecycle endpoints and the live leaderboard.
type ContestController struct {
	contestService *service.ContestService
	hub            *LeaderboardHub
}

func NewContestController(contestService *service.ContestService, hub *LeaderboardHub) *ContestController {
	return &ContestController{contestService: contestService, hub: hub}
}

func (h *ContestController) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	contests, err := h.contestService.List(c.Request.Context(), model.ListFilter{
		Status: model.Status(c.Query("status")),
		Type:   model.Type(c.Query("type")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	summaries := make([]ContestSummary, 0, len(contests))
	for _, contest := range contests {
		summaries = append(summaries, toSummary(contest))
	}
	response.Success(c, summaries)
}

func (h *ContestController) Get(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	contest, err := h.contestService.Get(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

func (h *ContestController) Create(c *gin.Context) {
	var req service.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	req.CreatedBy = middleware.CurrentUserID(c)
	contest, err := h.contestService.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contest)
}

func (h *ContestController) Join(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	participant, err := h.contestService.Join(c.Request.Context(), contestID, middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, participant)
}

// Start opens the caller's personal attempt window.
func (h *ContestController) Start(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	participant, err := h.contestService.Start(c.Request.Context(), contestID, middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, participant)
}

func (h *ContestController) RecordSolve(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req RecordSolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	standings, err := h.contestService.RecordSolve(c.Request.Context(), contestID, req.UserID, req.ProblemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, standings)
}

// Submit judges a contest solution and credits it when accepted.
func (h *ContestController) Submit(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	problemID, ok := parseID(c, "problemId")
	if !ok {
		return
	}
	var req submitcontroller.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	outcome, err := h.contestService.SubmitSolution(c.Request.Context(), service.SubmitInput{
		ContestID:  contestID,
		ProblemID:  problemID,
		UserID:     middleware.CurrentUserID(c),
		Language:   req.Language,
		SourceCode: req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ContestSubmitResponse{
		SubmitResponse: submitcontroller.ToSubmitResponse(outcome.Judge),
		Recorded:       outcome.Recorded,
		ContestPoints:  outcome.Points,
		Standings:      outcome.Standings,
		RecordError:    outcome.RecordError,
	})
}

func (h *ContestController) Leaderboard(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	standings, err := h.contestService.Leaderboard(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, standings)
}

// LeaderboardStream sends the current standings, then every update, over a websocket.
func (h *ContestController) LeaderboardStream(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	standings, err := h.contestService.Leaderboard(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, contestID, standings); err != nil {
		logger.Warn(c.Request.Context(), "leaderboard stream failed", zap.Int64("contest_id", contestID), zap.Error(err))
	}
}

func (h *ContestController) UpdateStatus(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	contest, err := h.contestService.UpdateStatus(c.Request.Context(), contestID, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toSummary(contest))
}

func (h *ContestController) DistributePrizes(c *gin.Context) {
	contestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	payouts, err := h.contestService.DistributePrizes(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if payouts == nil {
		payouts = []model.Payout{}
	}
	response.Success(c, payouts)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

type RecordSolveRequest struct {
	UserID    int64 `json:"userId" binding:"required"`
	ProblemID int64 `json:"problemId" binding:"required"`
}

type UpdateStatusRequest struct {
	Status model.Status `json:"status" binding:"required"`
}

type ContestSubmitResponse struct {
	submitcontroller.SubmitResponse
	Recorded      bool             `json:"recorded"`
	ContestPoints int64            `json:"contestPoints"`
	Standings     []model.Standing `json:"standings,omitempty"`
	RecordError   string           `json:"recordError,omitempty"`
}

// ContestSummary is the list view of a contest, without participants.
type ContestSummary struct {
	ID                int64        `json:"id"`
	Title             string       `json:"title"`
	Slug              string       `json:"slug"`
	Type              model.Type   `json:"type"`
	Status            model.Status `json:"status"`
	StartTime         string       `json:"startTime"`
	EndTime           string       `json:"endTime"`
	DurationMinutes   int          `json:"durationMinutes"`
	Problems          int          `json:"problems"`
	MaxParticipants   int          `json:"maxParticipants"`
	TotalParticipants int          `json:"totalParticipants"`
	PrizeCoins        int64        `json:"prizeCoins"`
}

func toSummary(c *model.Contest) ContestSummary {
	return ContestSummary{
		ID:                c.ID,
		Title:             c.Title,
		Slug:              c.Slug,
		Type:              c.Type,
		Status:            c.Status,
		StartTime:         c.StartTime.UTC().Format(time.RFC3339),
		EndTime:           c.EndTime.UTC().Format(time.RFC3339),
		DurationMinutes:   c.DurationMinutes,
		Problems:          len(c.Problems),
		MaxParticipants:   c.MaxParticipants,
		TotalParticipants: len(c.Participants),
		PrizeCoins:        c.PrizePool.Coins,
	}
}

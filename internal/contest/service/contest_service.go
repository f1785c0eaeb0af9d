package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/metrics"
	"codearena/internal/common/mq"
	"codearena/internal/contest/model"
	"codearena/internal/contest/repository"
	"codearena/internal/contest/scoring"
	"codearena/internal/contest/statemachine"
	problemrepo "codearena/internal/problem/repository"
	submitservice "codearena/internal/submit/service"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries       = 5
	defaultProblemPoints    = 100
	defaultLeaderboardTopic = "contest.leaderboard"
	defaultPrizeTopic       = "contest.prize_awarded"
)

// Submitter judges a solution and records the practice outcome.
type Submitter interface {
	Submit(ctx context.Context, input submitservice.SubmitInput) (*submitservice.SubmitOutcome, error)
}

type TimeoutConfig struct {
	DB time.Duration `yaml:"db"`
	MQ time.Duration `yaml:"mq"`
}

// Config holds contest service dependencies and settings.
type Config struct {
	Repo      repository.ContestRepository
	Problems  problemrepo.ProblemRepository
	Submitter Submitter
	Producer  mq.Producer

	LeaderboardTopic string
	PrizeTopic       string
	MaxRetries       int
	Timeouts         TimeoutConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

type ContestService struct {
	repo      repository.ContestRepository
	problems  problemrepo.ProblemRepository
	submitter Submitter
	producer  mq.Producer
	validate  *validator.Validate

	leaderboardTopic string
	prizeTopic       string
	maxRetries       int
	timeouts         TimeoutConfig
	now              func() time.Time
}

// CreateInput describes a new contest.
type CreateInput struct {
	Title           string                 `json:"title" validate:"required,max=200"`
	Description     string                 `json:"description" validate:"max=20000"`
	Type            model.Type             `json:"type" validate:"required"`
	Difficulty      string                 `json:"difficulty" validate:"omitempty,oneof=easy medium hard mixed"`
	Topics          []string               `json:"topics" validate:"max=20,dive,max=50"`
	StartTime       time.Time              `json:"startTime" validate:"required"`
	EndTime         time.Time              `json:"endTime" validate:"required"`
	DurationMinutes int                    `json:"durationMinutes" validate:"gte=0"`
	Problems        []model.ContestProblem `json:"problems" validate:"required,min=1,max=50"`
	MaxParticipants int                    `json:"maxParticipants" validate:"gte=0"`
	EntryFee        int64                  `json:"entryFee" validate:"gte=0"`
	PrizePool       model.PrizePool        `json:"prizePool"`
	CreatedBy       int64                  `json:"-"`
}

// SubmitInput is a contest submission.
type SubmitInput struct {
	ContestID  int64
	ProblemID  int64
	UserID     int64
	Language   string
	SourceCode string
}

// SubmitOutcome is the judged result plus the contest side effects.
type SubmitOutcome struct {
	Judge       *submitservice.SubmitOutcome
	Recorded    bool
	Points      int64
	Standings   []model.Standing
	RecordError string
}

// LeaderboardEvent is published after every recorded solve.
type LeaderboardEvent struct {
	ContestID int64            `json:"contestId"`
	Version   int64            `json:"version"`
	Standings []model.Standing `json:"standings"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// PrizeAwardedEvent asks the wallet to credit one payout.
type PrizeAwardedEvent struct {
	EventID   string    `json:"eventId"`
	ContestID int64     `json:"contestId"`
	UserID    int64     `json:"userId"`
	Rank      int       `json:"rank"`
	Coins     int64     `json:"coins"`
	AwardedAt time.Time `json:"awardedAt"`
}

func NewContestService(cfg Config) (*ContestService, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	if cfg.LeaderboardTopic == "" {
		cfg.LeaderboardTopic = defaultLeaderboardTopic
	}
	if cfg.PrizeTopic == "" {
		cfg.PrizeTopic = defaultPrizeTopic
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ContestService{
		repo:             cfg.Repo,
		problems:         cfg.Problems,
		submitter:        cfg.Submitter,
		producer:         cfg.Producer,
		validate:         validator.New(),
		leaderboardTopic: cfg.LeaderboardTopic,
		prizeTopic:       cfg.PrizeTopic,
		maxRetries:       cfg.MaxRetries,
		timeouts:         cfg.Timeouts,
		now:              cfg.Now,
	}, nil
}

func (s *ContestService) Create(ctx context.Context, input CreateInput) (*model.Contest, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if !input.Type.Valid() {
		return nil, pkgerrors.ValidationError("type", "unknown contest type")
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, pkgerrors.ValidationError("endTime", "must be after startTime")
	}
	window := int(input.EndTime.Sub(input.StartTime) / time.Minute)
	if input.DurationMinutes == 0 {
		input.DurationMinutes = window
	}
	if input.DurationMinutes <= 0 || input.DurationMinutes > window {
		return nil, pkgerrors.ValidationError("durationMinutes", "must fit inside the contest window")
	}
	problems, err := s.normalizeProblems(ctx, input.Problems)
	if err != nil {
		return nil, err
	}
	for _, tier := range input.PrizePool.Distribution {
		if tier.Rank <= 0 || tier.Coins < 0 || tier.Percentage < 0 || tier.Percentage > 100 {
			return nil, pkgerrors.ValidationError("prizePool", "invalid prize tier")
		}
	}

	contest := &model.Contest{
		Title:           strings.TrimSpace(input.Title),
		Slug:            slug.Make(input.Title),
		Description:     input.Description,
		Type:            input.Type,
		Difficulty:      input.Difficulty,
		Topics:          input.Topics,
		StartTime:       input.StartTime.UTC(),
		EndTime:         input.EndTime.UTC(),
		DurationMinutes: input.DurationMinutes,
		Problems:        problems,
		MaxParticipants: input.MaxParticipants,
		EntryFee:        input.EntryFee,
		PrizePool:       input.PrizePool,
		Participants:    []model.Participant{},
		CreatedBy:       input.CreatedBy,
	}
	contest.Status = statemachine.TimeStatus(contest, s.now())

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if _, err := s.repo.Create(ctxDB.ctx, contest); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "create contest failed")
	}
	logger.Info(ctx, "contest created", zap.Int64("contest_id", contest.ID), zap.String("slug", contest.Slug))
	return contest, nil
}

// Get returns the contest with its status derived from the clock.
func (s *ContestService) Get(ctx context.Context, contestID int64) (*model.Contest, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	contest, err := s.repo.GetByID(ctxDB.ctx, contestID)
	if err != nil {
		return nil, mapRepoError(err, "load contest failed")
	}
	contest.Status = statemachine.EffectiveStatus(contest, s.now())
	return contest, nil
}

func (s *ContestService) List(ctx context.Context, filter model.ListFilter) ([]*model.Contest, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, pkgerrors.ValidationError("status", "unknown status")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, pkgerrors.ValidationError("type", "unknown contest type")
	}
	now := s.now()
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	contests, err := s.repo.List(ctxDB.ctx, filter, now)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list contests failed")
	}
	for _, c := range contests {
		c.Status = statemachine.EffectiveStatus(c, now)
	}
	return contests, nil
}

func (s *ContestService) Join(ctx context.Context, contestID, userID int64) (*model.Participant, error) {
	if userID <= 0 {
		return nil, pkgerrors.UnauthorizedError("login required to join")
	}
	contest, err := s.mutate(ctx, contestID, func(c *model.Contest, now time.Time) error {
		return statemachine.Join(c, userID, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "contest joined", zap.Int64("contest_id", contestID), zap.Int64("user_id", userID))
	return contest.Participant(userID), nil
}

func (s *ContestService) Start(ctx context.Context, contestID, userID int64) (*model.Participant, error) {
	if userID <= 0 {
		return nil, pkgerrors.UnauthorizedError("")
	}
	contest, err := s.mutate(ctx, contestID, func(c *model.Contest, now time.Time) error {
		return statemachine.StartAttempt(c, userID, now)
	})
	if err != nil {
		return nil, err
	}
	return contest.Participant(userID), nil
}

// RecordSolve credits problemID to userID with the contest's points for it.
func (s *ContestService) RecordSolve(ctx context.Context, contestID, userID, problemID int64) ([]model.Standing, error) {
	var standings []model.Standing
	contest, err := s.mutate(ctx, contestID, func(c *model.Contest, now time.Time) error {
		problem, _ := c.Problem(problemID)
		var timeTaken time.Duration
		if p := c.Participant(userID); p != nil && p.StartTime != nil {
			timeTaken = now.Sub(*p.StartTime)
		}
		if err := statemachine.RecordSolve(c, userID, problemID, problem.Points, timeTaken, now); err != nil {
			return err
		}
		standings = scoring.RecomputeLeaderboard(c.Participants)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishLeaderboard(ctx, contest, standings)
	logger.Info(ctx, "contest solve recorded",
		zap.Int64("contest_id", contestID),
		zap.Int64("user_id", userID),
		zap.Int64("problem_id", problemID),
	)
	return standings, nil
}

// SubmitSolution checks the attempt window, judges the code and records an accepted solve.
func (s *ContestService) SubmitSolution(ctx context.Context, input SubmitInput) (*SubmitOutcome, error) {
	if input.UserID <= 0 {
		return nil, pkgerrors.UnauthorizedError("login required to submit")
	}
	if s.submitter == nil {
		return nil, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("judging is not configured")
	}
	contest, err := s.load(ctx, input.ContestID)
	if err != nil {
		return nil, err
	}
	if _, err := statemachine.CheckWindow(contest, input.UserID, input.ProblemID, s.now()); err != nil {
		return nil, err
	}
	problem, _ := contest.Problem(input.ProblemID)

	judged, err := s.submitter.Submit(ctx, submitservice.SubmitInput{
		ProblemID:  input.ProblemID,
		UserID:     input.UserID,
		Language:   input.Language,
		SourceCode: input.SourceCode,
		ContestID:  input.ContestID,
	})
	if err != nil {
		return nil, err
	}
	outcome := &SubmitOutcome{Judge: judged}
	if !judged.Result.Accepted() {
		return outcome, nil
	}

	standings, err := s.RecordSolve(ctx, input.ContestID, input.UserID, input.ProblemID)
	if err != nil {
		if !pkgerrors.GetCode(err).IsStateConflict() {
			return nil, err
		}
		// The window closed or a parallel submission won while judging.
		outcome.RecordError = pkgerrors.GetError(err).Error()
		return outcome, nil
	}
	outcome.Recorded = true
	outcome.Points = problem.Points
	outcome.Standings = standings
	return outcome, nil
}

func (s *ContestService) UpdateStatus(ctx context.Context, contestID int64, target model.Status) (*model.Contest, error) {
	if !target.Valid() {
		return nil, pkgerrors.ValidationError("status", "unknown status")
	}
	contest, err := s.mutate(ctx, contestID, func(c *model.Contest, now time.Time) error {
		return statemachine.Transition(c, target, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "contest status updated", zap.Int64("contest_id", contestID), zap.String("status", string(target)))
	return contest, nil
}

// Leaderboard recomputes standings from the stored participants.
func (s *ContestService) Leaderboard(ctx context.Context, contestID int64) ([]model.Standing, error) {
	contest, err := s.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return scoring.RecomputeLeaderboard(contest.Participants), nil
}

// DistributePrizes stores the payouts of a completed contest and asks the wallet to credit them.
// Repeated calls store and publish the same payouts; the event ids let consumers drop duplicates.
func (s *ContestService) DistributePrizes(ctx context.Context, contestID int64) ([]model.Payout, error) {
	var payouts []model.Payout
	contest, err := s.mutate(ctx, contestID, func(c *model.Contest, now time.Time) error {
		if statemachine.EffectiveStatus(c, now) != model.StatusCompleted {
			return pkgerrors.Newf(pkgerrors.InvalidTransition, "prizes are distributed after the contest completes")
		}
		scoring.Apply(c)
		payouts = scoring.DistributePrizes(c)
		c.Payouts = payouts
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, payout := range payouts {
		s.publishPrize(ctx, contest.ID, payout)
	}
	logger.Info(ctx, "contest prizes distributed", zap.Int64("contest_id", contestID), zap.Int("payouts", len(payouts)))
	return payouts, nil
}

// SweepStatuses persists time-derived statuses for contests whose stored status lags behind.
func (s *ContestService) SweepStatuses(ctx context.Context) (int, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	ids, err := s.repo.ListStale(ctxDB.ctx, s.now())
	ctxDB.cancel()
	if err != nil {
		return 0, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list stale contests failed")
	}
	updated := 0
	for _, id := range ids {
		_, err := s.mutate(ctx, id, func(c *model.Contest, now time.Time) error {
			c.Status = statemachine.EffectiveStatus(c, now)
			return nil
		})
		if err != nil {
			logger.Warn(ctx, "sweep contest status failed", zap.Int64("contest_id", id), zap.Error(err))
			continue
		}
		updated++
	}
	return updated, nil
}

// mutate loads the contest, applies fn to a copy and saves it with a version check.
// Version conflicts reload and retry; errors from fn are returned as they are.
func (s *ContestService) mutate(ctx context.Context, contestID int64, fn func(c *model.Contest, now time.Time) error) (*model.Contest, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		current, err := s.load(ctx, contestID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		next := current.Clone()
		if err := fn(next, now); err != nil {
			return nil, err
		}

		ctxDB := withTimeout(ctx, s.timeouts.DB)
		err = s.repo.Save(ctxDB.ctx, next)
		ctxDB.cancel()
		if err == nil {
			next.Status = statemachine.EffectiveStatus(next, now)
			return next, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, mapRepoError(err, "save contest failed")
		}
		metrics.ObserveContestConflict()
		logger.Debug(ctx, "contest version conflict", zap.Int64("contest_id", contestID), zap.Int("attempt", attempt))
	}
	return nil, pkgerrors.New(pkgerrors.ConcurrentModification)
}

func (s *ContestService) load(ctx context.Context, contestID int64) (*model.Contest, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	contest, err := s.repo.Load(ctxDB.ctx, contestID)
	if err != nil {
		return nil, mapRepoError(err, "load contest failed")
	}
	return contest, nil
}

func (s *ContestService) normalizeProblems(ctx context.Context, problems []model.ContestProblem) ([]model.ContestProblem, error) {
	seen := make(map[int64]struct{}, len(problems))
	out := make([]model.ContestProblem, 0, len(problems))
	for i, p := range problems {
		if p.ProblemID <= 0 {
			return nil, pkgerrors.ValidationError("problems", "problem id is required")
		}
		if _, dup := seen[p.ProblemID]; dup {
			return nil, pkgerrors.ValidationError("problems", "duplicate problem")
		}
		seen[p.ProblemID] = struct{}{}
		if p.Points < 0 {
			return nil, pkgerrors.ValidationError("problems", "points must not be negative")
		}
		if p.Points == 0 {
			p.Points = defaultProblemPoints
		}
		if p.Order == 0 {
			p.Order = i + 1
		}
		if s.problems != nil {
			ctxDB := withTimeout(ctx, s.timeouts.DB)
			problem, err := s.problems.GetByID(ctxDB.ctx, p.ProblemID)
			ctxDB.cancel()
			if err != nil {
				if errors.Is(err, problemrepo.ErrProblemNotFound) {
					return nil, pkgerrors.Newf(pkgerrors.ProblemNotFound, "problem %d not found", p.ProblemID)
				}
				return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load problem failed")
			}
			if !problem.IsActive {
				return nil, pkgerrors.Newf(pkgerrors.ProblemNotFound, "problem %d not found", p.ProblemID)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *ContestService) publishLeaderboard(ctx context.Context, contest *model.Contest, standings []model.Standing) {
	if s.producer == nil {
		return
	}
	event := LeaderboardEvent{
		ContestID: contest.ID,
		Version:   contest.Version,
		Standings: standings,
		UpdatedAt: s.now().UTC(),
	}
	s.publish(ctx, s.leaderboardTopic, strconv.FormatInt(contest.ID, 10), "", event)
}

func (s *ContestService) publishPrize(ctx context.Context, contestID int64, payout model.Payout) {
	if s.producer == nil {
		return
	}
	event := PrizeAwardedEvent{
		EventID:   fmt.Sprintf("contest-%d-prize-%d-%d", contestID, payout.Rank, payout.UserID),
		ContestID: contestID,
		UserID:    payout.UserID,
		Rank:      payout.Rank,
		Coins:     payout.Coins,
		AwardedAt: s.now().UTC(),
	}
	s.publish(ctx, s.prizeTopic, strconv.FormatInt(payout.UserID, 10), event.EventID, event)
}

func (s *ContestService) publish(ctx context.Context, topic, key, id string, event interface{}) {
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn(ctx, "encode contest event failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	message := mq.NewMessage(key, body)
	if id != "" {
		message.ID = id
	}
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.producer.Publish(ctxMQ.ctx, topic, message); err != nil {
		logger.Warn(ctx, "publish contest event failed", zap.String("topic", topic), zap.Error(err))
	}
}

func mapRepoError(err error, msg string) error {
	if errors.Is(err, repository.ErrContestNotFound) {
		return pkgerrors.New(pkgerrors.ContestNotFound)
	}
	return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "%s", msg)
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return pkgerrors.ValidationError(errs[0].Field(), errs[0].Tag())
	}
	return pkgerrors.BadRequest(err.Error())
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/mq"
	judgemodel "codearena/internal/judge/model"
	problemmodel "codearena/internal/problem/model"
	problemrepo "codearena/internal/problem/repository"
	"codearena/internal/submit/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GlobalLeaderboardKey is the sorted set of practice points per user.
const GlobalLeaderboardKey = "leaderboard:global"

const (
	inflightKeyPrefix = "submit:inflight:"
	attemptsKeyPrefix = "submit:attempts:"
	rateUserKeyPrefix = "submit:rate:user:"

	defaultInflightTTL    = 2 * time.Minute
	defaultAttemptsTTL    = 30 * 24 * time.Hour
	defaultMaxCodeBytes   = 64 << 10
	defaultJudgedTopic    = "submission.judged"
	defaultLeaderboardTop = 50
	maxLeaderboardTop     = 500
)

// Evaluator runs code against a problem's test cases.
type Evaluator interface {
	Run(ctx context.Context, problem *problemmodel.Problem, sourceCode, language string, mode judgemodel.Mode) (*judgemodel.SubmissionResult, error)
}

// RateLimiter is a fixed-window counter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration, code pkgerrors.ErrorCode) error
}

type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	Window  time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// Config holds submission service dependencies and settings.
type Config struct {
	ProblemRepo problemrepo.ProblemRepository
	SolvedRepo  repository.SolvedRepository
	Evaluator   Evaluator
	Cache       cache.Cache
	Limiter     RateLimiter
	Producer    mq.Producer
	Archive     *SourceArchive

	JudgedTopic  string
	MaxCodeBytes int
	InflightTTL  time.Duration
	RateLimit    RateLimitConfig
	Timeouts     TimeoutConfig
}

// SubmitService runs and submits solutions.
type SubmitService struct {
	problemRepo problemrepo.ProblemRepository
	solvedRepo  repository.SolvedRepository
	evaluator   Evaluator
	cache       cache.Cache
	limiter     RateLimiter
	producer    mq.Producer
	archive     *SourceArchive

	judgedTopic  string
	maxCodeBytes int
	inflightTTL  time.Duration
	rateLimit    RateLimitConfig
	timeouts     TimeoutConfig
}

// RunInput describes a run request. UserID is 0 for anonymous callers.
type RunInput struct {
	ProblemID  int64
	UserID     int64
	Language   string
	SourceCode string
}

// SubmitInput describes a submit request. ContestID is set when the submission belongs to a contest attempt.
type SubmitInput struct {
	ProblemID  int64
	UserID     int64
	Language   string
	SourceCode string
	ContestID  int64
}

// SubmitOutcome is the judged result plus what changed for the user.
type SubmitOutcome struct {
	Result      *judgemodel.SubmissionResult
	Problem     *problemmodel.Problem
	FirstSolve  bool
	PointsAdded int64
}

// JudgedEvent is published for every judged submit.
type JudgedEvent struct {
	EventID    string             `json:"eventId"`
	UserID     int64              `json:"userId"`
	ProblemID  int64              `json:"problemId"`
	ContestID  int64              `json:"contestId,omitempty"`
	Language   string             `json:"language"`
	Verdict    judgemodel.Verdict `json:"verdict"`
	Passed     int                `json:"passed"`
	Total      int                `json:"total"`
	FirstSolve bool               `json:"firstSolve"`
	JudgedAt   time.Time          `json:"judgedAt"`
}

// LeaderboardEntry is one row of the global leaderboard.
type LeaderboardEntry struct {
	Rank   int64 `json:"rank"`
	UserID int64 `json:"userId"`
	Score  int64 `json:"score"`
}

func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.ProblemRepo == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.SolvedRepo == nil {
		return nil, fmt.Errorf("solved repository is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.JudgedTopic == "" {
		cfg.JudgedTopic = defaultJudgedTopic
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.InflightTTL <= 0 {
		cfg.InflightTTL = defaultInflightTTL
	}
	return &SubmitService{
		problemRepo:  cfg.ProblemRepo,
		solvedRepo:   cfg.SolvedRepo,
		evaluator:    cfg.Evaluator,
		cache:        cfg.Cache,
		limiter:      cfg.Limiter,
		producer:     cfg.Producer,
		archive:      cfg.Archive,
		judgedTopic:  cfg.JudgedTopic,
		maxCodeBytes: cfg.MaxCodeBytes,
		inflightTTL:  cfg.InflightTTL,
		rateLimit:    cfg.RateLimit,
		timeouts:     cfg.Timeouts,
	}, nil
}

// Run evaluates visible test cases without persisting anything.
func (s *SubmitService) Run(ctx context.Context, input RunInput) (*judgemodel.SubmissionResult, error) {
	if err := s.validateCode(input.ProblemID, input.Language, input.SourceCode); err != nil {
		return nil, err
	}
	problem, err := s.loadActiveProblem(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	return s.evaluator.Run(ctx, problem, input.SourceCode, input.Language, judgemodel.ModeRun)
}

// Submit evaluates all test cases and records the outcome. Only a first
// accepted submission changes the user's history; every submit counts
// towards the problem statistics.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*SubmitOutcome, error) {
	if input.UserID <= 0 {
		return nil, pkgerrors.UnauthorizedError("login required to submit")
	}
	if err := s.validateCode(input.ProblemID, input.Language, input.SourceCode); err != nil {
		return nil, err
	}
	problem, err := s.loadActiveProblem(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}

	release, err := s.acquireInflight(ctx, input.UserID, input.ProblemID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkRateLimit(ctx, input.UserID); err != nil {
		return nil, err
	}

	result, err := s.evaluator.Run(ctx, problem, input.SourceCode, input.Language, judgemodel.ModeSubmit)
	if err != nil {
		return nil, err
	}
	outcome := &SubmitOutcome{Result: result, Problem: problem}

	attempts := s.countAttempt(ctx, input.UserID, input.ProblemID)
	if err := s.incrementStats(ctx, problem.ID, result.Accepted()); err != nil {
		return nil, err
	}

	if result.Accepted() {
		firstSolve, err := s.recordSolve(ctx, input, problem, attempts)
		if err != nil {
			return nil, err
		}
		if firstSolve {
			outcome.FirstSolve = true
			outcome.PointsAdded = problem.Difficulty.Points()
			s.creditLeaderboard(ctx, input.UserID, outcome.PointsAdded)
			s.archiveSource(ctx, input)
		}
	}

	s.publishJudged(ctx, input, outcome)
	logger.Info(ctx, "submission judged",
		zap.Int64("problem_id", problem.ID),
		zap.Int64("user_id", input.UserID),
		zap.String("verdict", string(result.Verdict)),
		zap.Bool("first_solve", outcome.FirstSolve),
	)
	return outcome, nil
}

// History returns the user's solved problems, newest first.
func (s *SubmitService) History(ctx context.Context, userID int64) ([]repository.SolvedEntry, error) {
	if userID <= 0 {
		return nil, pkgerrors.UnauthorizedError("")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	entries, err := s.solvedRepo.ListSolved(ctxDB.ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list solved problems failed")
	}
	return entries, nil
}

// Activity returns the user's most recent activity records.
func (s *SubmitService) Activity(ctx context.Context, userID int64, limit int) ([]repository.Activity, error) {
	if userID <= 0 {
		return nil, pkgerrors.UnauthorizedError("")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	items, err := s.solvedRepo.ListActivity(ctxDB.ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list activity failed")
	}
	return items, nil
}

// SolvedSource returns the archived accepted source for a solved problem.
func (s *SubmitService) SolvedSource(ctx context.Context, userID, problemID int64) (string, error) {
	if s.archive == nil {
		return "", pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("source archive is not configured")
	}
	entries, err := s.History(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.ProblemID != problemID {
			continue
		}
		if entry.SourceKey == "" {
			break
		}
		ctxStorage := withTimeout(ctx, s.timeouts.Storage)
		defer ctxStorage.cancel()
		return s.archive.Load(ctxStorage.ctx, entry.SourceKey)
	}
	return "", pkgerrors.NotFoundError("archived source")
}

// GlobalLeaderboard returns the top users by practice points.
func (s *SubmitService) GlobalLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardTop
	}
	if limit > maxLeaderboardTop {
		limit = maxLeaderboardTop
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	members, err := s.cache.ZRevRangeWithScores(ctxCache.ctx, GlobalLeaderboardKey, 0, int64(limit-1))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.CacheError, "read leaderboard failed")
	}
	entries := make([]LeaderboardEntry, 0, len(members))
	for _, member := range members {
		userID, err := strconv.ParseInt(member.Member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{Rank: int64(len(entries) + 1), UserID: userID, Score: int64(member.Score)})
	}
	return entries, nil
}

func (s *SubmitService) validateCode(problemID int64, language, source string) error {
	if problemID <= 0 {
		return pkgerrors.ValidationError("problem_id", "required")
	}
	if strings.TrimSpace(language) == "" {
		return pkgerrors.ValidationError("language", "required")
	}
	if strings.TrimSpace(source) == "" {
		return pkgerrors.ValidationError("code", "required")
	}
	if len(source) > s.maxCodeBytes {
		return pkgerrors.New(pkgerrors.CodeTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}
	return nil
}

func (s *SubmitService) loadActiveProblem(ctx context.Context, problemID int64) (*problemmodel.Problem, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	problem, err := s.problemRepo.GetByID(ctxDB.ctx, problemID)
	if err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load problem failed")
	}
	if !problem.IsActive {
		return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	return problem, nil
}

// acquireInflight rejects a second concurrent submit of the same problem by the same user.
func (s *SubmitService) acquireInflight(ctx context.Context, userID, problemID int64) (func(), error) {
	key := fmt.Sprintf("%s%d:%d", inflightKeyPrefix, userID, problemID)
	token := uuid.NewString()
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	ok, err := s.cache.TryLock(ctxCache.ctx, key, token, s.inflightTTL)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.CacheError, "reserve submission failed")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.SubmissionInFlight)
	}
	return func() {
		ctxRelease := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
		defer ctxRelease.cancel()
		if err := s.cache.Unlock(ctxRelease.ctx, key, token); err != nil {
			logger.Warn(ctx, "release in-flight marker failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.limiter == nil || s.rateLimit.UserMax <= 0 {
		return nil
	}
	key := rateUserKeyPrefix + strconv.FormatInt(userID, 10)
	return s.limiter.Allow(ctx, key, s.rateLimit.UserMax, s.rateLimit.Window, pkgerrors.SubmitTooFrequently)
}

// countAttempt returns how many times the user has submitted this problem, this one included.
func (s *SubmitService) countAttempt(ctx context.Context, userID, problemID int64) int64 {
	key := fmt.Sprintf("%s%d:%d", attemptsKeyPrefix, userID, problemID)
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	count, err := s.cache.Incr(ctxCache.ctx, key)
	if err != nil {
		logger.Warn(ctx, "count attempt failed", zap.Error(err))
		return 1
	}
	if count == 1 {
		_ = s.cache.Expire(ctxCache.ctx, key, defaultAttemptsTTL)
	}
	return count
}

func (s *SubmitService) incrementStats(ctx context.Context, problemID int64, accepted bool) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.problemRepo.IncrementStats(ctxDB.ctx, nil, problemID, accepted); err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "update problem statistics failed")
	}
	return nil
}

func (s *SubmitService) recordSolve(ctx context.Context, input SubmitInput, problem *problemmodel.Problem, attempts int64) (bool, error) {
	now := time.Now().UTC()
	entry := repository.SolvedEntry{
		UserID:     input.UserID,
		ProblemID:  problem.ID,
		Title:      problem.Title,
		Difficulty: string(problem.Difficulty),
		SolvedAt:   now,
		Attempts:   attempts,
	}
	activity := repository.Activity{
		UserID:    input.UserID,
		Kind:      repository.ActivitySolved,
		Message:   fmt.Sprintf("Solved problem %q", problem.Title),
		ProblemID: problem.ID,
		CreatedAt: now,
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	inserted, err := s.solvedRepo.RecordSolve(ctxDB.ctx, entry, activity)
	if err != nil {
		return false, pkgerrors.Wrapf(err, pkgerrors.TransactionFailed, "record solve failed")
	}
	return inserted, nil
}

func (s *SubmitService) creditLeaderboard(ctx context.Context, userID, points int64) {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if _, err := s.cache.ZIncrBy(ctxCache.ctx, GlobalLeaderboardKey, float64(points), strconv.FormatInt(userID, 10)); err != nil {
		logger.Warn(ctx, "credit global leaderboard failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *SubmitService) archiveSource(ctx context.Context, input SubmitInput) {
	if s.archive == nil {
		return
	}
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	key, err := s.archive.Store(ctxStorage.ctx, input.UserID, input.ProblemID, input.Language, input.SourceCode)
	if err != nil {
		logger.Warn(ctx, "archive accepted source failed", zap.Error(err))
		return
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.solvedRepo.SetSourceKey(ctxDB.ctx, input.UserID, input.ProblemID, key); err != nil {
		logger.Warn(ctx, "store source key failed", zap.String("source_key", key), zap.Error(err))
	}
}

func (s *SubmitService) publishJudged(ctx context.Context, input SubmitInput, outcome *SubmitOutcome) {
	if s.producer == nil {
		return
	}
	passed := 0
	for _, tr := range outcome.Result.TestResults {
		if tr.Passed {
			passed++
		}
	}
	event := JudgedEvent{
		EventID:    uuid.NewString(),
		UserID:     input.UserID,
		ProblemID:  input.ProblemID,
		ContestID:  input.ContestID,
		Language:   input.Language,
		Verdict:    outcome.Result.Verdict,
		Passed:     passed,
		Total:      len(outcome.Result.TestResults),
		FirstSolve: outcome.FirstSolve,
		JudgedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn(ctx, "encode judged event failed", zap.Error(err))
		return
	}
	message := mq.NewMessage(strconv.FormatInt(input.UserID, 10), body)
	message.ID = event.EventID
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.producer.Publish(ctxMQ.ctx, s.judgedTopic, message); err != nil {
		logger.Warn(ctx, "publish judged event failed", zap.String("topic", s.judgedTopic), zap.Error(err))
	}
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

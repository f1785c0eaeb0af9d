package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	judgemodel "codearena/internal/judge/model"
	"codearena/internal/problem/model"
	"codearena/internal/problem/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const maxSlugAttempts = 20

// ProblemService manages the problem catalogue.
type ProblemService struct {
	repo     repository.ProblemRepository
	validate *validator.Validate
}

func NewProblemService(repo repository.ProblemRepository) *ProblemService {
	return &ProblemService{repo: repo, validate: validator.New()}
}

// CreateInput represents input for problem creation.
type CreateInput struct {
	Title       string                `validate:"required,max=200"`
	Description string                `validate:"required"`
	Difficulty  model.Difficulty      `validate:"required,oneof=easy medium hard"`
	Topics      []string              `validate:"max=20"`
	Constraints []string              `validate:"max=50"`
	Examples    []model.Example       `validate:"max=20"`
	TestCases   []judgemodel.TestCase `validate:"max=200"`
	Inactive    bool
	CreatedBy   int64
}

// CreateProblem stores a new problem under a slug derived from its title.
// Colliding slugs get a numeric suffix; the slug never changes afterwards.
func (s *ProblemService) CreateProblem(ctx context.Context, input CreateInput) (*model.Problem, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	for i, tc := range input.TestCases {
		if len(tc.Input) == 0 || len(tc.Expected) == 0 {
			return nil, pkgerrors.New(pkgerrors.TestCaseInvalid).WithDetail("index", i)
		}
	}

	base := slug.Make(input.Title)
	if base == "" {
		return nil, pkgerrors.ValidationError("title", "must contain letters or digits")
	}

	problem := &model.Problem{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Difficulty:  input.Difficulty,
		Topics:      input.Topics,
		Constraints: input.Constraints,
		Examples:    input.Examples,
		TestCases:   input.TestCases,
		IsActive:    !input.Inactive,
		CreatedBy:   input.CreatedBy,
	}
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		problem.Slug = base
		if attempt > 1 {
			problem.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		exists, err := s.repo.SlugExists(ctx, problem.Slug)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "check slug failed")
		}
		if exists {
			continue
		}
		_, err = s.repo.Create(ctx, nil, problem)
		if errors.Is(err, repository.ErrSlugExists) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "create problem failed")
		}
		logger.Info(ctx, "problem created", zap.Int64("problem_id", problem.ID), zap.String("slug", problem.Slug))
		return problem, nil
	}
	return nil, pkgerrors.New(pkgerrors.ProblemSlugExists).WithDetail("slug", base)
}

// GetProblem returns an active problem.
func (s *ProblemService) GetProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	problem, err := s.repo.GetByID(ctx, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "get problem failed")
	}
	if !problem.IsActive {
		return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	return problem, nil
}

func (s *ProblemService) ListProblems(ctx context.Context, filter model.ListFilter) ([]*model.Problem, error) {
	if filter.Difficulty != "" && !filter.Difficulty.Valid() {
		return nil, pkgerrors.ValidationError("difficulty", "must be easy, medium or hard")
	}
	problems, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list problems failed")
	}
	return problems, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return pkgerrors.ValidationError(strings.ToLower(first.Field()), first.Tag())
	}
	return pkgerrors.Wrap(err, pkgerrors.ValidationFailed)
}

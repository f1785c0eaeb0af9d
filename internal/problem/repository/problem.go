package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/problem/model"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemKeyPrefix       = "problem:detail:"

	defaultListLimit = 20
	maxListLimit     = 100

	problemColumns = `id, title, slug, description, difficulty, topics, constraints_json, examples, test_cases,
		is_active, total_submissions, accepted_submissions, created_by, created_at, updated_at`
)

var (
	ErrProblemNotFound = errors.New("problem not found")
	ErrSlugExists      = errors.New("problem slug already exists")
)

type ProblemRepository interface {
	Create(ctx context.Context, tx db.Transaction, problem *model.Problem) (int64, error)
	GetByID(ctx context.Context, problemID int64) (*model.Problem, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, filter model.ListFilter) ([]*model.Problem, error)
	// IncrementStats bumps the submission counters in a single statement.
	IncrementStats(ctx context.Context, tx db.Transaction, problemID int64, accepted bool) error
}

type SQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) *SQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &SQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func (r *SQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *model.Problem) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}
	topics, err := marshalJSONColumn(problem.Topics)
	if err != nil {
		return 0, err
	}
	constraints, err := marshalJSONColumn(problem.Constraints)
	if err != nil {
		return 0, err
	}
	examples, err := marshalJSONColumn(problem.Examples)
	if err != nil {
		return 0, err
	}
	testCases, err := marshalJSONColumn(problem.TestCases)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	query := `INSERT INTO problems (title, slug, description, difficulty, topics, constraints_json, examples, test_cases,
		is_active, total_submissions, accepted_submissions, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`
	id, err := db.InsertReturningID(ctx, db.GetQuerier(r.db, tx), r.db.Dialect(), query,
		problem.Title, problem.Slug, problem.Description, string(problem.Difficulty),
		topics, constraints, examples, testCases,
		problem.IsActive, problem.CreatedBy, now, now,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return 0, ErrSlugExists
		}
		return 0, err
	}
	problem.ID = id
	problem.CreatedAt = now
	problem.UpdatedAt = now
	cache.Invalidate(ctx, r.cache, problemKey(id))
	return id, nil
}

func (r *SQLProblemRepository) GetByID(ctx context.Context, problemID int64) (*model.Problem, error) {
	if r.cache == nil {
		return r.getFromDB(ctx, problemID)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemKey(problemID),
		r.ttl,
		r.emptyTTL,
		func(p *model.Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.getFromDB(ctx, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *SQLProblemRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(1) FROM problems WHERE slug = ?", slug).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SQLProblemRepository) List(ctx context.Context, filter model.ListFilter) ([]*model.Problem, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []interface{}
	where = append(where, "is_active = ?")
	args = append(args, true)
	if filter.Difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, string(filter.Difficulty))
	}
	query := fmt.Sprintf("SELECT %s FROM problems WHERE %s ORDER BY id ASC LIMIT %d OFFSET %d",
		problemColumns, strings.Join(where, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []*model.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func (r *SQLProblemRepository) IncrementStats(ctx context.Context, tx db.Transaction, problemID int64, accepted bool) error {
	acceptedDelta := 0
	if accepted {
		acceptedDelta = 1
	}
	query := `UPDATE problems
		SET total_submissions = total_submissions + 1,
			accepted_submissions = accepted_submissions + ?,
			updated_at = ?
		WHERE id = ?`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, acceptedDelta, time.Now().UTC(), problemID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProblemNotFound
	}
	cache.Invalidate(ctx, r.cache, problemKey(problemID))
	return nil
}

func (r *SQLProblemRepository) getFromDB(ctx context.Context, problemID int64) (*model.Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems WHERE id = ?"
	p, err := scanProblem(r.db.QueryRow(ctx, query, problemID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return p, nil
}

func problemKey(problemID int64) string {
	return problemKeyPrefix + strconv.FormatInt(problemID, 10)
}

func marshalProblem(p *model.Problem) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func unmarshalProblem(data string) (*model.Problem, error) {
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func marshalJSONColumn(v interface{}) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column failed: %w", err)
	}
	return string(payload), nil
}

func unmarshalJSONColumn(data string, dest interface{}) error {
	if data == "" || data == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data), dest)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProblem(row scanner) (*model.Problem, error) {
	var (
		p                                        model.Problem
		difficulty                               string
		topics, constraints, examples, testCases string
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.Slug, &p.Description, &difficulty,
		&topics, &constraints, &examples, &testCases,
		&p.IsActive, &p.TotalSubmissions, &p.AcceptedSubmissions, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Difficulty = model.Difficulty(difficulty)
	if err := unmarshalJSONColumn(topics, &p.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	if err := unmarshalJSONColumn(constraints, &p.Constraints); err != nil {
		return nil, fmt.Errorf("decode constraints: %w", err)
	}
	if err := unmarshalJSONColumn(examples, &p.Examples); err != nil {
		return nil, fmt.Errorf("decode examples: %w", err)
	}
	if err := unmarshalJSONColumn(testCases, &p.TestCases); err != nil {
		return nil, fmt.Errorf("decode test cases: %w", err)
	}
	return &p, nil
}

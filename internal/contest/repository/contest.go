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
	"codearena/internal/contest/model"
)

const (
	defaultContestTTL      = 2 * time.Minute
	defaultContestEmptyTTL = time.Minute
	contestKeyPrefix       = "contest:detail:"

	defaultListLimit = 20
	maxListLimit     = 100

	contestColumns = "id, document, version"
)

var (
	ErrContestNotFound = errors.New("contest not found")
	// ErrVersionConflict means the row changed after it was loaded.
	ErrVersionConflict = errors.New("contest version conflict")
)

type ContestRepository interface {
	Create(ctx context.Context, contest *model.Contest) (int64, error)
	// GetByID may serve a cached snapshot.
	GetByID(ctx context.Context, contestID int64) (*model.Contest, error)
	// Load always reads the row and is used before a versioned save.
	Load(ctx context.Context, contestID int64) (*model.Contest, error)
	// Save writes contest if the stored version still equals contest.Version,
	// then bumps contest.Version.
	Save(ctx context.Context, contest *model.Contest) error
	List(ctx context.Context, filter model.ListFilter, now time.Time) ([]*model.Contest, error)
	// ListStale returns contests whose stored status lags behind the clock.
	ListStale(ctx context.Context, now time.Time) ([]int64, error)
}

type SQLContestRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewContestRepository(database db.Database, cacheClient cache.Cache) *SQLContestRepository {
	return NewContestRepositoryWithTTL(database, cacheClient, defaultContestTTL, defaultContestEmptyTTL)
}

func NewContestRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLContestRepository {
	if ttl <= 0 {
		ttl = defaultContestTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultContestEmptyTTL
	}
	return &SQLContestRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

func (r *SQLContestRepository) Create(ctx context.Context, contest *model.Contest) (int64, error) {
	if contest == nil {
		return 0, errors.New("contest is nil")
	}
	now := time.Now().UTC()
	contest.CreatedAt = now
	contest.UpdatedAt = now
	contest.Version = 1
	document, err := encodeContest(contest)
	if err != nil {
		return 0, err
	}
	query := `INSERT INTO contests (title, slug, contest_type, status, start_time, end_time, document, version,
		created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := db.InsertReturningID(ctx, r.db, r.db.Dialect(), query,
		contest.Title, contest.Slug, string(contest.Type), string(contest.Status),
		contest.StartTime.UTC(), contest.EndTime.UTC(), document, contest.Version,
		contest.CreatedBy, now, now,
	)
	if err != nil {
		return 0, err
	}
	contest.ID = id
	cache.Invalidate(ctx, r.cache, contestKey(id))
	return id, nil
}

func (r *SQLContestRepository) GetByID(ctx context.Context, contestID int64) (*model.Contest, error) {
	if r.cache == nil {
		return r.Load(ctx, contestID)
	}
	contest, err := cache.GetWithCached[*model.Contest](
		ctx,
		r.cache,
		contestKey(contestID),
		r.ttl,
		r.emptyTTL,
		func(c *model.Contest) bool { return c == nil },
		encodeContest,
		decodeContest,
		func(ctx context.Context) (*model.Contest, error) {
			c, err := r.Load(ctx, contestID)
			if errors.Is(err, ErrContestNotFound) {
				return nil, nil
			}
			return c, err
		},
	)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrContestNotFound
	}
	return contest, nil
}

func (r *SQLContestRepository) Load(ctx context.Context, contestID int64) (*model.Contest, error) {
	query := "SELECT " + contestColumns + " FROM contests WHERE id = ?"
	c, err := scanContest(r.db.QueryRow(ctx, query, contestID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *SQLContestRepository) Save(ctx context.Context, contest *model.Contest) error {
	expected := contest.Version
	next := *contest
	next.Version = expected + 1
	next.UpdatedAt = time.Now().UTC()
	document, err := encodeContest(&next)
	if err != nil {
		return err
	}
	query := `UPDATE contests
		SET status = ?, document = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	result, err := r.db.Exec(ctx, query, string(next.Status), document, next.Version, next.UpdatedAt, contest.ID, expected)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int64
		if err := r.db.QueryRow(ctx, "SELECT COUNT(1) FROM contests WHERE id = ?", contest.ID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return ErrContestNotFound
		}
		return ErrVersionConflict
	}
	contest.Version = next.Version
	contest.UpdatedAt = next.UpdatedAt
	cache.Invalidate(ctx, r.cache, contestKey(contest.ID))
	return nil
}

// List filters on the stored columns and the clock so that status matches
// what readers see after the time-derived status is applied.
func (r *SQLContestRepository) List(ctx context.Context, filter model.ListFilter, now time.Time) ([]*model.Contest, error) {
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

	where := []string{"1 = 1"}
	var args []interface{}
	if filter.Type != "" {
		where = append(where, "contest_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		clause, clauseArgs := statusClause(filter.Status, now.UTC())
		where = append(where, clause)
		args = append(args, clauseArgs...)
	}
	query := fmt.Sprintf("SELECT %s FROM contests WHERE %s ORDER BY start_time DESC, id DESC LIMIT %d OFFSET %d",
		contestColumns, strings.Join(where, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []*model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

func (r *SQLContestRepository) ListStale(ctx context.Context, now time.Time) ([]int64, error) {
	now = now.UTC()
	query := `SELECT id FROM contests
		WHERE (status = ? AND start_time <= ?) OR (status IN (?, ?) AND end_time <= ?)`
	rows, err := r.db.Query(ctx, query,
		string(model.StatusUpcoming), now,
		string(model.StatusUpcoming), string(model.StatusActive), now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func statusClause(status model.Status, now time.Time) (string, []interface{}) {
	upcoming, active := string(model.StatusUpcoming), string(model.StatusActive)
	switch status {
	case model.StatusUpcoming:
		return "(status = ? AND start_time > ?)", []interface{}{upcoming, now}
	case model.StatusActive:
		return "(status IN (?, ?) AND end_time > ? AND (status = ? OR start_time <= ?))",
			[]interface{}{upcoming, active, now, active, now}
	case model.StatusCompleted:
		return "(status = ? OR (status IN (?, ?) AND end_time <= ?))",
			[]interface{}{string(model.StatusCompleted), upcoming, active, now}
	default:
		return "status = ?", []interface{}{string(status)}
	}
}

func contestKey(contestID int64) string {
	return contestKeyPrefix + strconv.FormatInt(contestID, 10)
}

func encodeContest(c *model.Contest) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode contest failed: %w", err)
	}
	return string(payload), nil
}

func decodeContest(data string) (*model.Contest, error) {
	var c model.Contest
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("decode contest failed: %w", err)
	}
	return &c, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanContest trusts the id and version columns over the document copy.
func scanContest(row scanner) (*model.Contest, error) {
	var (
		id       int64
		document string
		version  int64
	)
	if err := row.Scan(&id, &document, &version); err != nil {
		return nil, err
	}
	c, err := decodeContest(document)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.Version = version
	return c, nil
}

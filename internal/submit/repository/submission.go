package repository

import (
	"context"
	"fmt"
	"time"

	"codearena/internal/common/db"
)

const (
	ActivitySolved = "solved"

	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// SolvedEntry records a user's first accepted submission for a problem.
type SolvedEntry struct {
	UserID     int64     `json:"userId"`
	ProblemID  int64     `json:"problemId"`
	Title      string    `json:"title"`
	Difficulty string    `json:"difficulty"`
	SolvedAt   time.Time `json:"solvedAt"`
	Attempts   int64     `json:"attempts"`
	SourceKey  string    `json:"sourceKey,omitempty"`
}

// Activity is one row of a user's recent activity feed.
type Activity struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	ProblemID int64     `json:"problemId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type SolvedRepository interface {
	HasSolved(ctx context.Context, userID, problemID int64) (bool, error)
	// RecordSolve inserts the entry and its activity row in one transaction.
	// It reports false without touching activity when the entry already exists.
	RecordSolve(ctx context.Context, entry SolvedEntry, activity Activity) (bool, error)
	SetSourceKey(ctx context.Context, userID, problemID int64, sourceKey string) error
	ListSolved(ctx context.Context, userID int64) ([]SolvedEntry, error)
	ListActivity(ctx context.Context, userID int64, limit int) ([]Activity, error)
}

type SQLSolvedRepository struct {
	db db.Database
}

func NewSolvedRepository(database db.Database) *SQLSolvedRepository {
	return &SQLSolvedRepository{db: database}
}

func (r *SQLSolvedRepository) HasSolved(ctx context.Context, userID, problemID int64) (bool, error) {
	var count int64
	query := "SELECT COUNT(1) FROM user_solved WHERE user_id = ? AND problem_id = ?"
	if err := r.db.QueryRow(ctx, query, userID, problemID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SQLSolvedRepository) RecordSolve(ctx context.Context, entry SolvedEntry, activity Activity) (bool, error) {
	inserted := false
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		result, err := tx.Exec(ctx, insertSolvedQuery(r.db.Dialect()),
			entry.UserID, entry.ProblemID, entry.Title, entry.Difficulty, entry.SolvedAt, entry.Attempts, entry.SourceKey,
		)
		if err != nil {
			return fmt.Errorf("insert solved entry failed: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		_, err = db.InsertReturningID(ctx, tx, r.db.Dialect(),
			"INSERT INTO user_activity (user_id, kind, message, problem_id, created_at) VALUES (?, ?, ?, ?, ?)",
			activity.UserID, activity.Kind, activity.Message, activity.ProblemID, activity.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert activity failed: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *SQLSolvedRepository) SetSourceKey(ctx context.Context, userID, problemID int64, sourceKey string) error {
	_, err := r.db.Exec(ctx, "UPDATE user_solved SET source_key = ? WHERE user_id = ? AND problem_id = ?",
		sourceKey, userID, problemID)
	return err
}

func (r *SQLSolvedRepository) ListSolved(ctx context.Context, userID int64) ([]SolvedEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, problem_id, title, difficulty, solved_at, attempts, source_key
		FROM user_solved WHERE user_id = ? ORDER BY solved_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]SolvedEntry, 0)
	for rows.Next() {
		var e SolvedEntry
		if err := rows.Scan(&e.UserID, &e.ProblemID, &e.Title, &e.Difficulty, &e.SolvedAt, &e.Attempts, &e.SourceKey); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLSolvedRepository) ListActivity(ctx context.Context, userID int64, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	rows, err := r.db.Query(ctx, fmt.Sprintf(
		`SELECT id, user_id, kind, message, problem_id, created_at
		FROM user_activity WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT %d`, limit), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Activity, 0, limit)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &a.Message, &a.ProblemID, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// insertSolvedQuery leaves an existing (user, problem) row untouched. Both
// forms report zero affected rows on conflict.
func insertSolvedQuery(dialect db.Dialect) string {
	const insert = `INSERT INTO user_solved (user_id, problem_id, title, difficulty, solved_at, attempts, source_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if dialect == db.DialectPostgres {
		return insert + " ON CONFLICT (user_id, problem_id) DO NOTHING"
	}
	return insert + " ON DUPLICATE KEY UPDATE user_id = user_id"
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/problem/model"

	"github.com/alicebob/miniredis/v2"
)

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan arity mismatch: %d != %d", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *int64:
			*ptr = r.values[i].(int64)
		case *string:
			*ptr = r.values[i].(string)
		case *bool:
			*ptr = r.values[i].(bool)
		case *time.Time:
			*ptr = r.values[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan type %T", d)
		}
	}
	return nil
}

type fakeResult struct{ affected int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeDB struct {
	rows     map[int64]fakeRow
	queries  int
	execs    []string
	affected int64
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...interface{}) db.Row {
	f.queries++
	if row, ok := f.rows[args[0].(int64)]; ok {
		return row
	}
	return fakeRow{err: sql.ErrNoRows}
}

func (f *fakeDB) Exec(_ context.Context, query string, _ ...interface{}) (db.Result, error) {
	f.execs = append(f.execs, query)
	return fakeResult{affected: f.affected}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(f)
}

func (f *fakeDB) Dialect() db.Dialect        { return db.DialectMySQL }
func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }

func problemRow(id int64) fakeRow {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return fakeRow{values: []interface{}{
		id, "Sum Two", "sum-two", "add numbers", "easy",
		`["math"]`, `["1 <= a, b <= 100"]`, `[{"input":"1 2","output":"3"}]`,
		`[{"input":"2 3","expected":"5","isHidden":false},{"input":[10,20],"expected":30,"isHidden":true}]`,
		true, int64(4), int64(1), int64(9), now, now,
	}}
}

func newRepo(t *testing.T, database *fakeDB) (*SQLProblemRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithConfig(cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache failed: %v", err)
	}
	t.Cleanup(func() { _ = redisCache.Close() })
	return NewProblemRepository(database, redisCache), mr
}

func TestGetByIDCachesProblem(t *testing.T) {
	database := &fakeDB{rows: map[int64]fakeRow{1: problemRow(1)}}
	repo, _ := newRepo(t, database)

	for i := 0; i < 2; i++ {
		p, err := repo.GetByID(testContext(t), 1)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if p.Slug != "sum-two" || len(p.TestCases) != 2 || !p.TestCases[1].IsHidden {
			t.Fatalf("unexpected problem: %+v", p)
		}
		if string(p.TestCases[1].Input) != "[10,20]" || p.Examples[0].Output != "3" {
			t.Fatalf("unexpected decoded columns: %+v", p)
		}
	}
	if database.queries != 1 {
		t.Fatalf("expected one database query, got %d", database.queries)
	}
}

func TestGetByIDMissingIsCachedAsNull(t *testing.T) {
	database := &fakeDB{rows: map[int64]fakeRow{}}
	repo, mr := newRepo(t, database)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetByID(testContext(t), 404); !errors.Is(err, ErrProblemNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if database.queries != 1 {
		t.Fatalf("expected the miss to be cached, got %d queries", database.queries)
	}
	if value, _ := mr.Get(problemKey(404)); value != cache.NullCacheValue {
		t.Fatalf("unexpected cached value: %q", value)
	}
}

func TestIncrementStatsInvalidatesCache(t *testing.T) {
	database := &fakeDB{rows: map[int64]fakeRow{1: problemRow(1)}, affected: 1}
	repo, mr := newRepo(t, database)

	if _, err := repo.GetByID(testContext(t), 1); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := repo.IncrementStats(testContext(t), nil, 1, true); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if mr.Exists(problemKey(1)) {
		t.Fatalf("cache entry not invalidated")
	}
	if len(database.execs) != 1 || !strings.Contains(database.execs[0], "total_submissions = total_submissions + 1") {
		t.Fatalf("unexpected statements: %v", database.execs)
	}
}

func TestIncrementStatsMissingProblem(t *testing.T) {
	repo, _ := newRepo(t, &fakeDB{affected: 0})
	if err := repo.IncrementStats(testContext(t), nil, 7, false); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAcceptanceRateFromStoredCounters(t *testing.T) {
	repo, _ := newRepo(t, &fakeDB{rows: map[int64]fakeRow{1: problemRow(1)}})
	p, err := repo.GetByID(testContext(t), 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.Stats() != (model.Stats{TotalSubmissions: 4, AcceptedSubmissions: 1, AcceptanceRate: 0.25}) {
		t.Fatalf("unexpected stats: %+v", p.Stats())
	}
}

// testContext stands in for t.Context (Go 1.24+) on older toolchains: the
// returned context is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

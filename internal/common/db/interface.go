package db

import "context"

// Dialect identifies the SQL flavour behind a Database.
type Dialect int

const (
	DialectMySQL Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	default:
		return "mysql"
	}
}

// Querier abstracts database operations for both database and transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Database is a pooled SQL handle. Queries are written with '?' placeholders
// and rebound for the underlying dialect.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction, rolling back when fn returns an error.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Dialect() Dialect
	Ping(ctx context.Context) error
	Close() error
}

// Transaction is a Querier bound to an open transaction.
type Transaction interface {
	Querier
}

// Rows is the subset of *sql.Rows used by repositories.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the subset of *sql.Row used by repositories.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result mirrors sql.Result.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

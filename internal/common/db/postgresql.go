package db

import (
	_ "github.com/lib/pq"
)

// PostgreSQLConfig holds the configuration for a PostgreSQL connection pool.
type PostgreSQLConfig struct {
	// DSN format: "user=postgres password=password host=localhost port=5432 dbname=arena sslmode=disable"
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

// NewPostgreSQLWithConfig opens and pings a PostgreSQL pool.
func NewPostgreSQLWithConfig(config PostgreSQLConfig) (*SQLDatabase, error) {
	return open("postgres", config.DSN, DialectPostgres, config.Pool)
}

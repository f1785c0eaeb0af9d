package db

import (
	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig holds the configuration for a MySQL connection pool.
type MySQLConfig struct {
	// DSN format: "user:password@tcp(localhost:3306)/dbname?parseTime=true"
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

// NewMySQLWithConfig opens and pings a MySQL pool.
func NewMySQLWithConfig(config MySQLConfig) (*SQLDatabase, error) {
	return open("mysql", config.DSN, DialectMySQL, config.Pool)
}

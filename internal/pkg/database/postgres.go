package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Database keeps the registered properties and their value history.
type Database struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewDatabase(pool *pgxpool.Pool) *Database {
	return &Database{
		pool:   pool,
		logger: zap.L(),
	}
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}

// Package db records build run history in a SQL database. The store is
// optional: the build flow runs unchanged when no datasource is configured.
package db

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/olavph/builds/internal/config"
)

type Database interface {
	Runs() RunsDb
	Close() error
}

type SqlDatabase struct {
	db     *sqlx.DB
	config *config.DatabaseConfig
	runsDb *sqlRunsDb
}

func NewSQLDatabase(config *config.DatabaseConfig) (*SqlDatabase, error) {
	db, err := connect(config)
	if err != nil {
		return nil, err
	}
	dbX := sqlx.NewDb(db, config.Driver)
	return &SqlDatabase{
		db:     dbX,
		runsDb: newSqlRunsDb(dbX),
		config: config,
	}, nil
}

func (s *SqlDatabase) Runs() RunsDb {
	return s.runsDb
}

func (s *SqlDatabase) Close() error {
	return s.db.Close()
}

func connect(config *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(config.Driver, config.DataSource)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

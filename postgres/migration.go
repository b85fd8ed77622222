// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"database/sql"

	"github.com/rubenv/sql-migrate"
)

// This file maintains the database migration code.  See
// https://github.com/rubenv/sql-migrate for details of what goes in
// here.  This runs "outside" the normal workplan flow, either at
// initial startup or from an external tool.

var migrationSource = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1-workplans",
			Up: []string{`
CREATE TABLE workplans (
    id UUID PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    worktime_utc TIMESTAMP WITH TIME ZONE NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT 'add',
    hash TEXT NOT NULL DEFAULT '',
    retries INTEGER NOT NULL DEFAULT 0,
    info TEXT,
    data TEXT,
    duration INTEGER,
    expires_utc TIMESTAMP WITH TIME ZONE,
    started_utc TIMESTAMP WITH TIME ZONE,
    finished_utc TIMESTAMP WITH TIME ZONE,
    created_utc TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_utc TIMESTAMP WITH TIME ZONE NOT NULL,
    CONSTRAINT workplan_unique_worktime UNIQUE (name, worktime_utc)
)`,
				`CREATE INDEX workplan_name ON workplans(name)`,
				`CREATE INDEX workplan_status ON workplans(status)`,
			},
			Down: []string{
				`DROP INDEX workplan_status`,
				`DROP INDEX workplan_name`,
				`DROP TABLE workplans`,
			},
		},
	},
}

// Upgrade upgrades a database to the latest database schema version.
func Upgrade(db *sql.DB) error {
	_, err := migrate.Exec(db, "postgres", migrationSource, migrate.Up)
	return err
}

// Drop clears a database by running all of the migrations in reverse,
// ultimately resulting in dropping all of the tables.
func Drop(db *sql.DB) error {
	_, err := migrate.Exec(db, "postgres", migrationSource, migrate.Down)
	return err
}

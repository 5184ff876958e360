package db

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens the database for the given driver and runs migrations.
func Connect(driver, dsn string, logger *logrus.Logger) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverPgx:
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.WithField("driver", driver).Info("database migrations applied")

	return db, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
}

func runMigrations(db *sqlx.DB, driver string) error {
	pk := "BIGSERIAL PRIMARY KEY"
	if driver == DriverSQLite {
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_profile (
            identity TEXT PRIMARY KEY,
            display_name TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            last_seen BIGINT NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS chat_group (
            id ` + pk + `,
            name TEXT NOT NULL,
            avatar_url TEXT NOT NULL DEFAULT '',
            owner TEXT NOT NULL,
            created BIGINT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS group_member (
            group_id BIGINT NOT NULL REFERENCES chat_group(id) ON DELETE CASCADE,
            member TEXT NOT NULL,
            role SMALLINT NOT NULL DEFAULT 1,
            rec_time BIGINT NOT NULL DEFAULT 0,
            left_flag SMALLINT NOT NULL DEFAULT 0,
            PRIMARY KEY(group_id, member)
        );`,
		`CREATE TABLE IF NOT EXISTS message (
            id ` + pk + `,
            sender TEXT NOT NULL,
            recipient TEXT,
            group_id BIGINT,
            content TEXT NOT NULL,
            type SMALLINT NOT NULL,
            status SMALLINT NOT NULL DEFAULT 1,
            created BIGINT NOT NULL,
            CHECK ((recipient IS NULL) <> (group_id IS NULL))
        );`,
		`CREATE INDEX IF NOT EXISTS idx_message_pair ON message (sender, recipient, created);`,
		`CREATE INDEX IF NOT EXISTS idx_message_group ON message (group_id, created);`,
		`CREATE TABLE IF NOT EXISTS receipt (
            id ` + pk + `,
            message_id BIGINT NOT NULL UNIQUE REFERENCES message(id) ON DELETE CASCADE,
            recipient TEXT NOT NULL,
            status SMALLINT NOT NULL DEFAULT 0,
            created BIGINT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_receipt_recipient ON receipt (recipient, status);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

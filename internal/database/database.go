package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/simodepertis/frontend-sub001/internal/config"
)

// minOpenConns leaves room for the advisory lock sessions the jobs pin while
// they run next to regular queries.
const minOpenConns = 4

// Connect opens the MySQL pool. DATETIME columns are read and written in UTC
// so bump instants compare the same in every process.
func Connect(cfg config.Config) (*sql.DB, error) {
	mc, err := driverConfig(cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetConnMaxLifetime(cfg.DBMaxLifetime)
	db.SetMaxOpenConns(max(cfg.DBMaxOpen, minOpenConns))
	db.SetMaxIdleConns(cfg.DBMaxIdle)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", mc.Addr, err)
	}

	return db, nil
}

func driverConfig(dsn string) (*mysql.Config, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse MYSQL_DSN: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	if mc.Collation == "" {
		mc.Collation = "utf8mb4_unicode_ci"
	}
	return mc, nil
}

// Migrate applies the bootstrap schema statement by statement; every
// statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

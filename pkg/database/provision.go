package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// EnsurePostgresDatabase creates the database named in connString when it
// does not exist yet, working from the "postgres" maintenance database on
// the same server.
func EnsurePostgresDatabase(ctx context.Context, connString string) (bool, error) {
	cfg, name, err := postgresMaintenanceConfig(connString)
	if err != nil {
		return false, err
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("error connecting to postgres maintenance database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("create database %s: %w", name, err)
	}
	return true, nil
}

func postgresMaintenanceConfig(connString string) (*pgx.ConnConfig, string, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, "", fmt.Errorf("parse postgres DSN: %w", err)
	}
	name := cfg.Database
	if name == "" {
		return nil, "", errors.New("postgres DSN names no database")
	}
	cfg.Database = "postgres"
	return cfg, name, nil
}

// EnsureMySQLDatabase runs CREATE DATABASE IF NOT EXISTS for the database
// named in dsn, connecting without selecting a database.
func EnsureMySQLDatabase(ctx context.Context, dsn string) error {
	serverDSN, name, err := mysqlServerDSN(dsn)
	if err != nil {
		return err
	}

	db, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return fmt.Errorf("error opening mysql server connection: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteMySQLIdent(name)); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

func mysqlServerDSN(dsn string) (string, string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", "", fmt.Errorf("parse mysql DSN: %w", err)
	}
	name := cfg.DBName
	if name == "" {
		return "", "", errors.New("mysql DSN names no database")
	}
	cfg.DBName = ""
	return cfg.FormatDSN(), name, nil
}

func quoteMySQLIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

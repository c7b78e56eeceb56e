package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/microsoft/go-mssqldb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	_ "modernc.org/sqlite"
)

// OpenSQL opens a database/sql handle for one of the registered drivers
// ("mysql", "sqlserver", "sqlite") without dialing; the first statement
// connects.
func OpenSQL(driver, connString string) (*sql.DB, error) {
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, fmt.Errorf("error opening %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		if err := prepareSQLite(db, connString); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// ConnectSQL is OpenSQL followed by a ping.
func ConnectSQL(ctx context.Context, driver, connString string) (*sql.DB, error) {
	db, err := OpenSQL(driver, connString)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to %s database (ping failed): %w", driver, err)
	}
	return db, nil
}

// prepareSQLite pins in-memory databases to one connection (each connection
// to ":memory:" is a separate database) and applies the usual pragmas.
func prepareSQLite(db *sql.DB, connString string) error {
	if connString == ":memory:" || strings.Contains(connString, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	return nil
}

// OpenPostgres builds a pgx pool with the NUMERIC <-> decimal.Decimal
// codec registered on every connection. No connection is made until the
// pool is first used, so an unreachable server shows up as a query error.
func OpenPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MinConns = 0
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating postgres pool: %w", err)
	}
	return pool, nil
}

// ConnectPostgres is OpenPostgres followed by a ping.
func ConnectPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := OpenPostgres(ctx, connString)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error connecting to postgres (ping failed): %w", err)
	}
	return pool, nil
}

// OpenMongo creates a client. The driver dials in the background; server
// errors surface on the first operation.
func OpenMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, fmt.Errorf("error creating MongoDB client: %w", err)
	}
	return client, nil
}

// ConnectMongo creates a client and verifies the primary is reachable.
func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	client, err := OpenMongo(ctx, connString)
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
	}
	return client, nil
}

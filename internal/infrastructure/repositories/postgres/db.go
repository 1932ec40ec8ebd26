package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/pkg/retry"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const migrationsTable = "bore_schema_migrations"

// Open connects through the pgx stdlib driver, waits for the server to
// answer and applies pending migrations.
func Open(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 4
	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Infow("Connected to PostgreSQL", "max_open_conns", 25)
	}
	return db, nil
}

type migration struct {
	name       string
	statements []string
}

var migrations = []migration{
	{
		name: "0001_players",
		statements: []string{
			`create table if not exists players (
				id bigserial primary key,
				name text not null,
				auth text not null default '',
				conn text not null default '',
				ipv4 text not null default '',
				is_mod boolean not null default false,
				mod_rooms jsonb not null default '[]',
				vip_level integer not null default 0,
				vip_expires_at timestamptz,
				password_hash text not null default '',
				created_at timestamptz not null default now()
			)`,
			`create unique index if not exists players_name_lower_idx on players (lower(name))`,
		},
	},
	{
		name: "0002_sanctions",
		statements: []string{
			`create table if not exists bans (
				id bigserial primary key,
				name text not null,
				banned_by text not null,
				reason text not null,
				conn text not null default '',
				ipv4 text not null default '',
				auth text not null default '',
				time timestamptz not null,
				room integer not null default 0
			)`,
			`create index if not exists bans_time_idx on bans (time desc, id desc)`,
			`create table if not exists mutes (
				id bigserial primary key,
				name text not null,
				muted_by text not null,
				reason text not null,
				conn text not null default '',
				ipv4 text not null default '',
				auth text not null default '',
				time timestamptz not null,
				room integer not null default 0
			)`,
			`create index if not exists mutes_time_idx on mutes (time desc, id desc)`,
		},
	},
}

// Migrate applies every migration not yet recorded in the bookkeeping
// table, each inside its own transaction.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) error {
	ddl := fmt.Sprintf(`create table if not exists %s (
		name text primary key,
		applied_at timestamptz not null default now()
	)`, migrationsTable)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, migrationsTable))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("list migrations: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("list migrations: %w", err)
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if logger != nil {
			logger.Infow("Applied migration", "name", m.name)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, migrationsTable),
		m.name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// translate maps driver errors onto domain errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return domain.ErrConflict
	}
	return err
}

// likePattern builds an ILIKE substring pattern with wildcards escaped, or ""
// when there is nothing to search for.
func likePattern(term string) string {
	if term == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(term) + "%"
}

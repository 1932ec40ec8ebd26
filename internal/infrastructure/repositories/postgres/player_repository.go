package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	"borerelay/pkg/tracing"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const playerColumns = `id, name, auth, conn, ipv4, is_mod, mod_rooms, vip_level, vip_expires_at, password_hash, created_at`

type PostgresPlayerRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRepository(db *sql.DB) ports.PlayerRepository {
	return &PostgresPlayerRepository{db: db}
}

func (r *PostgresPlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "insert", "players")
	defer span.End()

	if player.CreatedAt.IsZero() {
		player.CreatedAt = time.Now().UTC()
	}
	rooms, err := encodeRooms(player.ModRooms)
	if err != nil {
		return err
	}

	var row *sql.Row
	if player.ID != 0 {
		row = r.db.QueryRowContext(ctx,
			`insert into players (id, name, auth, conn, ipv4, is_mod, mod_rooms, vip_level, vip_expires_at, password_hash, created_at)
			 values ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11) returning id`,
			player.ID, player.Name, player.Auth, player.Conn, player.IPv4, player.IsMod, rooms,
			player.VipLevel, nullTime(player.VipExpiresAt), player.PasswordHash, player.CreatedAt)
	} else {
		row = r.db.QueryRowContext(ctx,
			`insert into players (name, auth, conn, ipv4, is_mod, mod_rooms, vip_level, vip_expires_at, password_hash, created_at)
			 values ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10) returning id`,
			player.Name, player.Auth, player.Conn, player.IPv4, player.IsMod, rooms,
			player.VipLevel, nullTime(player.VipExpiresAt), player.PasswordHash, player.CreatedAt)
	}
	if err := row.Scan(&player.ID); err != nil {
		err = translate(err)
		tracing.RecordError(ctx, err)
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

func (r *PostgresPlayerRepository) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "select", "players")
	defer span.End()

	row := r.db.QueryRowContext(ctx, `select `+playerColumns+` from players where id = $1`, id)
	player, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return player, nil
}

func (r *PostgresPlayerRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Player], error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "select", "players")
	defer span.End()

	q = q.Normalize()
	pattern := likePattern(strings.TrimSpace(q.SearchTerm))

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`select count(*) from players where ($1::text = '' or name ilike $1)`, pattern,
	).Scan(&total); err != nil {
		tracing.RecordError(ctx, err)
		return domain.Page[domain.Player]{}, fmt.Errorf("failed to count players: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`select `+playerColumns+` from players
		 where ($1::text = '' or name ilike $1)
		 order by id limit $2 offset $3`,
		pattern, q.Limit, q.Offset())
	if err != nil {
		tracing.RecordError(ctx, err)
		return domain.Page[domain.Player]{}, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	players := make([]domain.Player, 0, q.Limit)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return domain.Page[domain.Player]{}, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, *p)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Player]{}, fmt.Errorf("failed to list players: %w", err)
	}
	return domain.NewPage(players, q, total), nil
}

func (r *PostgresPlayerRepository) SetLegend(ctx context.Context, id int64, level int, expiresAt time.Time) error {
	return r.exec(ctx, id,
		`update players set vip_level = $2, vip_expires_at = $3 where id = $1`,
		level, expiresAt.UTC())
}

func (r *PostgresPlayerRepository) RemoveLegend(ctx context.Context, id int64) error {
	return r.exec(ctx, id, `update players set vip_level = 0, vip_expires_at = null where id = $1`)
}

func (r *PostgresPlayerRepository) SetMod(ctx context.Context, id int64, rooms []int) error {
	encoded, err := encodeRooms(rooms)
	if err != nil {
		return err
	}
	return r.exec(ctx, id, `update players set is_mod = true, mod_rooms = $2::jsonb where id = $1`, encoded)
}

func (r *PostgresPlayerRepository) RemoveMod(ctx context.Context, id int64) error {
	return r.exec(ctx, id, `update players set is_mod = false, mod_rooms = '[]'::jsonb where id = $1`)
}

func (r *PostgresPlayerRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, id, `update players set password_hash = $2 where id = $1`, hash)
}

func (r *PostgresPlayerRepository) ResetAllVip(ctx context.Context) (int64, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "update", "players")
	defer span.End()

	res, err := r.db.ExecContext(ctx,
		`update players set vip_level = 0, vip_expires_at = null
		 where vip_level <> 0 or vip_expires_at is not null`)
	if err != nil {
		tracing.RecordError(ctx, err)
		return 0, fmt.Errorf("failed to reset vip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to reset vip: %w", err)
	}
	return n, nil
}

// exec runs a single-row update, reporting ErrPlayerNotFound when no row
// matched id. id is always bound as $1.
func (r *PostgresPlayerRepository) exec(ctx context.Context, id int64, query string, args ...any) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "update", "players")
	defer span.End()

	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to update player: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}
	if n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(s scanner) (*domain.Player, error) {
	var (
		p       domain.Player
		rooms   []byte
		expires sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Auth, &p.Conn, &p.IPv4, &p.IsMod, &rooms,
		&p.VipLevel, &expires, &p.PasswordHash, &p.CreatedAt); err != nil {
		return nil, err
	}
	if len(rooms) > 0 {
		if err := json.Unmarshal(rooms, &p.ModRooms); err != nil {
			return nil, fmt.Errorf("failed to decode mod rooms: %w", err)
		}
	}
	if len(p.ModRooms) == 0 {
		p.ModRooms = nil
	}
	if expires.Valid {
		t := expires.Time.UTC()
		p.VipExpiresAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func encodeRooms(rooms []int) (string, error) {
	if rooms == nil {
		rooms = []int{}
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		return "", fmt.Errorf("failed to encode mod rooms: %w", err)
	}
	return string(data), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

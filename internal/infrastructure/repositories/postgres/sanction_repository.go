package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	"borerelay/pkg/tracing"
)

// sanctionTable holds the queries shared by bans and mutes. The two tables
// differ only in name and in the column recording who issued the sanction.
type sanctionTable[T any] struct {
	db       *sql.DB
	table    string
	byColumn string
	sanction func(*T) *domain.Sanction
	issuer   func(*T) *string
	notFound error
}

func (s *sanctionTable[T]) create(ctx context.Context, item *T) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "insert", s.table)
	defer span.End()

	sn := s.sanction(item)
	if sn.Time.IsZero() {
		sn.Time = time.Now().UTC()
	}
	query := fmt.Sprintf(
		`insert into %s (name, %s, reason, conn, ipv4, auth, time, room)
		 values ($1, $2, $3, $4, $5, $6, $7, $8) returning id`, s.table, s.byColumn)
	err := s.db.QueryRowContext(ctx, query,
		sn.Name, *s.issuer(item), sn.Reason, sn.Conn, sn.IPv4, sn.Auth, sn.Time.UTC(), sn.Room,
	).Scan(&sn.ID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to insert into %s: %w", s.table, translate(err))
	}
	return nil
}

func (s *sanctionTable[T]) delete(ctx context.Context, id int64) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "delete", s.table)
	defer span.End()

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1`, s.table), id)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to delete from %s: %w", s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.table, err)
	}
	if n == 0 {
		return s.notFound
	}
	return nil
}

const sanctionFilter = `($1::text = '' or name ilike $1 or auth ilike $1 or conn ilike $1 or ipv4 ilike $1 or reason ilike $1)`

func (s *sanctionTable[T]) list(ctx context.Context, q domain.PageQuery) (domain.Page[T], error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "select", s.table)
	defer span.End()

	q = q.Normalize()
	pattern := likePattern(strings.TrimSpace(q.SearchTerm))

	var total int64
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select count(*) from %s where %s`, s.table, sanctionFilter), pattern,
	).Scan(&total); err != nil {
		tracing.RecordError(ctx, err)
		return domain.Page[T]{}, fmt.Errorf("failed to count %s: %w", s.table, err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`select id, name, %s, reason, conn, ipv4, auth, time, room from %s
		 where %s order by time desc, id desc limit $2 offset $3`,
		s.byColumn, s.table, sanctionFilter), pattern, q.Limit, q.Offset())
	if err != nil {
		tracing.RecordError(ctx, err)
		return domain.Page[T]{}, fmt.Errorf("failed to list %s: %w", s.table, err)
	}
	defer rows.Close()

	items := make([]T, 0, q.Limit)
	for rows.Next() {
		var item T
		sn := s.sanction(&item)
		if err := rows.Scan(&sn.ID, &sn.Name, s.issuer(&item), &sn.Reason, &sn.Conn, &sn.IPv4,
			&sn.Auth, &sn.Time, &sn.Room); err != nil {
			return domain.Page[T]{}, fmt.Errorf("failed to scan %s: %w", s.table, err)
		}
		sn.Time = sn.Time.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[T]{}, fmt.Errorf("failed to list %s: %w", s.table, err)
	}
	return domain.NewPage(items, q, total), nil
}

type PostgresBanRepository struct {
	store *sanctionTable[domain.Ban]
}

func NewPostgresBanRepository(db *sql.DB) ports.BanRepository {
	return &PostgresBanRepository{store: &sanctionTable[domain.Ban]{
		db:       db,
		table:    "bans",
		byColumn: "banned_by",
		sanction: func(b *domain.Ban) *domain.Sanction { return &b.Sanction },
		issuer:   func(b *domain.Ban) *string { return &b.BannedBy },
		notFound: domain.ErrBanNotFound,
	}}
}

func (r *PostgresBanRepository) Create(ctx context.Context, ban *domain.Ban) error {
	return r.store.create(ctx, ban)
}

func (r *PostgresBanRepository) Delete(ctx context.Context, id int64) error {
	return r.store.delete(ctx, id)
}

func (r *PostgresBanRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Ban], error) {
	return r.store.list(ctx, q)
}

type PostgresMuteRepository struct {
	store *sanctionTable[domain.Mute]
}

func NewPostgresMuteRepository(db *sql.DB) ports.MuteRepository {
	return &PostgresMuteRepository{store: &sanctionTable[domain.Mute]{
		db:       db,
		table:    "mutes",
		byColumn: "muted_by",
		sanction: func(m *domain.Mute) *domain.Sanction { return &m.Sanction },
		issuer:   func(m *domain.Mute) *string { return &m.MutedBy },
		notFound: domain.ErrMuteNotFound,
	}}
}

func (r *PostgresMuteRepository) Create(ctx context.Context, mute *domain.Mute) error {
	return r.store.create(ctx, mute)
}

func (r *PostgresMuteRepository) Delete(ctx context.Context, id int64) error {
	return r.store.delete(ctx, id)
}

func (r *PostgresMuteRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Mute], error) {
	return r.store.list(ctx, q)
}

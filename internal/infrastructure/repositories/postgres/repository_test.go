package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"borerelay/internal/core/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var playerRowColumns = []string{
	"id", "name", "auth", "conn", "ipv4", "is_mod", "mod_rooms",
	"vip_level", "vip_expires_at", "password_hash", "created_at",
}

func TestPlayerCreateAssignsID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)

	mock.ExpectQuery("insert into players \\(name").
		WithArgs("alice", "", "", "", false, "[]", 0, sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	p := &domain.Player{Name: "alice"}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, int64(7), p.ID)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestPlayerCreateUniqueViolationIsConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)

	mock.ExpectQuery("insert into players").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := repo.Create(context.Background(), &domain.Player{Name: "alice"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPlayerGetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)

	expires := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("select id, name").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(playerRowColumns).
			AddRow(int64(3), "bob", "a1", "c1", "10.0.0.1", true, []byte("[1,4]"), int64(2), expires, "hash", created))

	p, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Name)
	assert.True(t, p.IsMod)
	assert.Equal(t, []int{1, 4}, p.ModRooms)
	assert.Equal(t, 2, p.VipLevel)
	require.NotNil(t, p.VipExpiresAt)
	assert.True(t, expires.Equal(*p.VipExpiresAt))
	assert.Equal(t, "hash", p.PasswordHash)
}

func TestPlayerGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)

	mock.ExpectQuery("select id, name").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(playerRowColumns))

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestPlayerListEscapesSearchTerm(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("select count(*) from players")).
		WithArgs(`%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(21)))
	mock.ExpectQuery("select id, name").
		WithArgs(`%50\%%`, 10, 10).
		WillReturnRows(sqlmock.NewRows(playerRowColumns).
			AddRow(int64(11), "fifty50%", "", "", "", false, []byte("[]"), int64(0), nil, "", created))

	page, err := repo.List(context.Background(), domain.PageQuery{Page: 2, Limit: 10, SearchTerm: " 50% "})
	require.NoError(t, err)
	assert.Equal(t, int64(21), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].ModRooms)
	assert.Nil(t, page.Items[0].VipExpiresAt)
}

func TestPlayerListWithoutSearch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("select count(*) from players")).WithArgs("").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("select id, name").WithArgs("", domain.DefaultPageLimit, 0).
		WillReturnRows(sqlmock.NewRows(playerRowColumns))

	page, err := repo.List(context.Background(), domain.PageQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 1, page.Page)
}

func TestPlayerUpdatesReportMissingRows(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)
	ctx := context.Background()

	mock.ExpectExec("update players set is_mod = true").WithArgs(int64(5), "[1,2]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update players set is_mod = false").WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("update players set vip_level = \\$2").WithArgs(int64(5), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update players set password_hash").WithArgs(int64(5), "h").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetMod(ctx, 5, []int{1, 2}))
	assert.ErrorIs(t, repo.RemoveMod(ctx, 6), domain.ErrPlayerNotFound)
	require.NoError(t, repo.SetLegend(ctx, 5, 3, time.Now().Add(time.Hour)))
	require.NoError(t, repo.SetPassword(ctx, 5, "h"))
}

func TestPlayerResetAllVip(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresPlayerRepository(db)

	mock.ExpectExec("update players set vip_level = 0, vip_expires_at = null").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ResetAllVip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestBanCreateAndDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresBanRepository(db)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("insert into bans \\(name, banned_by").
		WithArgs("griefer", "Dashboard", "spam", "c", "1.2.3.4", "", at, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectExec("delete from bans").WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from bans").WithArgs(int64(13)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ban := &domain.Ban{
		Sanction: domain.Sanction{Name: "griefer", Reason: "spam", Conn: "c", IPv4: "1.2.3.4", Time: at, Room: 2},
		BannedBy: "Dashboard",
	}
	require.NoError(t, repo.Create(ctx, ban))
	assert.Equal(t, int64(12), ban.ID)

	require.NoError(t, repo.Delete(ctx, 12))
	assert.ErrorIs(t, repo.Delete(ctx, 13), domain.ErrBanNotFound)
}

func TestMuteListNewestFirst(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMuteRepository(db)

	newer := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("select count(*) from mutes")).WithArgs("%spam%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("select id, name, muted_by")).
		WithArgs("%spam%", domain.DefaultPageLimit, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "muted_by", "reason", "conn", "ipv4", "auth", "time", "room"}).
			AddRow(int64(2), "b", "mod", "spam", "", "", "", newer, int64(0)).
			AddRow(int64(1), "a", "mod", "spam", "", "", "", older, int64(1)))

	page, err := repo.List(context.Background(), domain.PageQuery{SearchTerm: "spam"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Items[0].ID)
	assert.Equal(t, "mod", page.Items[0].MutedBy)
	assert.Equal(t, 1, page.Items[1].Room)
}

func TestMuteDeleteNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMuteRepository(db)

	mock.ExpectExec("delete from mutes").WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 4), domain.ErrMuteNotFound)
}

func TestMigrateSkipsAppliedMigrations(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("create table if not exists bore_schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from bore_schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_players"))
	mock.ExpectBegin()
	mock.ExpectExec("create table if not exists bans").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index if not exists bans_time_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists mutes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index if not exists mutes_time_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into bore_schema_migrations").
		WithArgs("0002_sanctions", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db, nil))
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("create table if not exists bore_schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from bore_schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table if not exists players").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := Migrate(context.Background(), db, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_players")
}

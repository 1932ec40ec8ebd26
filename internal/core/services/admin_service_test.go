package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"borerelay/internal/core/domain"
	apperrors "borerelay/pkg/errors"
	"borerelay/pkg/tracing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type mockPlayerRepo struct{ mock.Mock }

func (m *mockPlayerRepo) Create(ctx context.Context, p *domain.Player) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPlayerRepo) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*domain.Player)
	return p, args.Error(1)
}

func (m *mockPlayerRepo) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Player], error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.Page[domain.Player]), args.Error(1)
}

func (m *mockPlayerRepo) SetLegend(ctx context.Context, id int64, level int, expiresAt time.Time) error {
	return m.Called(ctx, id, level, expiresAt).Error(0)
}

func (m *mockPlayerRepo) RemoveLegend(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPlayerRepo) SetMod(ctx context.Context, id int64, rooms []int) error {
	return m.Called(ctx, id, rooms).Error(0)
}

func (m *mockPlayerRepo) RemoveMod(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPlayerRepo) SetPassword(ctx context.Context, id int64, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *mockPlayerRepo) ResetAllVip(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockBanRepo struct{ mock.Mock }

func (m *mockBanRepo) Create(ctx context.Context, b *domain.Ban) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBanRepo) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockBanRepo) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Ban], error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.Page[domain.Ban]), args.Error(1)
}

type mockMuteRepo struct{ mock.Mock }

func (m *mockMuteRepo) Create(ctx context.Context, mu *domain.Mute) error {
	return m.Called(ctx, mu).Error(0)
}

func (m *mockMuteRepo) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMuteRepo) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Mute], error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.Page[domain.Mute]), args.Error(1)
}

type mockBroadcaster struct{ mock.Mock }

func (m *mockBroadcaster) Broadcast(ctx context.Context, cmd domain.Command) error {
	return m.Called(ctx, cmd).Error(0)
}

type adminFixture struct {
	players *mockPlayerRepo
	bans    *mockBanRepo
	mutes   *mockMuteRepo
	relay   *mockBroadcaster
	stats   *CommandStats
	svc     *adminService
}

func newAdminFixture(t *testing.T) *adminFixture {
	f := &adminFixture{
		players: &mockPlayerRepo{},
		bans:    &mockBanRepo{},
		mutes:   &mockMuteRepo{},
		relay:   &mockBroadcaster{},
		stats:   NewCommandStats(),
	}
	svc := NewAdminService(f.players, f.bans, f.mutes, f.relay, f.stats, zaptest.NewLogger(t).Sugar()).(*adminService)
	svc.now = func() time.Time { return time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC) }
	svc.bcryptCost = bcrypt.MinCost
	f.svc = svc
	return f
}

func TestCreateBan_PersistsThenBroadcasts(t *testing.T) {
	f := newAdminFixture(t)
	banTime := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

	f.bans.On("Create", mock.Anything, mock.MatchedBy(func(b *domain.Ban) bool {
		return b.Name == "Cheater01" && b.BannedBy == DefaultIssuer && b.Time.Equal(banTime)
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Ban).ID = 11
	}).Return(nil).Once()
	f.relay.On("Broadcast", mock.Anything, domain.BanCommand{
		Name:     "Cheater01",
		BannedBy: DefaultIssuer,
		Reason:   "hack",
		Time:     banTime,
	}).Return(nil).Once()

	err := f.svc.CreateBan(context.Background(), domain.Ban{
		Sanction: domain.Sanction{Name: "Cheater01", Reason: "hack", Time: banTime},
	})

	require.NoError(t, err)
	f.bans.AssertExpectations(t)
	f.relay.AssertExpectations(t)
	assert.EqualValues(t, 1, f.stats.Snapshot().Delivered[domain.EventBan])
}

func TestPersistFailureNeverBroadcasts(t *testing.T) {
	storeErr := errors.New("connection reset")

	tests := []struct {
		name  string
		setup func(f *adminFixture)
		call  func(s *adminService) error
	}{
		{
			name:  "ban",
			setup: func(f *adminFixture) { f.bans.On("Create", mock.Anything, mock.Anything).Return(storeErr) },
			call: func(s *adminService) error {
				return s.CreateBan(context.Background(), domain.Ban{Sanction: domain.Sanction{Name: "x"}})
			},
		},
		{
			name:  "unban",
			setup: func(f *adminFixture) { f.bans.On("Delete", mock.Anything, int64(3)).Return(domain.ErrBanNotFound) },
			call:  func(s *adminService) error { return s.Unban(context.Background(), 3) },
		},
		{
			name:  "mute",
			setup: func(f *adminFixture) { f.mutes.On("Create", mock.Anything, mock.Anything).Return(storeErr) },
			call: func(s *adminService) error {
				return s.CreateMute(context.Background(), domain.Mute{Sanction: domain.Sanction{Name: "x"}})
			},
		},
		{
			name:  "unmute",
			setup: func(f *adminFixture) { f.mutes.On("Delete", mock.Anything, int64(7)).Return(storeErr) },
			call:  func(s *adminService) error { return s.Unmute(context.Background(), 7) },
		},
		{
			name: "set legend",
			setup: func(f *adminFixture) {
				f.players.On("SetLegend", mock.Anything, int64(42), 2, mock.Anything).Return(storeErr)
			},
			call: func(s *adminService) error {
				return s.SetLegend(context.Background(), 42, 2, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
			},
		},
		{
			name:  "remove legend",
			setup: func(f *adminFixture) { f.players.On("RemoveLegend", mock.Anything, int64(42)).Return(storeErr) },
			call:  func(s *adminService) error { return s.RemoveLegend(context.Background(), 42) },
		},
		{
			name:  "set mod",
			setup: func(f *adminFixture) { f.players.On("SetMod", mock.Anything, int64(42), []int{1}).Return(storeErr) },
			call:  func(s *adminService) error { return s.SetMod(context.Background(), 42, []int{1}) },
		},
		{
			name: "remove mod",
			setup: func(f *adminFixture) {
				f.players.On("RemoveMod", mock.Anything, int64(42)).Return(domain.ErrPlayerNotFound)
			},
			call: func(s *adminService) error { return s.RemoveMod(context.Background(), 42) },
		},
		{
			name: "change password",
			setup: func(f *adminFixture) {
				f.players.On("SetPassword", mock.Anything, int64(42), mock.Anything).Return(storeErr)
			},
			call: func(s *adminService) error { return s.ChangePassword(context.Background(), 42, "hunter22") },
		},
		{
			name:  "reset vip",
			setup: func(f *adminFixture) { f.players.On("ResetAllVip", mock.Anything).Return(int64(0), storeErr) },
			call:  func(s *adminService) error { return s.ResetAllVip(context.Background()) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(t)
			tt.setup(f)

			err := tt.call(f.svc)

			require.Error(t, err)
			f.relay.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
		})
	}
}

func TestRemoveMod_UnknownPlayer(t *testing.T) {
	f := newAdminFixture(t)
	f.players.On("RemoveMod", mock.Anything, int64(42)).Return(domain.ErrPlayerNotFound)

	err := f.svc.RemoveMod(context.Background(), 42)

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
	assert.Equal(t, "Player not found", appErr.Message)
	f.relay.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestStoreErrorsAreHidden(t *testing.T) {
	f := newAdminFixture(t)
	f.mutes.On("Delete", mock.Anything, int64(7)).Return(errors.New("pq: relation does not exist"))

	err := f.svc.Unmute(context.Background(), 7)

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeInternal, appErr.Code)
	assert.Equal(t, "Internal server error", appErr.Message)
}

func TestValidationRejectsBeforePersist(t *testing.T) {
	f := newAdminFixture(t)

	err := f.svc.CreateBan(context.Background(), domain.Ban{Sanction: domain.Sanction{Name: "", IPv4: "300.0.0.1"}})

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)
	fields := appErr.Context["fields"].([]apperrors.FieldError)
	assert.Len(t, fields, 2)
	f.bans.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	err = f.svc.SetLegend(context.Background(), 42, 2, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	err = f.svc.SetMod(context.Background(), 42, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	err = f.svc.ChangePassword(context.Background(), 42, "ab")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	f.players.AssertNotCalled(t, "SetLegend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.relay.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestChangePassword_BroadcastsHash(t *testing.T) {
	f := newAdminFixture(t)
	var stored string
	f.players.On("SetPassword", mock.Anything, int64(42), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { stored = args.String(2) }).
		Return(nil)
	f.relay.On("Broadcast", mock.Anything, mock.AnythingOfType("domain.ChangePasswordCommand")).Return(nil)

	require.NoError(t, f.svc.ChangePassword(context.Background(), 42, "hunter22"))

	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("hunter22")))
	cmd := f.relay.Calls[0].Arguments.Get(1).(domain.ChangePasswordCommand)
	assert.Equal(t, stored, cmd.HashedPassword)
	assert.NotContains(t, cmd.HashedPassword, "hunter22")
}

func TestBroadcastWithoutPeersStillSucceeds(t *testing.T) {
	f := newAdminFixture(t)
	f.players.On("ResetAllVip", mock.Anything).Return(int64(5), nil)
	f.relay.On("Broadcast", mock.Anything, domain.ResetAllVipCommand{}).Return(domain.ErrNoPeers)

	require.NoError(t, f.svc.ResetAllVip(context.Background()))
	assert.EqualValues(t, 1, f.stats.Snapshot().Undelivered[domain.EventResetAllVip])
}

func TestSetMod_BroadcastsRooms(t *testing.T) {
	f := newAdminFixture(t)
	f.players.On("SetMod", mock.Anything, int64(42), []int{0, 3}).Return(nil)
	f.relay.On("Broadcast", mock.Anything, domain.SetModCommand{PlayerID: 42, Rooms: []int{0, 3}}).Return(nil)

	require.NoError(t, f.svc.SetMod(context.Background(), 42, []int{0, 3}))
	f.relay.AssertExpectations(t)
}

func TestPlayerChangesAreTracedWithPlayerID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newAdminFixture(t)
	f.players.On("RemoveMod", mock.Anything, int64(7)).Return(nil)
	f.relay.On("Broadcast", mock.Anything, domain.RemoveModCommand{PlayerID: 7}).Return(nil)

	require.NoError(t, f.svc.RemoveMod(context.Background(), 7))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "admin.remove_mod", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), tracing.PlayerIDKey.Int64(7))
}

func TestListPlayers_NormalizesQuery(t *testing.T) {
	f := newAdminFixture(t)
	want := domain.PageQuery{Page: 1, Limit: domain.MaxPageLimit, SearchTerm: "bob"}
	f.players.On("List", mock.Anything, want).
		Return(domain.NewPage([]domain.Player{{ID: 1, Name: "bob"}}, want, 1), nil)

	page, err := f.svc.ListPlayers(context.Background(), domain.PageQuery{Limit: 500, SearchTerm: "bob"})

	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.TotalPages)
}

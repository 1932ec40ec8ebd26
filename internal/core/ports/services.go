package ports

import (
	"context"
	"time"

	"borerelay/internal/core/domain"
)

// IdentityProvider returns the guild role ids of the member that owns token.
type IdentityProvider interface {
	MemberRoles(ctx context.Context, token string) ([]string, error)
}

// PermissionResolver never fails; errors degrade to a stale or all-false result.
type PermissionResolver interface {
	Resolve(ctx context.Context, token string) domain.PermissionResult
}

type Broadcaster interface {
	Broadcast(ctx context.Context, cmd domain.Command) error
}

type AdminService interface {
	ListPlayers(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Player], error)
	GetPlayer(ctx context.Context, id int64) (*domain.Player, error)
	ListBans(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Ban], error)
	ListMutes(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Mute], error)

	CreateBan(ctx context.Context, ban domain.Ban) error
	Unban(ctx context.Context, id int64) error
	CreateMute(ctx context.Context, mute domain.Mute) error
	Unmute(ctx context.Context, id int64) error
	SetLegend(ctx context.Context, playerID int64, level int, expiresAt time.Time) error
	RemoveLegend(ctx context.Context, playerID int64) error
	SetMod(ctx context.Context, playerID int64, rooms []int) error
	RemoveMod(ctx context.Context, playerID int64) error
	ChangePassword(ctx context.Context, playerID int64, password string) error
	ResetAllVip(ctx context.Context) error
}

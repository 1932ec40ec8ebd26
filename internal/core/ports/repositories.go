package ports

import (
	"context"
	"time"

	"borerelay/internal/core/domain"
)

type PlayerRepository interface {
	Create(ctx context.Context, player *domain.Player) error
	GetByID(ctx context.Context, id int64) (*domain.Player, error)
	List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Player], error)
	SetLegend(ctx context.Context, id int64, level int, expiresAt time.Time) error
	RemoveLegend(ctx context.Context, id int64) error
	SetMod(ctx context.Context, id int64, rooms []int) error
	RemoveMod(ctx context.Context, id int64) error
	SetPassword(ctx context.Context, id int64, hash string) error
	// ResetAllVip clears every legend grant and reports how many players changed.
	ResetAllVip(ctx context.Context) (int64, error)
}

type BanRepository interface {
	// Create assigns ban.ID on success.
	Create(ctx context.Context, ban *domain.Ban) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Ban], error)
}

type MuteRepository interface {
	Create(ctx context.Context, mute *domain.Mute) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Mute], error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

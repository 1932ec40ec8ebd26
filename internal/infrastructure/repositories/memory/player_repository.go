package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
)

type MemoryPlayerRepository struct {
	players map[int64]*domain.Player
	nextID  int64
	mu      sync.RWMutex
}

func NewMemoryPlayerRepository() ports.PlayerRepository {
	return &MemoryPlayerRepository{
		players: make(map[int64]*domain.Player),
	}
}

func (r *MemoryPlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.players[player.ID]; exists && player.ID != 0 {
		return domain.ErrConflict
	}
	for _, p := range r.players {
		if strings.EqualFold(p.Name, player.Name) {
			return domain.ErrConflict
		}
	}
	if player.ID == 0 {
		player.ID = r.nextID + 1
	}
	if player.ID > r.nextID {
		r.nextID = player.ID
	}
	if player.CreatedAt.IsZero() {
		player.CreatedAt = time.Now().UTC()
	}

	r.players[player.ID] = clonePlayer(player)
	return nil
}

func (r *MemoryPlayerRepository) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	player, exists := r.players[id]
	if !exists {
		return nil, domain.ErrPlayerNotFound
	}
	return clonePlayer(player), nil
}

func (r *MemoryPlayerRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Player], error) {
	q = q.Normalize()
	term := strings.ToLower(strings.TrimSpace(q.SearchTerm))

	r.mu.RLock()
	matched := make([]domain.Player, 0, len(r.players))
	for _, p := range r.players {
		if term == "" || strings.Contains(strings.ToLower(p.Name), term) {
			matched = append(matched, *clonePlayer(p))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return domain.NewPage(paginate(matched, q), q, int64(len(matched))), nil
}

func (r *MemoryPlayerRepository) SetLegend(ctx context.Context, id int64, level int, expiresAt time.Time) error {
	return r.update(id, func(p *domain.Player) {
		p.VipLevel = level
		at := expiresAt
		p.VipExpiresAt = &at
	})
}

func (r *MemoryPlayerRepository) RemoveLegend(ctx context.Context, id int64) error {
	return r.update(id, func(p *domain.Player) {
		p.VipLevel = 0
		p.VipExpiresAt = nil
	})
}

func (r *MemoryPlayerRepository) SetMod(ctx context.Context, id int64, rooms []int) error {
	return r.update(id, func(p *domain.Player) {
		p.IsMod = true
		p.ModRooms = append([]int(nil), rooms...)
	})
}

func (r *MemoryPlayerRepository) RemoveMod(ctx context.Context, id int64) error {
	return r.update(id, func(p *domain.Player) {
		p.IsMod = false
		p.ModRooms = nil
	})
}

func (r *MemoryPlayerRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	return r.update(id, func(p *domain.Player) {
		p.PasswordHash = hash
	})
}

func (r *MemoryPlayerRepository) ResetAllVip(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, p := range r.players {
		if p.VipLevel != 0 || p.VipExpiresAt != nil {
			p.VipLevel = 0
			p.VipExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (r *MemoryPlayerRepository) update(id int64, fn func(p *domain.Player)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, exists := r.players[id]
	if !exists {
		return domain.ErrPlayerNotFound
	}
	fn(player)
	return nil
}

func clonePlayer(p *domain.Player) *domain.Player {
	c := *p
	if p.ModRooms != nil {
		c.ModRooms = append([]int(nil), p.ModRooms...)
	}
	if p.VipExpiresAt != nil {
		at := *p.VipExpiresAt
		c.VipExpiresAt = &at
	}
	return &c
}

func paginate[T any](items []T, q domain.PageQuery) []T {
	start := q.Offset()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + q.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

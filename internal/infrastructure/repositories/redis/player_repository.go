package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// playerRecord keeps the password hash, which domain.Player omits from JSON.
type playerRecord struct {
	domain.Player
	PasswordHash string `json:"passwordHash,omitempty"`
}

type RedisPlayerRepository struct {
	client *redis.Client
}

func NewRedisPlayerRepository(client *redis.Client) ports.PlayerRepository {
	return &RedisPlayerRepository{client: client}
}

func (r *RedisPlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	name := lowerName(player.Name)
	if exists, err := r.client.HExists(ctx, playerNamesKey, name).Result(); err != nil {
		return fmt.Errorf("failed to check player name: %w", err)
	} else if exists {
		return domain.ErrConflict
	}

	if player.ID == 0 {
		id, err := r.client.Incr(ctx, playerSeqKey).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate player id: %w", err)
		}
		player.ID = id
	}
	if player.CreatedAt.IsZero() {
		player.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(playerRecord{Player: *player, PasswordHash: player.PasswordHash})
	if err != nil {
		return fmt.Errorf("failed to marshal player: %w", err)
	}

	created, err := r.client.SetNX(ctx, playerKey(player.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store player: %w", err)
	}
	if !created {
		return domain.ErrConflict
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, playersKey, redis.Z{Score: float64(player.ID), Member: player.ID})
		pipe.HSet(ctx, playerNamesKey, name, player.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index player: %w", err)
	}
	return nil
}

func (r *RedisPlayerRepository) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	data, err := r.client.Get(ctx, playerKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player from Redis: %w", err)
	}
	return decodePlayer(data)
}

func (r *RedisPlayerRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Player], error) {
	q = q.Normalize()
	term := strings.ToLower(strings.TrimSpace(q.SearchTerm))

	if term == "" {
		total, err := r.client.ZCard(ctx, playersKey).Result()
		if err != nil {
			return domain.Page[domain.Player]{}, fmt.Errorf("failed to count players: %w", err)
		}
		ids, err := r.client.ZRange(ctx, playersKey, int64(q.Offset()), int64(q.Offset()+q.Limit-1)).Result()
		if err != nil {
			return domain.Page[domain.Player]{}, fmt.Errorf("failed to list players: %w", err)
		}
		players, err := r.load(ctx, ids)
		if err != nil {
			return domain.Page[domain.Player]{}, err
		}
		return domain.NewPage(players, q, total), nil
	}

	ids, err := r.client.ZRange(ctx, playersKey, 0, -1).Result()
	if err != nil {
		return domain.Page[domain.Player]{}, fmt.Errorf("failed to list players: %w", err)
	}
	all, err := r.load(ctx, ids)
	if err != nil {
		return domain.Page[domain.Player]{}, err
	}
	matched := all[:0]
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), term) {
			matched = append(matched, p)
		}
	}
	return domain.NewPage(paginate(matched, q), q, int64(len(matched))), nil
}

func (r *RedisPlayerRepository) load(ctx context.Context, ids []string) ([]domain.Player, error) {
	if len(ids) == 0 {
		return []domain.Player{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + "player:" + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}

	players := make([]domain.Player, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // removed between ZRANGE and MGET
		}
		p, err := decodePlayer([]byte(s))
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, nil
}

func (r *RedisPlayerRepository) SetLegend(ctx context.Context, id int64, level int, expiresAt time.Time) error {
	return r.update(ctx, id, func(p *domain.Player) bool {
		p.VipLevel = level
		at := expiresAt.UTC()
		p.VipExpiresAt = &at
		return true
	})
}

func (r *RedisPlayerRepository) RemoveLegend(ctx context.Context, id int64) error {
	return r.update(ctx, id, func(p *domain.Player) bool {
		p.VipLevel = 0
		p.VipExpiresAt = nil
		return true
	})
}

func (r *RedisPlayerRepository) SetMod(ctx context.Context, id int64, rooms []int) error {
	return r.update(ctx, id, func(p *domain.Player) bool {
		p.IsMod = true
		p.ModRooms = append([]int(nil), rooms...)
		return true
	})
}

func (r *RedisPlayerRepository) RemoveMod(ctx context.Context, id int64) error {
	return r.update(ctx, id, func(p *domain.Player) bool {
		p.IsMod = false
		p.ModRooms = nil
		return true
	})
}

func (r *RedisPlayerRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	return r.update(ctx, id, func(p *domain.Player) bool {
		p.PasswordHash = hash
		return true
	})
}

func (r *RedisPlayerRepository) ResetAllVip(ctx context.Context) (int64, error) {
	ids, err := r.client.ZRange(ctx, playersKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list players: %w", err)
	}

	var n int64
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		changed := false
		err = r.update(ctx, id, func(p *domain.Player) bool {
			changed = p.VipLevel != 0 || p.VipExpiresAt != nil
			p.VipLevel = 0
			p.VipExpiresAt = nil
			return changed
		})
		if errors.Is(err, domain.ErrPlayerNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}

const maxUpdateRetries = 5

// update applies fn under WATCH so concurrent writers do not lose changes.
// fn returns false to skip the write.
func (r *RedisPlayerRepository) update(ctx context.Context, id int64, fn func(p *domain.Player) bool) error {
	key := playerKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrPlayerNotFound
		}
		if err != nil {
			return err
		}
		player, err := decodePlayer(data)
		if err != nil {
			return err
		}
		if !fn(player) {
			return nil
		}
		updated, err := json.Marshal(playerRecord{Player: *player, PasswordHash: player.PasswordHash})
		if err != nil {
			return fmt.Errorf("failed to marshal player: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
			return fmt.Errorf("failed to update player %d: %w", id, err)
		}
		return err
	}
	return fmt.Errorf("failed to update player %d: too much contention", id)
}

func lowerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func decodePlayer(data []byte) (*domain.Player, error) {
	var rec playerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player: %w", err)
	}
	rec.Player.PasswordHash = rec.PasswordHash
	return &rec.Player, nil
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

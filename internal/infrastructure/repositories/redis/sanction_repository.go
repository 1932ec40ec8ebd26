package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// sanctionStore keeps bans or mutes as JSON values indexed by a sorted set
// scored on sanction time, so ZREVRANGE lists newest first.
type sanctionStore[T any] struct {
	client   *redis.Client
	seqKey   string
	indexKey string
	itemKey  func(int64) string
	sanction func(*T) *domain.Sanction
	notFound error
}

func (s *sanctionStore[T]) create(ctx context.Context, item *T) error {
	id, err := s.client.Incr(ctx, s.seqKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate id: %w", err)
	}
	sanction := s.sanction(item)
	sanction.ID = id

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal sanction: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.itemKey(id), data, 0)
		pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: float64(sanction.Time.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store sanction: %w", err)
	}
	return nil
}

func (s *sanctionStore[T]) delete(ctx context.Context, id int64) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.itemKey(id))
		pipe.ZRem(ctx, s.indexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete sanction: %w", err)
	}
	if del.Val() == 0 {
		return s.notFound
	}
	return nil
}

func (s *sanctionStore[T]) list(ctx context.Context, q domain.PageQuery) (domain.Page[T], error) {
	q = q.Normalize()
	term := strings.ToLower(strings.TrimSpace(q.SearchTerm))

	if term == "" {
		total, err := s.client.ZCard(ctx, s.indexKey).Result()
		if err != nil {
			return domain.Page[T]{}, fmt.Errorf("failed to count sanctions: %w", err)
		}
		ids, err := s.client.ZRevRange(ctx, s.indexKey, int64(q.Offset()), int64(q.Offset()+q.Limit-1)).Result()
		if err != nil {
			return domain.Page[T]{}, fmt.Errorf("failed to list sanctions: %w", err)
		}
		items, err := s.load(ctx, ids)
		if err != nil {
			return domain.Page[T]{}, err
		}
		return domain.NewPage(items, q, total), nil
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return domain.Page[T]{}, fmt.Errorf("failed to list sanctions: %w", err)
	}
	all, err := s.load(ctx, ids)
	if err != nil {
		return domain.Page[T]{}, err
	}
	matched := all[:0]
	for i := range all {
		if matchesSanction(s.sanction(&all[i]), term) {
			matched = append(matched, all[i])
		}
	}
	return domain.NewPage(paginate(matched, q), q, int64(len(matched))), nil
}

func (s *sanctionStore[T]) load(ctx context.Context, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt sanction index entry %q: %w", id, err)
		}
		keys[i] = s.itemKey(n)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sanctions: %w", err)
	}

	items := make([]T, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sanction: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func matchesSanction(s *domain.Sanction, term string) bool {
	for _, field := range []string{s.Name, s.Auth, s.Conn, s.IPv4, s.Reason} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

type RedisBanRepository struct {
	store *sanctionStore[domain.Ban]
}

func NewRedisBanRepository(client *redis.Client) ports.BanRepository {
	return &RedisBanRepository{store: &sanctionStore[domain.Ban]{
		client:   client,
		seqKey:   banSeqKey,
		indexKey: bansKey,
		itemKey:  banKey,
		sanction: func(b *domain.Ban) *domain.Sanction { return &b.Sanction },
		notFound: domain.ErrBanNotFound,
	}}
}

func (r *RedisBanRepository) Create(ctx context.Context, ban *domain.Ban) error {
	return r.store.create(ctx, ban)
}

func (r *RedisBanRepository) Delete(ctx context.Context, id int64) error {
	return r.store.delete(ctx, id)
}

func (r *RedisBanRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Ban], error) {
	return r.store.list(ctx, q)
}

type RedisMuteRepository struct {
	store *sanctionStore[domain.Mute]
}

func NewRedisMuteRepository(client *redis.Client) ports.MuteRepository {
	return &RedisMuteRepository{store: &sanctionStore[domain.Mute]{
		client:   client,
		seqKey:   muteSeqKey,
		indexKey: mutesKey,
		itemKey:  muteKey,
		sanction: func(m *domain.Mute) *domain.Sanction { return &m.Sanction },
		notFound: domain.ErrMuteNotFound,
	}}
}

func (r *RedisMuteRepository) Create(ctx context.Context, mute *domain.Mute) error {
	return r.store.create(ctx, mute)
}

func (r *RedisMuteRepository) Delete(ctx context.Context, id int64) error {
	return r.store.delete(ctx, id)
}

func (r *RedisMuteRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Mute], error) {
	return r.store.list(ctx, q)
}

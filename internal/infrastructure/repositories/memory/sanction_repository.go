package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
)

// sanctionStore holds bans or mutes, newest first when listed.
type sanctionStore[T any] struct {
	items    map[int64]T
	nextID   int64
	mu       sync.RWMutex
	sanction func(*T) *domain.Sanction
	notFound error
}

func newSanctionStore[T any](sanction func(*T) *domain.Sanction, notFound error) *sanctionStore[T] {
	return &sanctionStore[T]{
		items:    make(map[int64]T),
		sanction: sanction,
		notFound: notFound,
	}
}

func (s *sanctionStore[T]) create(item *T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.sanction(item).ID = s.nextID
	s.items[s.nextID] = *item
}

func (s *sanctionStore[T]) delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return s.notFound
	}
	delete(s.items, id)
	return nil
}

func (s *sanctionStore[T]) list(q domain.PageQuery) domain.Page[T] {
	q = q.Normalize()
	term := strings.ToLower(strings.TrimSpace(q.SearchTerm))

	s.mu.RLock()
	matched := make([]T, 0, len(s.items))
	for _, item := range s.items {
		item := item
		if matchesSanction(s.sanction(&item), term) {
			matched = append(matched, item)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := s.sanction(&matched[i]), s.sanction(&matched[j])
		if !a.Time.Equal(b.Time) {
			return a.Time.After(b.Time)
		}
		return a.ID > b.ID
	})
	return domain.NewPage(paginate(matched, q), q, int64(len(matched)))
}

func matchesSanction(s *domain.Sanction, term string) bool {
	if term == "" {
		return true
	}
	for _, field := range []string{s.Name, s.Auth, s.Conn, s.IPv4, s.Reason} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

type MemoryBanRepository struct {
	store *sanctionStore[domain.Ban]
}

func NewMemoryBanRepository() ports.BanRepository {
	return &MemoryBanRepository{
		store: newSanctionStore(func(b *domain.Ban) *domain.Sanction { return &b.Sanction }, domain.ErrBanNotFound),
	}
}

func (r *MemoryBanRepository) Create(ctx context.Context, ban *domain.Ban) error {
	r.store.create(ban)
	return nil
}

func (r *MemoryBanRepository) Delete(ctx context.Context, id int64) error {
	return r.store.delete(id)
}

func (r *MemoryBanRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Ban], error) {
	return r.store.list(q), nil
}

type MemoryMuteRepository struct {
	store *sanctionStore[domain.Mute]
}

func NewMemoryMuteRepository() ports.MuteRepository {
	return &MemoryMuteRepository{
		store: newSanctionStore(func(m *domain.Mute) *domain.Sanction { return &m.Sanction }, domain.ErrMuteNotFound),
	}
}

func (r *MemoryMuteRepository) Create(ctx context.Context, mute *domain.Mute) error {
	r.store.create(mute)
	return nil
}

func (r *MemoryMuteRepository) Delete(ctx context.Context, id int64) error {
	return r.store.delete(id)
}

func (r *MemoryMuteRepository) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Mute], error) {
	return r.store.list(q), nil
}

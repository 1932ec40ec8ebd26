package domain

import (
	"math"
	"time"
)

type Player struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Auth         string     `json:"auth,omitempty"`
	Conn         string     `json:"conn,omitempty"`
	IPv4         string     `json:"ipv4,omitempty"`
	IsMod        bool       `json:"isMod"`
	ModRooms     []int      `json:"modRooms,omitempty"`
	VipLevel     int        `json:"vipLevel"`
	VipExpiresAt *time.Time `json:"vipExpiresAt,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Sanction is the shared shape of bans and mutes.
type Sanction struct {
	ID     int64     `json:"id"`
	Name   string    `json:"name"`
	Reason string    `json:"reason"`
	Conn   string    `json:"conn,omitempty"`
	IPv4   string    `json:"ipv4,omitempty"`
	Auth   string    `json:"auth,omitempty"`
	Time   time.Time `json:"time"`
	Room   int       `json:"room"`
}

type Ban struct {
	Sanction
	BannedBy string `json:"bannedBy"`
}

type Mute struct {
	Sanction
	MutedBy string `json:"mutedBy"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	// MaxPage keeps Offset within int32 for every limit
	MaxPage = math.MaxInt32 / MaxPageLimit
)

// PageQuery is a normalized pagination request
type PageQuery struct {
	Page       int
	Limit      int
	SearchTerm string
}

// Normalize clamps page and limit into their valid ranges.
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

// Offset returns the number of rows to skip
func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPage assembles a page, computing TotalPages from total and q.Limit.
func NewPage[T any](items []T, q PageQuery, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if q.Limit > 0 {
		pages = int((total + int64(q.Limit) - 1) / int64(q.Limit))
	}
	return Page[T]{Items: items, Page: q.Page, Limit: q.Limit, Total: total, TotalPages: pages}
}

package services

import (
	"context"
	"errors"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNoSecret     = errors.New("service token secret not configured")
)

// ServiceClaims identify a non-human relay client such as the game server.
type ServiceClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type ServiceTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewServiceTokenIssuer(secret, issuer string, ttl time.Duration) *ServiceTokenIssuer {
	return &ServiceTokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint signs an HS256 token for the named service.
func (s *ServiceTokenIssuer) Mint(name string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := &ServiceClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *ServiceTokenIssuer) Verify(tokenString string) (*ServiceClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*ServiceClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

type chainResolver struct {
	service *ServiceTokenIssuer
	next    ports.PermissionResolver
}

// NewChainResolver accepts valid service tokens as manage-tier without an
// identity lookup. Anything else goes to next. A nil service disables the
// service-token path.
func NewChainResolver(service *ServiceTokenIssuer, next ports.PermissionResolver) ports.PermissionResolver {
	return &chainResolver{service: service, next: next}
}

func (c *chainResolver) Resolve(ctx context.Context, token string) domain.PermissionResult {
	if token == "" {
		return domain.PermissionResult{}
	}
	if c.service != nil {
		if _, err := c.service.Verify(token); err == nil {
			return domain.PermissionResult{IsStaff: true, CanManage: true}
		}
	}
	return c.next.Resolve(ctx, token)
}

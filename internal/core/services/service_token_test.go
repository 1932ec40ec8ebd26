package services

import (
	"context"
	"testing"
	"time"

	"borerelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type staticResolver struct {
	result domain.PermissionResult
	calls  int
}

func (s *staticResolver) Resolve(ctx context.Context, token string) domain.PermissionResult {
	s.calls++
	return s.result
}

func TestServiceToken_MintAndVerify(t *testing.T) {
	issuer := NewServiceTokenIssuer(testSecret, "bore-relay", time.Hour)

	token, err := issuer.Mint("game-server")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "game-server", claims.Name)
	assert.Equal(t, "bore-relay", claims.Issuer)
}

func TestServiceToken_Rejections(t *testing.T) {
	issuer := NewServiceTokenIssuer(testSecret, "bore-relay", time.Hour)
	token, err := issuer.Mint("game-server")
	require.NoError(t, err)

	other := NewServiceTokenIssuer("fedcba9876543210fedcba9876543210", "bore-relay", time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewServiceTokenIssuer(testSecret, "someone-else", time.Hour)
	_, err = wrongIssuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestServiceToken_NoSecret(t *testing.T) {
	issuer := NewServiceTokenIssuer("", "bore-relay", time.Hour)
	_, err := issuer.Mint("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestChainResolver(t *testing.T) {
	issuer := NewServiceTokenIssuer(testSecret, "bore-relay", time.Hour)
	token, err := issuer.Mint("game-server")
	require.NoError(t, err)

	next := &staticResolver{result: domain.PermissionResult{IsStaff: true}}
	chain := NewChainResolver(issuer, next)

	got := chain.Resolve(context.Background(), token)
	assert.Equal(t, domain.PermissionResult{IsStaff: true, CanManage: true}, got)
	assert.Zero(t, next.calls)

	got = chain.Resolve(context.Background(), "discord-access-token")
	assert.Equal(t, next.result, got)
	assert.Equal(t, 1, next.calls)

	assert.Equal(t, domain.PermissionResult{}, chain.Resolve(context.Background(), ""))
	assert.Equal(t, 1, next.calls)
}

func TestChainResolver_WithoutIssuer(t *testing.T) {
	next := &staticResolver{result: domain.PermissionResult{IsStaff: true, CanManage: true}}
	chain := NewChainResolver(nil, next)

	assert.True(t, chain.Resolve(context.Background(), "anything").CanManage)
	assert.Equal(t, 1, next.calls)
}

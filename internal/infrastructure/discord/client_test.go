package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"borerelay/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveIdentityLookup(outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, breaker *circuitbreaker.CircuitBreaker) (*Client, *recordingObserver) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	observer := &recordingObserver{}
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		GuildID:    "guild-1",
		HTTPClient: server.Client(),
		Breaker:    breaker,
		Observer:   observer,
	})
	require.NoError(t, err)
	return client, observer
}

func TestMemberRoles_Success(t *testing.T) {
	client, observer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/@me/guilds/guild-1/member", r.URL.Path)
		assert.Equal(t, "Bearer tok-owner", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"roles":["111","222"],"nick":"boss","user":{"id":"9","username":"ceo"}}`))
	}, nil)

	roles, err := client.MemberRoles(context.Background(), "tok-owner")

	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, roles)
	assert.Equal(t, []string{"ok"}, observer.outcomes)
}

func TestMemberRoles_NoRolesIsEmptyNotNil(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":"9"}}`))
	}, nil)

	roles, err := client.MemberRoles(context.Background(), "tok")

	require.NoError(t, err)
	assert.NotNil(t, roles)
	assert.Empty(t, roles)
}

func TestMemberRoles_RateLimited(t *testing.T) {
	client, observer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)

	_, err := client.MemberRoles(context.Background(), "tok")

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []string{"rate_limited"}, observer.outcomes)
}

func TestMemberRoles_RejectedTokenDoesNotTripBreaker(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
	}, breaker)

	for i := 0; i < 3; i++ {
		_, err := client.MemberRoles(context.Background(), "expired")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestMemberRoles_ServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})
	client, observer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, breaker)

	for i := 0; i < 2; i++ {
		_, err := client.MemberRoles(context.Background(), "tok")
		require.Error(t, err)
	}
	_, err := client.MemberRoles(context.Background(), "tok")

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, "circuit_open", observer.outcomes[len(observer.outcomes)-1])
}

func TestMemberRoles_MalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"roles":`))
	}, nil)

	_, err := client.MemberRoles(context.Background(), "tok")
	assert.Error(t, err)
}

func TestMemberRoles_ContextDeadline(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.MemberRoles(ctx, "tok")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_RequiresGuild(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNoGuild)
}

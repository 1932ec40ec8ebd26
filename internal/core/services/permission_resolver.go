package services

import (
	"context"
	"fmt"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	"borerelay/pkg/cache"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Lookup outcomes reported to PermissionMetrics.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupStale   = "stale"
	LookupFailure = "failure"
)

const DefaultResolveTimeout = 5 * time.Second

type PermissionMetrics interface {
	RecordPermissionLookup(outcome string)
}

type permissionResolver struct {
	provider ports.IdentityProvider
	cache    *cache.Cache[domain.PermissionResult]
	roles    domain.RoleSets
	timeout  time.Duration
	group    singleflight.Group
	metrics  PermissionMetrics
	logger   *zap.SugaredLogger
}

// NewPermissionResolver builds a resolver over provider. The cache is owned by
// the caller so tests and the process can each hold their own instance.
// metrics may be nil.
func NewPermissionResolver(
	provider ports.IdentityProvider,
	permCache *cache.Cache[domain.PermissionResult],
	roles domain.RoleSets,
	timeout time.Duration,
	metrics PermissionMetrics,
	logger *zap.SugaredLogger,
) ports.PermissionResolver {
	if timeout <= 0 || timeout > DefaultResolveTimeout {
		timeout = DefaultResolveTimeout
	}
	return &permissionResolver{
		provider: provider,
		cache:    permCache,
		roles:    roles,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

func (r *permissionResolver) Resolve(ctx context.Context, token string) domain.PermissionResult {
	if token == "" {
		return domain.PermissionResult{}
	}

	if cached, ok := r.cache.Get(token); ok {
		r.record(LookupHit)
		return cached
	}
	r.record(LookupMiss)

	// concurrent misses for one token share a single provider call
	v, err, _ := r.group.Do(token, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		roles, err := r.memberRoles(lookupCtx, token)
		if err != nil {
			return nil, err
		}
		result := domain.ComputePermissions(roles, r.roles)
		r.cache.Set(token, result)
		return result, nil
	})
	if err == nil {
		return v.(domain.PermissionResult)
	}

	if stale, ok := r.cache.GetStale(token); ok {
		r.record(LookupStale)
		r.logger.Warnw("Identity lookup failed, serving stale permissions", "error", err)
		return stale
	}

	r.record(LookupFailure)
	r.logger.Warnw("Identity lookup failed", "error", err)
	return domain.PermissionResult{}
}

func (r *permissionResolver) memberRoles(ctx context.Context, token string) (roles []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("identity provider panic: %v", p)
		}
	}()
	return r.provider.MemberRoles(ctx, token)
}

func (r *permissionResolver) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordPermissionLookup(outcome)
	}
}

package monitoring

import (
	"context"
	"errors"
	"time"

	"borerelay/internal/core/ports"
)

// AddRepositoryCheck adds a check pinging the moderation store.
func (h *HealthChecker) AddRepositoryCheck(repo ports.HealthChecker, interval, timeout time.Duration) {
	h.AddCheck("repository", repo.HealthCheck, interval, timeout)
}

// RelayStatus is the slice of the relay the readiness check needs.
type RelayStatus interface {
	Accepting() bool
}

// AddRelayCheck fails once the relay has started shutting down.
func (h *HealthChecker) AddRelayCheck(relay RelayStatus, interval time.Duration) {
	h.AddCheck("relay", func(context.Context) error {
		if !relay.Accepting() {
			return errRelayShuttingDown
		}
		return nil
	}, interval, time.Second)
}

var errRelayShuttingDown = errors.New("relay shutting down")

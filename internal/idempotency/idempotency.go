// Package idempotency reserves client-supplied idempotency keys so a retried
// request replays its first result instead of running twice.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	pendingValue = "pending"
	donePrefix   = "done:"
)

// Reservation is the outcome of Reserve. A fresh reservation must be finished
// with Complete or Release; otherwise ResultID names the replayed result.
type Reservation struct {
	Fresh    bool
	ResultID string
}

// Store holds key reservations.
type Store interface {
	// Reserve claims key. It fails domain.ErrDuplicateOperation while another
	// request holds the key.
	Reserve(ctx context.Context, key string) (Reservation, error)
	Complete(ctx context.Context, key, resultID string) error
	Release(ctx context.Context, key string) error
}

// Key scopes a client key to the caller and operation.
func Key(operation, callerID, clientKey string) string {
	return fmt.Sprintf("idem:%s:%s:%s", operation, callerID, strings.TrimSpace(clientKey))
}

func resultOf(value string) (string, bool) {
	if !strings.HasPrefix(value, donePrefix) {
		return "", false
	}
	return strings.TrimPrefix(value, donePrefix), true
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 24 * time.Hour
	}
	return ttl
}

// Package store persists the lottery's two records per tenant in a
// key-value store. Values are opaque JSON blobs.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// Store is a minimal key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	KeyWinners       = "lottery:%s:lotteryWinners"
	KeyProbabilities = "lottery:%s:lotteryProbabilities"
)

// WinnersKey is the key holding a tenant's winner list.
func WinnersKey(tenantID string) string {
	return fmt.Sprintf(KeyWinners, tenantID)
}

// ProbabilitiesKey is the key holding a tenant's saved probabilities.
func ProbabilitiesKey(tenantID string) string {
	return fmt.Sprintf(KeyProbabilities, tenantID)
}

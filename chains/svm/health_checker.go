package svm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
)

// HealthChecker verifies that an endpoint is up and serves the expected cluster.
type HealthChecker struct {
	expectedGenesisHash string
}

// NewHealthChecker returns a checker. An empty expectedGenesisHash skips the
// genesis comparison.
func NewHealthChecker(expectedGenesisHash string) *HealthChecker {
	return &HealthChecker{
		expectedGenesisHash: expectedGenesisHash,
	}
}

// CheckHealth performs a health check on a Solana RPC client
func (h *HealthChecker) CheckHealth(ctx context.Context, client *rpc.Client) error {
	health, err := client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to get health status: %w", err)
	}
	if health != "ok" {
		return fmt.Errorf("node is not healthy: %s", health)
	}

	if h.expectedGenesisHash == "" {
		return nil
	}
	genesisHash, err := client.GetGenesisHash(ctx)
	if err != nil {
		return fmt.Errorf("failed to get genesis hash: %w", err)
	}
	if !matchesGenesisHash(genesisHash.String(), h.expectedGenesisHash) {
		return fmt.Errorf("genesis hash mismatch: expected %s, got %s",
			h.expectedGenesisHash, genesisHash.String())
	}
	return nil
}

// matchesGenesisHash compares the configured prefix against the full hash.
func matchesGenesisHash(actual, expected string) bool {
	if len(actual) > len(expected) {
		actual = actual[:len(expected)]
	}
	return actual == expected
}

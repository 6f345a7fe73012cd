// Package timewarp moves a simulated clock forward to a wall-clock
// timestamp, advancing the slot by the matching number of slot durations.
package timewarp

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/sysvar"
)

const nanosPerSecond = 1_000_000_000

// ErrWarpSlot marks a failed slot advance that happened after the clock
// timestamp was already rewritten. Re-read the clock to recover.
var ErrWarpSlot = errors.New("slot advance failed after timestamp update")

// Environment exposes the clock of a simulated ledger. Callers must not run
// two warps against the same environment concurrently.
type Environment interface {
	Clock(ctx context.Context) (sysvar.Clock, error)
	SetClock(clock sysvar.Clock) error
	WarpToSlot(slot uint64) error
	NanosecondsPerSlot() uint64
}

// AtomicEnvironment applies a new timestamp and slot in one update.
type AtomicEnvironment interface {
	Environment
	WarpClock(clock sysvar.Clock) error
}

// SlotsUntil returns floor((to-from) * 1e9 / nsPerSlot), computed in 128 bits.
func SlotsUntil(from, to int64, nsPerSlot uint64) (uint64, error) {
	if to <= from {
		return 0, errors.NewOrderingError("slots_until", "target timestamp is not after the current timestamp", nil).
			WithContext("current", from).
			WithContext("target", to)
	}
	if nsPerSlot == 0 {
		return 0, errors.NewConfigError("slots_until", "nanoseconds per slot must be positive")
	}

	// to > from, so the two's complement difference is exact
	diff := uint64(to) - uint64(from)
	hi, lo := bits.Mul64(diff, nanosPerSecond)
	if hi >= nsPerSlot {
		return 0, errors.NewOrderingError("slots_until", "slot distance overflows 64 bits", nil).
			WithContext("seconds", diff)
	}
	slots, _ := bits.Div64(hi, lo, nsPerSlot)
	return slots, nil
}

// WarpToTimestamp moves env's clock to target. A target that is not strictly
// after the current timestamp is rejected before anything is written.
//
// Atomic environments receive the new timestamp and slot together. Others
// get the timestamp at the current slot first and the slot advance second;
// if the advance fails the error wraps ErrWarpSlot and the new timestamp
// stays in place.
func WarpToTimestamp(ctx context.Context, env Environment, target int64) error {
	clock, err := env.Clock(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeIO, "get_clock", "failed to read clock")
	}

	slots, err := SlotsUntil(clock.UnixTimestamp, target, env.NanosecondsPerSlot())
	if err != nil {
		return err
	}
	newSlot, carry := bits.Add64(clock.Slot, slots, 0)
	if carry != 0 {
		return errors.NewOrderingError("warp_to_timestamp", "target slot overflows 64 bits", nil).
			WithContext("slot", clock.Slot).
			WithContext("slots", slots)
	}

	next := clock
	next.UnixTimestamp = target

	if atomic, ok := env.(AtomicEnvironment); ok {
		next.Slot = newSlot
		if err := atomic.WarpClock(next); err != nil {
			return errors.WrapError(err, errors.ErrCodeProtocol, "warp_clock", "failed to warp clock")
		}
		return nil
	}

	if err := env.SetClock(next); err != nil {
		return errors.WrapError(err, errors.ErrCodeIO, "set_clock", "failed to write clock")
	}
	if err := env.WarpToSlot(newSlot); err != nil {
		return errors.NewProtocolError("warp_to_slot", "failed to advance slot", fmt.Errorf("%w: %w", ErrWarpSlot, err)).
			WithContext("slot", newSlot)
	}
	return nil
}

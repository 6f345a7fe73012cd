package timewarp

import (
	"context"
	"math"
	"testing"

	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/sysvar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const nsPerSlot = 400_000_000

type mockEnvironment struct {
	mock.Mock
	clock sysvar.Clock
}

func (m *mockEnvironment) Clock(ctx context.Context) (sysvar.Clock, error) {
	args := m.Called(ctx)
	return m.clock, args.Error(0)
}

func (m *mockEnvironment) SetClock(clock sysvar.Clock) error {
	args := m.Called(clock)
	if args.Error(0) == nil {
		m.clock = clock
	}
	return args.Error(0)
}

func (m *mockEnvironment) WarpToSlot(slot uint64) error {
	args := m.Called(slot)
	if args.Error(0) == nil {
		m.clock.Slot = slot
	}
	return args.Error(0)
}

func (m *mockEnvironment) NanosecondsPerSlot() uint64 {
	return nsPerSlot
}

type atomicEnvironment struct {
	*mockEnvironment
}

func (a atomicEnvironment) WarpClock(clock sysvar.Clock) error {
	args := a.Called(clock)
	if args.Error(0) == nil {
		a.clock = clock
	}
	return args.Error(0)
}

func TestSlotsUntil(t *testing.T) {
	tests := []struct {
		name      string
		from, to  int64
		nsPerSlot uint64
		expected  uint64
		code      errors.ErrorCode
	}{
		{name: "thirty days at 400ms", from: 1000, to: 1000 + 2_592_000, nsPerSlot: nsPerSlot, expected: 6_480_000},
		{name: "floor division", from: 0, to: 1, nsPerSlot: 300_000_000, expected: 3},
		{name: "less than a slot", from: 10, to: 11, nsPerSlot: 2_000_000_000, expected: 0},
		{name: "negative timestamps", from: -100, to: -60, nsPerSlot: nsPerSlot, expected: 100},
		{name: "full int64 span at one slot per second", from: math.MinInt64, to: math.MaxInt64, nsPerSlot: 1_000_000_000, expected: math.MaxUint64},
		{name: "equal timestamps", from: 5, to: 5, nsPerSlot: nsPerSlot, code: errors.ErrCodeOrdering},
		{name: "backwards", from: 5, to: 4, nsPerSlot: nsPerSlot, code: errors.ErrCodeOrdering},
		{name: "zero slot duration", from: 0, to: 1, nsPerSlot: 0, code: errors.ErrCodeConfig},
		{name: "quotient overflow", from: 0, to: math.MaxInt64, nsPerSlot: nsPerSlot, code: errors.ErrCodeOrdering},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := SlotsUntil(tt.from, tt.to, tt.nsPerSlot)
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.code))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, slots)
		})
	}
}

func TestWarpToTimestamp(t *testing.T) {
	start := sysvar.Clock{Slot: 1000, UnixTimestamp: 1000, Epoch: 1}
	target := int64(1000 + 2_592_000)

	t.Run("two step update", func(t *testing.T) {
		env := &mockEnvironment{clock: start}
		env.On("Clock", mock.Anything).Return(nil)
		env.On("SetClock", sysvar.Clock{Slot: 1000, UnixTimestamp: target, Epoch: 1}).Return(nil).Once()
		env.On("WarpToSlot", uint64(1000+6_480_000)).Return(nil).Once()

		require.NoError(t, WarpToTimestamp(context.Background(), env, target))
		assert.Equal(t, target, env.clock.UnixTimestamp)
		assert.Equal(t, uint64(6_481_000), env.clock.Slot)
		env.AssertExpectations(t)
	})

	t.Run("atomic update", func(t *testing.T) {
		env := atomicEnvironment{&mockEnvironment{clock: start}}
		env.On("Clock", mock.Anything).Return(nil)
		env.On("WarpClock", sysvar.Clock{Slot: 6_481_000, UnixTimestamp: target, Epoch: 1}).Return(nil).Once()

		require.NoError(t, WarpToTimestamp(context.Background(), env, target))
		assert.Equal(t, uint64(6_481_000), env.clock.Slot)
		env.AssertNotCalled(t, "SetClock", mock.Anything)
		env.AssertNotCalled(t, "WarpToSlot", mock.Anything)
	})

	t.Run("backwards target mutates nothing", func(t *testing.T) {
		for _, ts := range []int64{1000, 999, math.MinInt64} {
			env := &mockEnvironment{clock: start}
			env.On("Clock", mock.Anything).Return(nil)

			err := WarpToTimestamp(context.Background(), env, ts)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeOrdering))
			assert.Equal(t, start, env.clock)
			env.AssertNotCalled(t, "SetClock", mock.Anything)
			env.AssertNotCalled(t, "WarpToSlot", mock.Anything)
		}
	})

	t.Run("slot advance failure keeps new timestamp", func(t *testing.T) {
		env := &mockEnvironment{clock: start}
		env.On("Clock", mock.Anything).Return(nil)
		env.On("SetClock", mock.Anything).Return(nil)
		env.On("WarpToSlot", mock.Anything).Return(assert.AnError)

		err := WarpToTimestamp(context.Background(), env, target)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWarpSlot)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, target, env.clock.UnixTimestamp)
		assert.Equal(t, start.Slot, env.clock.Slot)
	})

	t.Run("clock read failure", func(t *testing.T) {
		env := &mockEnvironment{clock: start}
		env.On("Clock", mock.Anything).Return(assert.AnError)

		err := WarpToTimestamp(context.Background(), env, target)
		require.ErrorIs(t, err, assert.AnError)
		env.AssertNotCalled(t, "SetClock", mock.Anything)
	})

	t.Run("slot overflow", func(t *testing.T) {
		env := &mockEnvironment{clock: sysvar.Clock{Slot: math.MaxUint64 - 1, UnixTimestamp: 0}}
		env.On("Clock", mock.Anything).Return(nil)

		err := WarpToTimestamp(context.Background(), env, 10)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeOrdering))
		env.AssertNotCalled(t, "SetClock", mock.Anything)
	})
}

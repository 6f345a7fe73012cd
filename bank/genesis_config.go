package bank

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/halbornteam/solana-test-framework/sysvar"
)

const (
	DefaultTicksPerSlot            = 64
	DefaultTargetTickDuration      = time.Second / 160
	DefaultFeeLamportsPerSignature = 5000
	DefaultSlotsPerEpoch           = 432000

	// DefaultPayerLamports funds the payer of a started context.
	DefaultPayerLamports = 500_000 * solana.LAMPORTS_PER_SOL

	// maxRecentBlockhashes bounds the blockhash queue.
	maxRecentBlockhashes = 300
)

// GenesisConfig holds the parameters a bank is created with.
type GenesisConfig struct {
	CreationTime            time.Time
	TicksPerSlot            uint64
	TargetTickDuration      time.Duration
	FeeLamportsPerSignature uint64
	SlotsPerEpoch           uint64
	Rent                    sysvar.Rent
}

// DefaultGenesisConfig returns the mainnet-like defaults created at now.
func DefaultGenesisConfig(now time.Time) GenesisConfig {
	return GenesisConfig{
		CreationTime:            now,
		TicksPerSlot:            DefaultTicksPerSlot,
		TargetTickDuration:      DefaultTargetTickDuration,
		FeeLamportsPerSignature: DefaultFeeLamportsPerSignature,
		SlotsPerEpoch:           DefaultSlotsPerEpoch,
		Rent:                    sysvar.DefaultRent(),
	}
}

// NanosecondsPerSlot is the configured duration of one slot.
func (g GenesisConfig) NanosecondsPerSlot() uint64 {
	return g.TicksPerSlot * uint64(g.TargetTickDuration.Nanoseconds())
}

func (g GenesisConfig) withDefaults() GenesisConfig {
	if g.TicksPerSlot == 0 {
		g.TicksPerSlot = DefaultTicksPerSlot
	}
	if g.TargetTickDuration <= 0 {
		g.TargetTickDuration = DefaultTargetTickDuration
	}
	if g.FeeLamportsPerSignature == 0 {
		g.FeeLamportsPerSignature = DefaultFeeLamportsPerSignature
	}
	if g.SlotsPerEpoch == 0 {
		g.SlotsPerEpoch = DefaultSlotsPerEpoch
	}
	if g.Rent == (sysvar.Rent{}) {
		g.Rent = sysvar.DefaultRent()
	}
	return g
}

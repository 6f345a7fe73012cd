// Package sysvar holds the binary layouts of the Clock and Rent sysvar
// accounts used by the bank and the time-warp converter.
package sysvar

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ClockID = solana.SysVarClockPubkey
	RentID  = solana.SysVarRentPubkey
)

// ClockSize is the serialized length of the Clock sysvar.
const ClockSize = 40

// Clock mirrors the runtime Clock sysvar.
type Clock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

func (c Clock) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(c.Slot, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteInt64(c.EpochStartTimestamp, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.Epoch, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.LeaderScheduleEpoch, bin.LE); err != nil {
		return err
	}
	return enc.WriteInt64(c.UnixTimestamp, bin.LE)
}

func (c *Clock) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if c.Slot, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if c.EpochStartTimestamp, err = dec.ReadInt64(bin.LE); err != nil {
		return err
	}
	if c.Epoch, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if c.LeaderScheduleEpoch, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	c.UnixTimestamp, err = dec.ReadInt64(bin.LE)
	return err
}

// Bytes returns the account data of the clock.
func (c Clock) Bytes() []byte {
	buf := new(bytes.Buffer)
	// writes into a bytes.Buffer cannot fail
	_ = c.MarshalWithEncoder(bin.NewBinEncoder(buf))
	return buf.Bytes()
}

// DecodeClock parses Clock sysvar account data.
func DecodeClock(data []byte) (Clock, error) {
	var c Clock
	err := c.UnmarshalWithDecoder(bin.NewBinDecoder(data))
	return c, err
}

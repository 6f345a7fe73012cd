package loader

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// StateType is the enum tag at the start of every upgradeable loader account.
type StateType uint32

const (
	StateUninitialized StateType = iota
	StateBuffer
	StateProgram
	StateProgramData
)

const (
	// BufferMetadataSize precedes the program bytes in a buffer account.
	BufferMetadataSize = 4 + 1 + 32
	// SizeOfProgram is the full length of a program account.
	SizeOfProgram = 4 + 32
	// ProgramDataMetadataSize precedes the program bytes in a program data account.
	ProgramDataMetadataSize = 4 + 8 + 1 + 32
)

func SizeOfBuffer(programLen int) int      { return BufferMetadataSize + programLen }
func SizeOfProgramData(programLen int) int { return ProgramDataMetadataSize + programLen }

// State is an upgradeable loader account header. Only the fields of the
// variant named by Type are meaningful.
type State struct {
	Type StateType

	// Buffer and ProgramData
	Authority *solana.PublicKey

	// Program
	ProgramData solana.PublicKey

	// ProgramData
	Slot uint64
}

func (s State) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint32(uint32(s.Type), bin.LE); err != nil {
		return err
	}
	switch s.Type {
	case StateUninitialized:
		return nil
	case StateBuffer:
		return writeOptionalKey(enc, s.Authority)
	case StateProgram:
		return enc.WriteBytes(s.ProgramData[:], false)
	case StateProgramData:
		if err := enc.WriteUint64(s.Slot, bin.LE); err != nil {
			return err
		}
		return writeOptionalKey(enc, s.Authority)
	default:
		return fmt.Errorf("unknown loader state %d", s.Type)
	}
}

func (s *State) UnmarshalWithDecoder(dec *bin.Decoder) error {
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	s.Type = StateType(tag)
	switch s.Type {
	case StateUninitialized:
		return nil
	case StateBuffer:
		s.Authority, err = readOptionalKey(dec)
		return err
	case StateProgram:
		b, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		s.ProgramData = solana.PublicKeyFromBytes(b)
		return nil
	case StateProgramData:
		if s.Slot, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		s.Authority, err = readOptionalKey(dec)
		return err
	default:
		return fmt.Errorf("unknown loader state %d", tag)
	}
}

// Bytes encodes the header padded to the fixed metadata size of its variant.
func (s State) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := s.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if size := s.metadataSize(); len(out) < size {
		out = append(out, make([]byte, size-len(out))...)
	}
	return out, nil
}

func (s State) metadataSize() int {
	switch s.Type {
	case StateBuffer:
		return BufferMetadataSize
	case StateProgram:
		return SizeOfProgram
	case StateProgramData:
		return ProgramDataMetadataSize
	default:
		return 4
	}
}

// DecodeState parses the header of an upgradeable loader account.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := s.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return State{}, fmt.Errorf("decode loader state: %w", err)
	}
	return s, nil
}

// Option<Pubkey> keeps a fixed 33-byte footprint in account headers so the
// program bytes start at a constant offset.
func writeOptionalKey(enc *bin.Encoder, key *solana.PublicKey) error {
	if key == nil {
		if err := enc.WriteUint8(0); err != nil {
			return err
		}
		return enc.WriteBytes(make([]byte, 32), false)
	}
	if err := enc.WriteUint8(1); err != nil {
		return err
	}
	return enc.WriteBytes(key[:], false)
}

func readOptionalKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	flag, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	if flag == 0 {
		return nil, nil
	}
	key := solana.PublicKeyFromBytes(b)
	return &key, nil
}

package loader

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Loader v2 instruction tags.
const (
	V2Write    uint32 = 0
	V2Finalize uint32 = 1
)

// V2Instruction is a decoded loader v2 instruction.
type V2Instruction struct {
	Tag    uint32
	Offset uint32
	Bytes  []byte
}

func encodeWrite(tag, offset uint32, data []byte) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint32(tag, bin.LE)
	_ = enc.WriteUint32(offset, bin.LE)
	_ = enc.WriteUint64(uint64(len(data)), bin.LE)
	_ = enc.WriteBytes(data, false)
	return buf.Bytes()
}

func encodeTag(tag uint32) []byte {
	buf := new(bytes.Buffer)
	_ = bin.NewBinEncoder(buf).WriteUint32(tag, bin.LE)
	return buf.Bytes()
}

// Write stores bytes at offset inside a loader v2 owned account. The account
// must sign.
func Write(account solana.PublicKey, offset uint32, data []byte) solana.Instruction {
	return solana.NewInstruction(
		BPFLoaderProgramID,
		solana.AccountMetaSlice{
			{PublicKey: account, IsWritable: true, IsSigner: true},
		},
		encodeWrite(V2Write, offset, data),
	)
}

// Finalize marks a loader v2 account executable.
func Finalize(account solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		BPFLoaderProgramID,
		solana.AccountMetaSlice{
			{PublicKey: account, IsWritable: true, IsSigner: true},
			{PublicKey: solana.SysVarRentPubkey},
		},
		encodeTag(V2Finalize),
	)
}

// DecodeLoaderInstruction parses loader v2 instruction data.
func DecodeLoaderInstruction(data []byte) (V2Instruction, error) {
	dec := bin.NewBinDecoder(data)
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return V2Instruction{}, fmt.Errorf("read instruction tag: %w", err)
	}
	ix := V2Instruction{Tag: tag}
	switch tag {
	case V2Write:
		ix.Offset, ix.Bytes, err = decodeWriteBody(dec)
		if err != nil {
			return V2Instruction{}, err
		}
	case V2Finalize:
	default:
		return V2Instruction{}, fmt.Errorf("unknown loader instruction %d", tag)
	}
	return ix, nil
}

func decodeWriteBody(dec *bin.Decoder) (uint32, []byte, error) {
	offset, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return 0, nil, fmt.Errorf("read offset: %w", err)
	}
	n, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, nil, fmt.Errorf("read length: %w", err)
	}
	if n > uint64(dec.Remaining()) {
		return 0, nil, fmt.Errorf("write length %d exceeds instruction data", n)
	}
	data, err := dec.ReadNBytes(int(n))
	if err != nil {
		return 0, nil, fmt.Errorf("read bytes: %w", err)
	}
	return offset, data, nil
}

package loader

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Upgradeable loader instruction tags.
const (
	InitializeBuffer     uint32 = 0
	UpgradeableWrite     uint32 = 1
	DeployWithMaxDataLen uint32 = 2
	Upgrade              uint32 = 3
)

// UpgradeableInstruction is a decoded upgradeable loader instruction.
type UpgradeableInstruction struct {
	Tag        uint32
	Offset     uint32
	Bytes      []byte
	MaxDataLen uint64
}

// CreateBuffer allocates a buffer able to hold programLen bytes and
// initializes it with the given authority.
func CreateBuffer(payer, buffer, authority solana.PublicKey, lamports uint64, programLen int) []solana.Instruction {
	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			lamports,
			uint64(SizeOfBuffer(programLen)),
			BPFLoaderUpgradeableProgramID,
			payer,
			buffer,
		).Build(),
		solana.NewInstruction(
			BPFLoaderUpgradeableProgramID,
			solana.AccountMetaSlice{
				{PublicKey: buffer, IsWritable: true},
				{PublicKey: authority},
			},
			encodeTag(InitializeBuffer),
		),
	}
}

// WriteBuffer stores bytes at offset inside the buffer's program region.
func WriteBuffer(buffer, authority solana.PublicKey, offset uint32, data []byte) solana.Instruction {
	return solana.NewInstruction(
		BPFLoaderUpgradeableProgramID,
		solana.AccountMetaSlice{
			{PublicKey: buffer, IsWritable: true},
			{PublicKey: authority, IsSigner: true},
		},
		encodeWrite(UpgradeableWrite, offset, data),
	)
}

// DeployWithMaxProgramLen creates the program account and deploys the buffer
// into a program data account with room for maxDataLen bytes.
func DeployWithMaxProgramLen(payer, program, buffer, authority solana.PublicKey, programLamports uint64, maxDataLen int) ([]solana.Instruction, error) {
	programData, err := ProgramDataAddress(program)
	if err != nil {
		return nil, err
	}

	data := new(bytes.Buffer)
	enc := bin.NewBinEncoder(data)
	_ = enc.WriteUint32(DeployWithMaxDataLen, bin.LE)
	_ = enc.WriteUint64(uint64(maxDataLen), bin.LE)

	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			programLamports,
			uint64(SizeOfProgram),
			BPFLoaderUpgradeableProgramID,
			payer,
			program,
		).Build(),
		solana.NewInstruction(
			BPFLoaderUpgradeableProgramID,
			solana.AccountMetaSlice{
				{PublicKey: payer, IsWritable: true, IsSigner: true},
				{PublicKey: programData, IsWritable: true},
				{PublicKey: program, IsWritable: true},
				{PublicKey: buffer, IsWritable: true},
				{PublicKey: solana.SysVarRentPubkey},
				{PublicKey: solana.SysVarClockPubkey},
				{PublicKey: solana.SystemProgramID},
				{PublicKey: authority, IsSigner: true},
			},
			data.Bytes(),
		),
	}, nil
}

// UpgradeProgram replaces the program data of program with the buffer
// contents. Leftover lamports go to spill.
func UpgradeProgram(program, buffer, authority, spill solana.PublicKey) (solana.Instruction, error) {
	programData, err := ProgramDataAddress(program)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		BPFLoaderUpgradeableProgramID,
		solana.AccountMetaSlice{
			{PublicKey: programData, IsWritable: true},
			{PublicKey: program, IsWritable: true},
			{PublicKey: buffer, IsWritable: true},
			{PublicKey: spill, IsWritable: true},
			{PublicKey: solana.SysVarRentPubkey},
			{PublicKey: solana.SysVarClockPubkey},
			{PublicKey: authority, IsSigner: true},
		},
		encodeTag(Upgrade),
	), nil
}

// ProgramDataAddress derives the program data account of program.
func ProgramDataAddress(program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{program.Bytes()}, BPFLoaderUpgradeableProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive program data address: %w", err)
	}
	return addr, nil
}

// DecodeUpgradeableInstruction parses upgradeable loader instruction data.
func DecodeUpgradeableInstruction(data []byte) (UpgradeableInstruction, error) {
	dec := bin.NewBinDecoder(data)
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return UpgradeableInstruction{}, fmt.Errorf("read instruction tag: %w", err)
	}
	ix := UpgradeableInstruction{Tag: tag}
	switch tag {
	case InitializeBuffer, Upgrade:
	case UpgradeableWrite:
		ix.Offset, ix.Bytes, err = decodeWriteBody(dec)
		if err != nil {
			return UpgradeableInstruction{}, err
		}
	case DeployWithMaxDataLen:
		ix.MaxDataLen, err = dec.ReadUint64(bin.LE)
		if err != nil {
			return UpgradeableInstruction{}, fmt.Errorf("read max data len: %w", err)
		}
	default:
		return UpgradeableInstruction{}, fmt.Errorf("unsupported upgradeable loader instruction %d", tag)
	}
	return ix, nil
}

package deploy

import (
	"iter"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/txbuilder"
)

// ErrChunkSizeExhausted means the fixed overhead of a chunk transaction
// already fills the packet.
var ErrChunkSizeExhausted = errors.New("transaction overhead leaves no room for chunk data")

// InstructionFunc builds the write instruction carrying bytes at offset. The
// serialized overhead of its result must not depend on offset.
type InstructionFunc func(offset uint32, bytes []byte) solana.Instruction

// Chunk is one offset-tagged slice of a program image.
type Chunk struct {
	Offset uint32
	Bytes  []byte
}

// CalculateChunkSize measures a zero-payload transaction built from build and
// signed by signers (signers[0] pays) and returns how many payload bytes fit
// under txbuilder.PacketDataSize. One byte is reserved for the growth of the
// data length prefix.
func CalculateChunkSize(build InstructionFunc, signers []solana.PrivateKey) (int, error) {
	overhead, err := measureOverhead(build, signers, 0)
	if err != nil {
		return 0, err
	}
	chunk := txbuilder.PacketDataSize - overhead - 1
	if chunk <= 0 {
		return 0, errors.NewError(errors.ErrCodeConfig, "calculate_chunk_size", "chunk size is not positive", ErrChunkSizeExhausted).
			WithContext("overhead", overhead).
			WithContext("ceiling", txbuilder.PacketDataSize)
	}
	return chunk, nil
}

func measureOverhead(build InstructionFunc, signers []solana.PrivateKey, offset uint32) (int, error) {
	if len(signers) == 0 {
		return 0, errors.NewConfigError("calculate_chunk_size", "at least one signer is required")
	}
	tx, err := txbuilder.Build(
		[]solana.Instruction{build(offset, []byte{})},
		signers[0].PublicKey(),
		signers,
		solana.Hash{},
	)
	if err != nil {
		return 0, err
	}
	return txbuilder.WireSize(tx)
}

// Chunks yields (offset, bytes) pairs covering data in order. Every call to
// the returned sequence restarts from the beginning of data. A non-positive
// size yields nothing.
func Chunks(data []byte, size int) iter.Seq2[uint32, []byte] {
	return func(yield func(uint32, []byte) bool) {
		if size <= 0 {
			return
		}
		for start := 0; start < len(data); start += size {
			end := min(start+size, len(data))
			if !yield(uint32(start), data[start:end:end]) {
				return
			}
		}
	}
}

// SplitChunks validates size and the offset range of data and materialises
// its chunk sequence.
func SplitChunks(data []byte, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, errors.NewError(errors.ErrCodeConfig, "split_chunks", "chunk size must be positive", ErrChunkSizeExhausted)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, errors.NewValidationError("split_chunks", "program image exceeds the 32-bit offset range").
			WithContext("length", len(data))
	}
	chunks := make([]Chunk, 0, (len(data)+size-1)/size)
	for offset, b := range Chunks(data, size) {
		chunks = append(chunks, Chunk{Offset: offset, Bytes: b})
	}
	return chunks, nil
}

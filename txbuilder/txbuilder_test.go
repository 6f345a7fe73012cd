package txbuilder

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBlockhashProvider struct {
	mock.Mock
}

func (m *mockBlockhashProvider) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

func transferIx(from, to solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(1, from, to).Build()
}

func TestBuild(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	other := solana.NewWallet().PrivateKey
	recipient := solana.NewWallet().PublicKey()
	blockhash := solana.Hash{1, 2, 3}

	t.Run("signs with payer", func(t *testing.T) {
		tx, err := Build([]solana.Instruction{transferIx(payer.PublicKey(), recipient)}, payer.PublicKey(), []solana.PrivateKey{payer}, blockhash)
		require.NoError(t, err)

		assert.Equal(t, blockhash, tx.Message.RecentBlockhash)
		require.Len(t, tx.Signatures, 1)
		assert.True(t, tx.Message.AccountKeys[0].Equals(payer.PublicKey()))
		assert.NoError(t, tx.VerifySignatures())
	})

	t.Run("signs every required signer", func(t *testing.T) {
		ixs := []solana.Instruction{
			transferIx(payer.PublicKey(), recipient),
			transferIx(other.PublicKey(), recipient),
		}
		tx, err := Build(ixs, payer.PublicKey(), []solana.PrivateKey{payer, other}, blockhash)
		require.NoError(t, err)
		assert.Len(t, tx.Signatures, 2)
		assert.NoError(t, tx.VerifySignatures())
	})

	t.Run("missing required signer", func(t *testing.T) {
		ixs := []solana.Instruction{transferIx(other.PublicKey(), recipient)}
		_, err := Build(ixs, payer.PublicKey(), []solana.PrivateKey{payer}, blockhash)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})

	t.Run("payer not in signer set", func(t *testing.T) {
		ixs := []solana.Instruction{transferIx(other.PublicKey(), recipient)}
		_, err := Build(ixs, payer.PublicKey(), []solana.PrivateKey{other}, blockhash)
		require.ErrorContains(t, err, "fee payer")
	})

	t.Run("no instructions", func(t *testing.T) {
		_, err := Build(nil, payer.PublicKey(), []solana.PrivateKey{payer}, blockhash)
		require.Error(t, err)
	})
}

func TestFromInstructions(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	recipient := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{transferIx(payer.PublicKey(), recipient)}

	t.Run("uses latest blockhash", func(t *testing.T) {
		provider := &mockBlockhashProvider{}
		blockhash := solana.Hash{9}
		provider.On("LatestBlockhash", mock.Anything).Return(blockhash, nil).Once()

		tx, err := FromInstructions(context.Background(), provider, ixs, payer.PublicKey(), []solana.PrivateKey{payer})
		require.NoError(t, err)
		assert.Equal(t, blockhash, tx.Message.RecentBlockhash)
		provider.AssertExpectations(t)
	})

	t.Run("blockhash failure propagates without retry", func(t *testing.T) {
		provider := &mockBlockhashProvider{}
		provider.On("LatestBlockhash", mock.Anything).Return(solana.Hash{}, assert.AnError).Once()

		_, err := FromInstructions(context.Background(), provider, ixs, payer.PublicKey(), []solana.PrivateKey{payer})
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
		assert.True(t, errors.IsCode(err, errors.ErrCodeIO))
		provider.AssertNumberOfCalls(t, "LatestBlockhash", 1)
	})
}

func TestWireSize(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	recipient := solana.NewWallet().PublicKey()

	tx, err := Build([]solana.Instruction{transferIx(payer.PublicKey(), recipient)}, payer.PublicKey(), []solana.PrivateKey{payer}, solana.Hash{})
	require.NoError(t, err)

	size, err := WireSize(tx)
	require.NoError(t, err)

	// 1 sig + header + 3 keys + blockhash + 1 compiled transfer
	// (1 + 64) + 3 + (1 + 96) + 32 + (1 + 1 + 1 + 2 + 1 + 12)
	assert.Equal(t, 215, size)
	assert.Less(t, size, PacketDataSize)
}

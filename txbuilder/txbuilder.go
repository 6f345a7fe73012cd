// Package txbuilder assembles signed transactions against a fresh blockhash
// and measures their wire size.
package txbuilder

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/halbornteam/solana-test-framework/errors"
)

// PacketDataSize is the largest serialized transaction the network accepts.
const PacketDataSize = 1232

// BlockhashProvider returns the most recent blockhash an environment recognises.
type BlockhashProvider interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// Build assembles ixs with payer as fee payer and signs it with signers.
// signers must contain the payer and every account flagged as signer.
func Build(
	ixs []solana.Instruction,
	payer solana.PublicKey,
	signers []solana.PrivateKey,
	blockhash solana.Hash,
) (*solana.Transaction, error) {
	if len(ixs) == 0 {
		return nil, errors.NewValidationError("build_transaction", "no instructions")
	}
	if !containsSigner(signers, payer) {
		return nil, errors.NewValidationError("build_transaction", "signer set does not include the fee payer").
			WithContext("payer", payer.String())
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeValidation, "build_transaction", "failed to create transaction", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeValidation, "sign_transaction", "failed to sign transaction", err)
	}
	return tx, nil
}

// FromInstructions fetches the latest blockhash from provider and builds a
// signed transaction referencing it. Blockhash failures are not retried.
func FromInstructions(
	ctx context.Context,
	provider BlockhashProvider,
	ixs []solana.Instruction,
	payer solana.PublicKey,
	signers []solana.PrivateKey,
) (*solana.Transaction, error) {
	blockhash, err := provider.LatestBlockhash(ctx)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeIO, "latest_blockhash", "failed to get latest blockhash")
	}
	return Build(ixs, payer, signers, blockhash)
}

// WireSize returns the serialized length of tx.
func WireSize(tx *solana.Transaction) (int, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return 0, errors.NewInternalError("marshal_transaction", "failed to serialize transaction", err)
	}
	return len(raw), nil
}

func containsSigner(signers []solana.PrivateKey, key solana.PublicKey) bool {
	for _, s := range signers {
		if s.PublicKey().Equals(key) {
			return true
		}
	}
	return false
}

package bank

import (
	"github.com/halbornteam/solana-test-framework/fixtures"
)

const (
	ataCreate           uint8 = 0
	ataCreateIdempotent uint8 = 1
)

// processAssociatedTokenAccount creates the token account directly instead
// of invoking the token program.
//
// accounts: [payer (s, w), associated account (w), wallet, mint,
// system program, token program]
func processAssociatedTokenAccount(ic *InvokeContext) error {
	tag := ataCreate
	if len(ic.Data) > 0 {
		tag = ic.Data[0]
	}
	if tag != ataCreate && tag != ataCreateIdempotent {
		return ErrInvalidInstructionData
	}
	if err := ic.RequireAccounts(6); err != nil {
		return err
	}
	if err := ic.RequireSigner(0); err != nil {
		return err
	}

	wallet, mintKey, tokenProgram := ic.Accounts[2].Key, ic.Accounts[3].Key, ic.Accounts[5].Key
	if tokenProgram != fixtures.TokenProgramID && tokenProgram != fixtures.Token2022ProgramID {
		return ErrIncorrectProgramID
	}
	expected, err := fixtures.AssociatedTokenAddress(wallet, mintKey, tokenProgram)
	if err != nil || expected != ic.Accounts[1].Key {
		return ErrInvalidSeeds
	}

	mint, err := ic.Account(3)
	if err != nil {
		return err
	}
	if mint.Owner != tokenProgram {
		return ErrInvalidAccountOwner
	}
	if state, err := fixtures.UnpackMint(mint.Data); err != nil || !state.IsInitialized {
		return ErrUninitializedAccount
	}

	existing, err := ic.Account(1)
	if err != nil {
		return err
	}
	if !existing.IsEmpty() {
		if tag == ataCreateIdempotent && existing.Owner == tokenProgram {
			state, err := fixtures.UnpackTokenAccount(existing.Data)
			if err == nil && state.Owner == wallet && state.Mint == mintKey {
				return nil
			}
		}
		return ErrAccountAlreadyInUse
	}

	if err := ic.Transfer(0, 1, ic.Rent.MinimumBalance(fixtures.TokenAccountSize)); err != nil {
		return err
	}
	acc, err := ic.Mutable(1)
	if err != nil {
		return err
	}
	acc.Owner = tokenProgram
	acc.Data = make([]byte, fixtures.TokenAccountSize)
	return packInto(acc.Data, fixtures.TokenAccount{
		Mint:  mintKey,
		Owner: wallet,
		State: fixtures.TokenAccountInitialized,
	})
}

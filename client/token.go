package client

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/fixtures"
)

// tokenInstruction retargets an instruction built for the legacy token
// program at another program with the same instruction layout.
type tokenInstruction struct {
	solana.Instruction
	program solana.PublicKey
}

func (t tokenInstruction) ProgramID() solana.PublicKey {
	return t.program
}

func forTokenProgram(ix solana.Instruction, tokenProgram solana.PublicKey) solana.Instruction {
	if tokenProgram.Equals(fixtures.TokenProgramID) {
		return ix
	}
	return tokenInstruction{Instruction: ix, program: tokenProgram}
}

// CreateTokenMint creates and initializes mint under the legacy token program.
func (c *Client) CreateTokenMint(
	ctx context.Context,
	mint solana.PrivateKey,
	authority solana.PublicKey,
	freezeAuthority *solana.PublicKey,
	decimals uint8,
	payer solana.PrivateKey,
) error {
	return c.CreateTokenMintWithProgram(ctx, fixtures.TokenProgramID, mint, authority, freezeAuthority, decimals, payer)
}

// CreateTokenMintWithProgram is CreateTokenMint for tokenProgram, which is
// the legacy token program or Token-2022.
func (c *Client) CreateTokenMintWithProgram(
	ctx context.Context,
	tokenProgram solana.PublicKey,
	mint solana.PrivateKey,
	authority solana.PublicKey,
	freezeAuthority *solana.PublicKey,
	decimals uint8,
	payer solana.PrivateKey,
) error {
	lamports, err := c.MinimumBalance(ctx, fixtures.MintSize)
	if err != nil {
		return err
	}
	create := system.NewCreateAccountInstruction(
		lamports,
		fixtures.MintSize,
		tokenProgram,
		payer.PublicKey(),
		mint.PublicKey(),
	).Build()

	builder := token.NewInitializeMintInstructionBuilder().
		SetDecimals(decimals).
		SetMintAuthority(authority).
		SetMintAccount(mint.PublicKey()).
		SetSysVarRentPubkeyAccount(solana.SysVarRentPubkey)
	if freezeAuthority != nil {
		builder.SetFreezeAuthority(*freezeAuthority)
	}
	initialize, err := builder.ValidateAndBuild()
	if err != nil {
		return errors.NewInternalError("create_token_mint", "failed to build initialize mint instruction", err)
	}

	ixs := []solana.Instruction{create, forTokenProgram(initialize, tokenProgram)}
	if err := c.ProcessInstructions(ctx, ixs, payer, mint); err != nil {
		return errors.WrapError(err, errors.ErrCodeIO, "create_token_mint", "failed to create mint").
			WithContext("mint", mint.PublicKey().String())
	}
	return nil
}

// CreateTokenAccount creates and initializes account for mint, owned by
// authority, under the legacy token program.
func (c *Client) CreateTokenAccount(
	ctx context.Context,
	account solana.PrivateKey,
	authority, mint solana.PublicKey,
	payer solana.PrivateKey,
) error {
	return c.CreateTokenAccountWithProgram(ctx, fixtures.TokenProgramID, account, authority, mint, payer)
}

// CreateTokenAccountWithProgram is CreateTokenAccount for tokenProgram.
func (c *Client) CreateTokenAccountWithProgram(
	ctx context.Context,
	tokenProgram solana.PublicKey,
	account solana.PrivateKey,
	authority, mint solana.PublicKey,
	payer solana.PrivateKey,
) error {
	lamports, err := c.MinimumBalance(ctx, fixtures.TokenAccountSize)
	if err != nil {
		return err
	}
	create := system.NewCreateAccountInstruction(
		lamports,
		fixtures.TokenAccountSize,
		tokenProgram,
		payer.PublicKey(),
		account.PublicKey(),
	).Build()

	initialize, err := token.NewInitializeAccountInstruction(
		account.PublicKey(),
		mint,
		authority,
		solana.SysVarRentPubkey,
	).ValidateAndBuild()
	if err != nil {
		return errors.NewInternalError("create_token_account", "failed to build initialize account instruction", err)
	}

	ixs := []solana.Instruction{create, forTokenProgram(initialize, tokenProgram)}
	if err := c.ProcessInstructions(ctx, ixs, payer, account); err != nil {
		return errors.WrapError(err, errors.ErrCodeIO, "create_token_account", "failed to create token account").
			WithContext("account", account.PublicKey().String())
	}
	return nil
}

// CreateAssociatedTokenAccount creates the associated token account of
// wallet for mint under tokenProgram and returns its address.
func (c *Client) CreateAssociatedTokenAccount(
	ctx context.Context,
	wallet, mint solana.PublicKey,
	payer solana.PrivateKey,
	tokenProgram solana.PublicKey,
) (solana.PublicKey, error) {
	ata, err := fixtures.AssociatedTokenAddress(wallet, mint, tokenProgram)
	if err != nil {
		return solana.PublicKey{}, errors.NewInternalError("create_associated_token_account", "failed to derive address", err)
	}
	ix, err := fixtures.CreateAssociatedTokenAccountInstruction(payer.PublicKey(), wallet, mint, tokenProgram)
	if err != nil {
		return solana.PublicKey{}, errors.NewInternalError("create_associated_token_account", "failed to build instruction", err)
	}
	if err := c.ProcessInstructions(ctx, []solana.Instruction{ix}, payer); err != nil {
		return solana.PublicKey{}, errors.WrapError(err, errors.ErrCodeIO, "create_associated_token_account", "failed to create associated token account").
			WithContext("address", ata.String())
	}
	return ata, nil
}

// MintTo mints amount of mint into destination, signed by authority.
func (c *Client) MintTo(
	ctx context.Context,
	tokenProgram, mint, destination solana.PublicKey,
	authority solana.PrivateKey,
	amount uint64,
	payer solana.PrivateKey,
) error {
	ix, err := token.NewMintToInstruction(amount, mint, destination, authority.PublicKey(), nil).ValidateAndBuild()
	if err != nil {
		return errors.NewInternalError("mint_to", "failed to build mint instruction", err)
	}
	return c.ProcessInstructions(ctx, []solana.Instruction{forTokenProgram(ix, tokenProgram)}, payer, authority)
}

package bank

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halbornteam/solana-test-framework/fixtures"
)

func tokenState(t *testing.T, c *Context, key solana.PublicKey) fixtures.TokenAccount {
	t.Helper()
	acc, err := c.Banks().GetAccount(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, acc)
	state, err := fixtures.UnpackTokenAccount(acc.Data)
	require.NoError(t, err)
	return state
}

func mintState(t *testing.T, c *Context, key solana.PublicKey) fixtures.Mint {
	t.Helper()
	acc, err := c.Banks().GetAccount(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, acc)
	state, err := fixtures.UnpackMint(acc.Data)
	require.NoError(t, err)
	return state
}

func TestToken_InitializeMintAndAccount(t *testing.T) {
	c := startContext(t, newTestGenesis())
	payer, mint, account := c.Payer(), newKey(t), newKey(t)
	authority, owner := newKey(t).PublicKey(), newKey(t).PublicKey()
	rent := c.Banks().Rent()

	initMint := append([]byte{tokenInitializeMint, 6}, authority[:]...)
	initMint = append(initMint, 0)
	require.NoError(t, send(t, c, []solana.Instruction{
		system.NewCreateAccountInstruction(rent.MinimumBalance(fixtures.MintSize), fixtures.MintSize, fixtures.TokenProgramID, payer.PublicKey(), mint.PublicKey()).Build(),
		solana.NewInstruction(fixtures.TokenProgramID, solana.AccountMetaSlice{
			{PublicKey: mint.PublicKey(), IsWritable: true},
			{PublicKey: solana.SysVarRentPubkey},
		}, initMint),
	}, payer, mint))

	m := mintState(t, c, mint.PublicKey())
	assert.True(t, m.IsInitialized)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.Equal(t, &authority, m.MintAuthority)
	assert.Nil(t, m.FreezeAuthority)

	initAccount := append([]byte{tokenInitializeAccount3}, owner[:]...)
	require.NoError(t, send(t, c, []solana.Instruction{
		system.NewCreateAccountInstruction(rent.MinimumBalance(fixtures.TokenAccountSize), fixtures.TokenAccountSize, fixtures.TokenProgramID, payer.PublicKey(), account.PublicKey()).Build(),
		solana.NewInstruction(fixtures.TokenProgramID, solana.AccountMetaSlice{
			{PublicKey: account.PublicKey(), IsWritable: true},
			{PublicKey: mint.PublicKey()},
		}, initAccount),
	}, payer, account))

	state := tokenState(t, c, account.PublicKey())
	assert.Equal(t, mint.PublicKey(), state.Mint)
	assert.Equal(t, owner, state.Owner)
	assert.Equal(t, fixtures.TokenAccountInitialized, state.State)

	t.Run("initialize twice", func(t *testing.T) {
		ix := solana.NewInstruction(fixtures.TokenProgramID, solana.AccountMetaSlice{
			{PublicKey: mint.PublicKey(), IsWritable: true},
		}, append([]byte{tokenInitializeMint2, 6}, append(authority.Bytes(), 0)...))
		assert.ErrorIs(t, send(t, c, []solana.Instruction{ix}, payer), ErrAccountAlreadyInitialized)
	})

	t.Run("not rent exempt", func(t *testing.T) {
		poorMint := newKey(t)
		err := send(t, c, []solana.Instruction{
			system.NewCreateAccountInstruction(1, fixtures.MintSize, fixtures.TokenProgramID, payer.PublicKey(), poorMint.PublicKey()).Build(),
			solana.NewInstruction(fixtures.TokenProgramID, solana.AccountMetaSlice{
				{PublicKey: poorMint.PublicKey(), IsWritable: true},
			}, append([]byte{tokenInitializeMint2, 6}, append(authority.Bytes(), 0)...)),
		}, payer, poorMint)
		assert.ErrorIs(t, err, ErrNotRentExempt)
	})
}

func TestToken_MintToAndTransfer(t *testing.T) {
	g := newTestGenesis()
	authority, alice, bob := newKey(t), newKey(t), newKey(t)
	mint := newKey(t).PublicKey()
	require.NoError(t, g.AddTokenMint(mint, authority.PublicKey().ToPointer(), 0, 9, nil))
	aliceATA, err := g.AddAssociatedTokenAccount(fixtures.TokenAccount{Mint: mint, Owner: alice.PublicKey()})
	require.NoError(t, err)
	bobATA, err := g.AddAssociatedTokenAccount(fixtures.TokenAccount{Mint: mint, Owner: bob.PublicKey()})
	require.NoError(t, err)
	c := startContext(t, g)
	payer := c.Payer()

	mintTo := solana.NewInstruction(fixtures.TokenProgramID, solana.AccountMetaSlice{
		{PublicKey: mint, IsWritable: true},
		{PublicKey: aliceATA, IsWritable: true},
		{PublicKey: authority.PublicKey(), IsSigner: true},
	}, u64Data(tokenMintTo, 1_000))
	require.NoError(t, send(t, c, []solana.Instruction{mintTo}, payer, authority))
	assert.Equal(t, uint64(1_000), mintState(t, c, mint).Supply)
	assert.Equal(t, uint64(1_000), tokenState(t, c, aliceATA).Amount)

	transfer := func(amount uint64, owner solana.PrivateKey) error {
		ix := solana.NewInstruction(fixtures.TokenProgramID, solana.AccountMetaSlice{
			{PublicKey: aliceATA, IsWritable: true},
			{PublicKey: bobATA, IsWritable: true},
			{PublicKey: owner.PublicKey(), IsSigner: true},
		}, u64Data(tokenTransfer, amount))
		return send(t, c, []solana.Instruction{ix}, payer, owner)
	}
	require.NoError(t, transfer(400, alice))
	assert.Equal(t, uint64(600), tokenState(t, c, aliceATA).Amount)
	assert.Equal(t, uint64(400), tokenState(t, c, bobATA).Amount)

	assert.ErrorIs(t, transfer(601, alice), ErrInsufficientFunds)
	assert.ErrorIs(t, transfer(1, bob), ErrIncorrectAuthority)

	t.Run("wrong mint authority", func(t *testing.T) {
		ix := solana.NewInstruction(fixtures.TokenProgramID, solana.AccountMetaSlice{
			{PublicKey: mint, IsWritable: true},
			{PublicKey: aliceATA, IsWritable: true},
			{PublicKey: alice.PublicKey(), IsSigner: true},
		}, u64Data(tokenMintTo, 1))
		assert.ErrorIs(t, send(t, c, []solana.Instruction{ix}, payer, alice), ErrIncorrectAuthority)
	})
}

func TestAssociatedTokenAccount_Create(t *testing.T) {
	g := newTestGenesis()
	mint := newKey(t).PublicKey()
	require.NoError(t, g.AddTokenMint(mint, nil, 0, 0, nil))
	c := startContext(t, g)
	payer, wallet := c.Payer(), newKey(t).PublicKey()

	ix, err := fixtures.CreateAssociatedTokenAccountInstruction(payer.PublicKey(), wallet, mint, fixtures.TokenProgramID)
	require.NoError(t, err)
	require.NoError(t, send(t, c, []solana.Instruction{ix}, payer))

	ata, err := fixtures.AssociatedTokenAddress(wallet, mint, fixtures.TokenProgramID)
	require.NoError(t, err)
	acc, err := c.Banks().GetAccount(context.Background(), ata)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TokenProgramID, acc.Owner)
	assert.Equal(t, c.Banks().Rent().MinimumBalance(fixtures.TokenAccountSize), acc.Lamports)
	state := tokenState(t, c, ata)
	assert.Equal(t, wallet, state.Owner)
	assert.Equal(t, mint, state.Mint)

	t.Run("create again fails", func(t *testing.T) {
		c.Banks().NewBlockhash()
		assert.ErrorIs(t, send(t, c, []solana.Instruction{ix}, payer), ErrAccountAlreadyInUse)
	})

	t.Run("idempotent create succeeds", func(t *testing.T) {
		idempotent := solana.NewInstruction(ix.ProgramID(), mustAccounts(t, ix), []byte{ataCreateIdempotent})
		assert.NoError(t, send(t, c, []solana.Instruction{idempotent}, payer))
	})

	t.Run("mint owned by another token program", func(t *testing.T) {
		bad, err := fixtures.CreateAssociatedTokenAccountInstruction(payer.PublicKey(), wallet, mint, fixtures.Token2022ProgramID)
		require.NoError(t, err)
		assert.ErrorIs(t, send(t, c, []solana.Instruction{bad}, payer), ErrInvalidAccountOwner)
	})
}

func mustAccounts(t *testing.T, ix solana.Instruction) solana.AccountMetaSlice {
	t.Helper()
	metas := ix.Accounts()
	out := make(solana.AccountMetaSlice, len(metas))
	for i, m := range metas {
		out[i] = m
	}
	return out
}

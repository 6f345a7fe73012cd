// Package fixtures builds account data for the SPL token program, Anchor and
// Borsh encoded accounts, and Pyth price feeds.
package fixtures

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	TokenProgramID                  = solana.TokenProgramID
	Token2022ProgramID              = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenAccountProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

const (
	MintSize         = 82
	TokenAccountSize = 165
)

// Packable is account state with a fixed binary layout.
type Packable interface {
	Pack() ([]byte, error)
}

// Mint is the SPL token mint state.
type Mint struct {
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey
}

func (m Mint) Pack() ([]byte, error) {
	w := newLayoutWriter(MintSize)
	w.optionKey(m.MintAuthority)
	w.u64(m.Supply)
	w.u8(m.Decimals)
	w.bool(m.IsInitialized)
	w.optionKey(m.FreezeAuthority)
	return w.bytes()
}

func UnpackMint(data []byte) (Mint, error) {
	if len(data) < MintSize {
		return Mint{}, fmt.Errorf("mint data is %d bytes, want %d", len(data), MintSize)
	}
	r := newLayoutReader(data)
	m := Mint{
		MintAuthority:   r.optionKey(),
		Supply:          r.u64(),
		Decimals:        r.u8(),
		IsInitialized:   r.bool(),
		FreezeAuthority: r.optionKey(),
	}
	return m, r.err
}

// TokenAccountState is the lifecycle state of a token account.
type TokenAccountState uint8

const (
	TokenAccountUninitialized TokenAccountState = iota
	TokenAccountInitialized
	TokenAccountFrozen
)

// TokenAccount is the SPL token account state.
type TokenAccount struct {
	Mint            solana.PublicKey
	Owner           solana.PublicKey
	Amount          uint64
	Delegate        *solana.PublicKey
	State           TokenAccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *solana.PublicKey
}

func (a TokenAccount) Pack() ([]byte, error) {
	w := newLayoutWriter(TokenAccountSize)
	w.key(a.Mint)
	w.key(a.Owner)
	w.u64(a.Amount)
	w.optionKey(a.Delegate)
	w.u8(uint8(a.State))
	w.optionU64(a.IsNative)
	w.u64(a.DelegatedAmount)
	w.optionKey(a.CloseAuthority)
	return w.bytes()
}

func UnpackTokenAccount(data []byte) (TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return TokenAccount{}, fmt.Errorf("token account data is %d bytes, want %d", len(data), TokenAccountSize)
	}
	r := newLayoutReader(data)
	a := TokenAccount{
		Mint:            r.key(),
		Owner:           r.key(),
		Amount:          r.u64(),
		Delegate:        r.optionKey(),
		State:           TokenAccountState(r.u8()),
		IsNative:        r.optionU64(),
		DelegatedAmount: r.u64(),
		CloseAuthority:  r.optionKey(),
	}
	return a, r.err
}

// AssociatedTokenAddress derives the associated token account of wallet for
// mint under tokenProgram.
func AssociatedTokenAddress(wallet, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], tokenProgram[:], mint[:]},
		AssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

// CreateAssociatedTokenAccountInstruction creates the associated token
// account of wallet for mint, funded by payer.
func CreateAssociatedTokenAccountInstruction(payer, wallet, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := AssociatedTokenAddress(wallet, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		AssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			{PublicKey: payer, IsWritable: true, IsSigner: true},
			{PublicKey: ata, IsWritable: true},
			{PublicKey: wallet},
			{PublicKey: mint},
			{PublicKey: solana.SystemProgramID},
			{PublicKey: tokenProgram},
		},
		[]byte{},
	), nil
}

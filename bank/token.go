package bank

import (
	"math/bits"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/halbornteam/solana-test-framework/fixtures"
)

// Token program instruction tags. Both the legacy program and Token-2022
// share them for the base account layouts.
const (
	tokenInitializeMint     uint8 = 0
	tokenInitializeAccount  uint8 = 1
	tokenTransfer           uint8 = 3
	tokenMintTo             uint8 = 7
	tokenInitializeAccount2 uint8 = 16
	tokenInitializeAccount3 uint8 = 18
	tokenInitializeMint2    uint8 = 20
)

func processToken(ic *InvokeContext) error {
	dec := bin.NewBinDecoder(ic.Data)
	tag, err := dec.ReadUint8()
	if err != nil {
		return ErrInvalidInstructionData
	}

	switch tag {
	case tokenInitializeMint, tokenInitializeMint2:
		decimals, err := dec.ReadUint8()
		if err != nil {
			return ErrInvalidInstructionData
		}
		authority, err := readKey(dec)
		if err != nil {
			return err
		}
		freeze, err := readInstructionOptionKey(dec)
		if err != nil {
			return err
		}
		return initializeMint(ic, decimals, authority, freeze)
	case tokenInitializeAccount:
		owner, err := ic.Key(2)
		if err != nil {
			return err
		}
		return initializeTokenAccount(ic, owner)
	case tokenInitializeAccount2, tokenInitializeAccount3:
		owner, err := readKey(dec)
		if err != nil {
			return err
		}
		return initializeTokenAccount(ic, owner)
	case tokenMintTo:
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return ErrInvalidInstructionData
		}
		return mintTo(ic, amount)
	case tokenTransfer:
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return ErrInvalidInstructionData
		}
		return transferTokens(ic, amount)
	default:
		return ErrInvalidInstructionData
	}
}

// Instruction data packs an optional key as a one byte flag followed by the
// key only when present.
func readInstructionOptionKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	flag, err := dec.ReadUint8()
	if err != nil {
		return nil, ErrInvalidInstructionData
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		return &key, nil
	default:
		return nil, ErrInvalidInstructionData
	}
}

// accounts: [mint (w), rent?]
func initializeMint(ic *InvokeContext, decimals uint8, authority solana.PublicKey, freeze *solana.PublicKey) error {
	acc, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	if acc.Owner != ic.ProgramID {
		return ErrInvalidAccountOwner
	}
	mint, err := fixtures.UnpackMint(acc.Data)
	if err != nil {
		return ErrInvalidAccountData
	}
	if mint.IsInitialized {
		return ErrAccountAlreadyInitialized
	}
	if !ic.Rent.IsExempt(acc.Lamports, uint64(len(acc.Data))) {
		return ErrNotRentExempt
	}
	return packInto(acc.Data, fixtures.Mint{
		MintAuthority:   &authority,
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: freeze,
	})
}

// accounts: [account (w), mint, ...]
func initializeTokenAccount(ic *InvokeContext, owner solana.PublicKey) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	acc, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	if acc.Owner != ic.ProgramID {
		return ErrInvalidAccountOwner
	}
	state, err := fixtures.UnpackTokenAccount(acc.Data)
	if err != nil {
		return ErrInvalidAccountData
	}
	if state.State != fixtures.TokenAccountUninitialized {
		return ErrAccountAlreadyInitialized
	}
	if !ic.Rent.IsExempt(acc.Lamports, uint64(len(acc.Data))) {
		return ErrNotRentExempt
	}
	if _, err := loadMint(ic, 1); err != nil {
		return err
	}
	return packInto(acc.Data, fixtures.TokenAccount{
		Mint:  ic.Accounts[1].Key,
		Owner: owner,
		State: fixtures.TokenAccountInitialized,
	})
}

// accounts: [mint (w), destination (w), authority (s)]
func mintTo(ic *InvokeContext, amount uint64) error {
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	mint, err := loadMint(ic, 0)
	if err != nil {
		return err
	}
	if mint.MintAuthority == nil {
		return ErrImmutable
	}
	if *mint.MintAuthority != ic.Accounts[2].Key {
		return ErrIncorrectAuthority
	}
	if err := ic.RequireSigner(2); err != nil {
		return err
	}
	dest, err := loadTokenAccount(ic, 1, ic.Accounts[0].Key)
	if err != nil {
		return err
	}

	supply, carry := bits.Add64(mint.Supply, amount, 0)
	if carry != 0 {
		return ErrArithmeticOverflow
	}
	mint.Supply = supply
	dest.Amount += amount

	mintAcc, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	destAcc, err := ic.Mutable(1)
	if err != nil {
		return err
	}
	if err := packInto(mintAcc.Data, mint); err != nil {
		return err
	}
	return packInto(destAcc.Data, dest)
}

// accounts: [source (w), destination (w), owner (s)]
func transferTokens(ic *InvokeContext, amount uint64) error {
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	src, err := loadTokenAccount(ic, 0, solana.PublicKey{})
	if err != nil {
		return err
	}
	dst, err := loadTokenAccount(ic, 1, src.Mint)
	if err != nil {
		return err
	}
	if src.Owner != ic.Accounts[2].Key {
		return ErrIncorrectAuthority
	}
	if err := ic.RequireSigner(2); err != nil {
		return err
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if ic.Accounts[0].Key == ic.Accounts[1].Key {
		return nil
	}
	src.Amount -= amount
	dst.Amount += amount

	srcAcc, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	dstAcc, err := ic.Mutable(1)
	if err != nil {
		return err
	}
	if err := packInto(srcAcc.Data, src); err != nil {
		return err
	}
	return packInto(dstAcc.Data, dst)
}

func loadMint(ic *InvokeContext, i int) (fixtures.Mint, error) {
	acc, err := ic.Account(i)
	if err != nil {
		return fixtures.Mint{}, err
	}
	if acc.Owner != ic.ProgramID {
		return fixtures.Mint{}, ErrInvalidAccountOwner
	}
	mint, err := fixtures.UnpackMint(acc.Data)
	if err != nil {
		return fixtures.Mint{}, ErrInvalidAccountData
	}
	if !mint.IsInitialized {
		return fixtures.Mint{}, ErrUninitializedAccount
	}
	return mint, nil
}

// loadTokenAccount reads an initialized, unfrozen token account. A non-zero
// mint must match the account's mint.
func loadTokenAccount(ic *InvokeContext, i int, mint solana.PublicKey) (fixtures.TokenAccount, error) {
	acc, err := ic.Account(i)
	if err != nil {
		return fixtures.TokenAccount{}, err
	}
	if acc.Owner != ic.ProgramID {
		return fixtures.TokenAccount{}, ErrInvalidAccountOwner
	}
	state, err := fixtures.UnpackTokenAccount(acc.Data)
	if err != nil {
		return fixtures.TokenAccount{}, ErrInvalidAccountData
	}
	switch state.State {
	case fixtures.TokenAccountUninitialized:
		return fixtures.TokenAccount{}, ErrUninitializedAccount
	case fixtures.TokenAccountFrozen:
		return fixtures.TokenAccount{}, ErrAccountFrozen
	}
	if !mint.IsZero() && state.Mint != mint {
		return fixtures.TokenAccount{}, ErrInvalidAccountData
	}
	return state, nil
}

func packInto(data []byte, p fixtures.Packable) error {
	b, err := p.Pack()
	if err != nil {
		return err
	}
	if len(b) > len(data) {
		return ErrAccountDataTooSmall
	}
	copy(data, b)
	return nil
}

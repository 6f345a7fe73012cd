package fixtures

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintLayout(t *testing.T) {
	authority := solana.NewWallet().PublicKey()

	tests := []struct {
		name string
		mint Mint
	}{
		{name: "with authorities", mint: Mint{MintAuthority: &authority, Supply: 1_000_000, Decimals: 6, IsInitialized: true, FreezeAuthority: &authority}},
		{name: "fixed supply", mint: Mint{Supply: 42, Decimals: 0, IsInitialized: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.mint.Pack()
			require.NoError(t, err)
			require.Len(t, data, MintSize)

			decoded, err := UnpackMint(data)
			require.NoError(t, err)
			assert.Equal(t, tt.mint, decoded)
		})
	}

	data, err := Mint{MintAuthority: &authority, Supply: 7, Decimals: 9, IsInitialized: true}.Pack()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, authority[:], data[4:36])
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[36:44]))
	assert.Equal(t, byte(9), data[44])
	assert.Equal(t, byte(1), data[45])
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[46:50]))

	_, err = UnpackMint(data[:MintSize-1])
	assert.Error(t, err)
}

func TestTokenAccountLayout(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	delegate := solana.NewWallet().PublicKey()
	rentReserve := uint64(2_039_280)

	account := TokenAccount{
		Mint:            mint,
		Owner:           owner,
		Amount:          500,
		Delegate:        &delegate,
		State:           TokenAccountInitialized,
		IsNative:        &rentReserve,
		DelegatedAmount: 20,
	}
	data, err := account.Pack()
	require.NoError(t, err)
	require.Len(t, data, TokenAccountSize)
	assert.Equal(t, mint[:], data[0:32])
	assert.Equal(t, owner[:], data[32:64])
	assert.Equal(t, byte(TokenAccountInitialized), data[108])

	decoded, err := UnpackTokenAccount(data)
	require.NoError(t, err)
	assert.Equal(t, account, decoded)
}

func TestAssociatedTokenAddress(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	legacy, err := AssociatedTokenAddress(wallet, mint, TokenProgramID)
	require.NoError(t, err)
	token2022, err := AssociatedTokenAddress(wallet, mint, Token2022ProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, legacy, token2022)

	expected, _, err := solana.FindProgramAddress([][]byte{wallet[:], TokenProgramID[:], mint[:]}, AssociatedTokenAccountProgramID)
	require.NoError(t, err)
	assert.Equal(t, expected, legacy)

	payer := solana.NewWallet().PublicKey()
	ix, err := CreateAssociatedTokenAccountInstruction(payer, wallet, mint, TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, AssociatedTokenAccountProgramID, ix.ProgramID())
	assert.Equal(t, legacy, ix.Accounts()[1].PublicKey)
	assert.Equal(t, TokenProgramID, ix.Accounts()[5].PublicKey)
}

type vault struct {
	Owner   solana.PublicKey
	Balance uint64
	Bump    uint8
}

func TestAnchorAccountData(t *testing.T) {
	sum := sha256.Sum256([]byte("account:Vault"))
	d := AnchorDiscriminator("Vault")
	assert.Equal(t, sum[:8], d[:])

	v := vault{Owner: solana.NewWallet().PublicKey(), Balance: 99, Bump: 254}
	data, err := AnchorAccountData("Vault", v)
	require.NoError(t, err)
	require.Len(t, data, DiscriminatorSize+32+8+1)

	decoded, err := DecodeAnchorAccount[vault]("Vault", data)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	_, err = DecodeAnchorAccount[vault]("Other", data)
	assert.ErrorContains(t, err, "discriminator")

	empty := EmptyAnchorAccountData("Vault", 41)
	assert.Len(t, empty, DiscriminatorSize+41)
	assert.Equal(t, d[:], empty[:DiscriminatorSize])
}

func TestBorshData(t *testing.T) {
	v := vault{Balance: 1, Bump: 2}
	data, err := BorshData(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[32:40]))

	decoded, err := DecodeBorsh[vault](data)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	_, err = DecodeBorsh[vault](data[:10])
	assert.Error(t, err)
}

func TestPriceAccount(t *testing.T) {
	info := PriceInfo{Price: 1500, Conf: 3, Status: PriceStatusTrading, PubSlot: 12}
	account := NewPriceAccount(info, 1_700_000_000)
	account.ValidSlot = 32
	account.Comp[31].Publisher = solana.NewWallet().PublicKey()
	account.Comp[31].Latest = info

	data, err := account.Pack()
	require.NoError(t, err)
	require.Len(t, data, PriceAccountSize)
	assert.Equal(t, uint32(PythMagic), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, int64(1500), int64(binary.LittleEndian.Uint64(data[208:216])))

	decoded, err := DecodePriceAccount(data)
	require.NoError(t, err)
	assert.Equal(t, account, decoded)
	assert.Equal(t, int64(100), decoded.PrevTimestamp)
	assert.Equal(t, int32(5), decoded.Expo)

	t.Run("rejects bad magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 0
		_, err := DecodePriceAccount(bad)
		assert.ErrorIs(t, err, ErrInvalidPriceAccount)
	})

	t.Run("rejects short data", func(t *testing.T) {
		_, err := DecodePriceAccount(data[:100])
		assert.ErrorIs(t, err, ErrInvalidPriceAccount)
	})
}

package fixtures

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// DiscriminatorSize is the length of the Anchor account type prefix.
const DiscriminatorSize = 8

// AnchorDiscriminator returns the prefix Anchor writes before the Borsh
// encoding of an account named name.
func AnchorDiscriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// AnchorAccountData encodes value as the Anchor account named name.
func AnchorAccountData(name string, value any) ([]byte, error) {
	body, err := BorshData(value)
	if err != nil {
		return nil, err
	}
	d := AnchorDiscriminator(name)
	return append(d[:], body...), nil
}

// EmptyAnchorAccountData is a discriminator followed by size zero bytes.
func EmptyAnchorAccountData(name string, size int) []byte {
	d := AnchorDiscriminator(name)
	return append(d[:], make([]byte, size)...)
}

// DecodeAnchorAccount checks the discriminator of data and Borsh-decodes the
// remainder into a T.
func DecodeAnchorAccount[T any](name string, data []byte) (T, error) {
	var out T
	d := AnchorDiscriminator(name)
	if len(data) < DiscriminatorSize || !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return out, fmt.Errorf("account discriminator does not match %q", name)
	}
	return DecodeBorsh[T](data[DiscriminatorSize:])
}

// BorshData encodes value with Borsh.
func BorshData(value any) ([]byte, error) {
	data, err := bin.MarshalBorsh(value)
	if err != nil {
		return nil, fmt.Errorf("borsh encode: %w", err)
	}
	return data, nil
}

// DecodeBorsh decodes data into a T.
func DecodeBorsh[T any](data []byte) (T, error) {
	var out T
	if err := bin.UnmarshalBorsh(&out, data); err != nil {
		return out, fmt.Errorf("borsh decode: %w", err)
	}
	return out, nil
}

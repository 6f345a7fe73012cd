package client

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/fixtures"
	"github.com/halbornteam/solana-test-framework/ledger"
)

// GetAccount returns the account at key, or an error wrapping
// ErrAccountNotFound when there is none.
func (c *Client) GetAccount(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	acc, err := c.backend.GetAccount(ctx, key)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeIO, "get_account", "failed to get account").
			WithContext("address", key.String())
	}
	if acc == nil {
		return nil, errors.NewIOError("get_account", "no account at address", ErrAccountNotFound).
			WithContext("address", key.String())
	}
	return acc, nil
}

// GetAccountData returns the data of the account at key.
func (c *Client) GetAccountData(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	acc, err := c.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	return acc.Data, nil
}

// GetAccountWithBorsh decodes the Borsh encoded account at key into a T.
func GetAccountWithBorsh[T any](ctx context.Context, c *Client, key solana.PublicKey) (T, error) {
	var zero T
	data, err := c.GetAccountData(ctx, key)
	if err != nil {
		return zero, err
	}
	out, err := fixtures.DecodeBorsh[T](data)
	if err != nil {
		return zero, errors.NewValidationError("get_account_with_borsh", err.Error()).
			WithContext("address", key.String())
	}
	return out, nil
}

// GetAccountWithAnchor decodes the Anchor account type name at key into a T.
func GetAccountWithAnchor[T any](ctx context.Context, c *Client, key solana.PublicKey, name string) (T, error) {
	var zero T
	data, err := c.GetAccountData(ctx, key)
	if err != nil {
		return zero, err
	}
	out, err := fixtures.DecodeAnchorAccount[T](name, data)
	if err != nil {
		return zero, errors.NewValidationError("get_account_with_anchor", err.Error()).
			WithContext("address", key.String()).
			WithContext("account_type", name)
	}
	return out, nil
}

// GetPythPriceAccount decodes the Pyth price feed at key.
func (c *Client) GetPythPriceAccount(ctx context.Context, key solana.PublicKey) (fixtures.PriceAccount, error) {
	data, err := c.GetAccountData(ctx, key)
	if err != nil {
		return fixtures.PriceAccount{}, err
	}
	price, err := fixtures.DecodePriceAccount(data)
	if err != nil {
		return fixtures.PriceAccount{}, errors.NewError(errors.ErrCodeValidation, "get_pyth_price_account", "failed to decode price account", err).
			WithContext("address", key.String())
	}
	return price, nil
}

// GetMint decodes the token mint at key.
func (c *Client) GetMint(ctx context.Context, key solana.PublicKey) (fixtures.Mint, error) {
	data, err := c.GetAccountData(ctx, key)
	if err != nil {
		return fixtures.Mint{}, err
	}
	mint, err := fixtures.UnpackMint(data)
	if err != nil {
		return fixtures.Mint{}, errors.NewError(errors.ErrCodeValidation, "get_mint", "failed to decode mint", err).
			WithContext("address", key.String())
	}
	return mint, nil
}

// GetTokenAccount decodes the token account at key.
func (c *Client) GetTokenAccount(ctx context.Context, key solana.PublicKey) (fixtures.TokenAccount, error) {
	data, err := c.GetAccountData(ctx, key)
	if err != nil {
		return fixtures.TokenAccount{}, err
	}
	account, err := fixtures.UnpackTokenAccount(data)
	if err != nil {
		return fixtures.TokenAccount{}, errors.NewError(errors.ErrCodeValidation, "get_token_account", "failed to decode token account", err).
			WithContext("address", key.String())
	}
	return account, nil
}

// Package client provides helpers for building, submitting and reading back
// transactions against any environment that implements Backend: the
// in-process bank or a local validator.
package client

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"

	"github.com/halbornteam/solana-test-framework/deploy"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/txbuilder"
)

// ErrAccountNotFound is returned by readers when the address holds no account.
var ErrAccountNotFound = errors.New("account not found")

// Backend is the capability set every environment provides.
type Backend = deploy.Backend

// Client implements the transaction helpers once over a Backend.
type Client struct {
	backend  Backend
	logger   zerolog.Logger
	deployer *deploy.Deployer
}

// New returns a Client submitting to backend. opts configure the deployer
// behind DeployProgram and DeployUpgradeableProgram.
func New(backend Backend, logger zerolog.Logger, opts ...deploy.Option) *Client {
	logger = logger.With().Str("component", "client").Logger()
	opts = append([]deploy.Option{deploy.WithLogger(logger)}, opts...)
	return &Client{
		backend:  backend,
		logger:   logger,
		deployer: deploy.NewDeployer(backend, opts...),
	}
}

// Backend returns the environment the client submits to.
func (c *Client) Backend() Backend {
	return c.backend
}

// TransactionFromInstructions builds a transaction paid by payer against the
// latest blockhash and signs it with payer and signers.
func (c *Client) TransactionFromInstructions(
	ctx context.Context,
	ixs []solana.Instruction,
	payer solana.PrivateKey,
	signers ...solana.PrivateKey,
) (*solana.Transaction, error) {
	all := append([]solana.PrivateKey{payer}, signers...)
	return txbuilder.FromInstructions(ctx, c.backend, ixs, payer.PublicKey(), all)
}

// ProcessInstructions builds and submits ixs in a single transaction.
func (c *Client) ProcessInstructions(
	ctx context.Context,
	ixs []solana.Instruction,
	payer solana.PrivateKey,
	signers ...solana.PrivateKey,
) error {
	tx, err := c.TransactionFromInstructions(ctx, ixs, payer, signers...)
	if err != nil {
		return err
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return errors.WrapError(err, errors.ErrCodeIO, "process_instructions", "transaction submission failed")
	}
	c.logger.Debug().
		Str("signature", tx.Signatures[0].String()).
		Int("instructions", len(ixs)).
		Msg("transaction processed")
	return nil
}

// CreateAccount creates to with space bytes owned by owner, funded by from.
func (c *Client) CreateAccount(
	ctx context.Context,
	from, to solana.PrivateKey,
	lamports, space uint64,
	owner solana.PublicKey,
) error {
	ix := system.NewCreateAccountInstruction(lamports, space, owner, from.PublicKey(), to.PublicKey()).Build()
	return c.ProcessInstructions(ctx, []solana.Instruction{ix}, from, to)
}

// MinimumBalance returns the rent-exempt balance for dataLen bytes, asking
// the backend when it knows its own rent.
func (c *Client) MinimumBalance(ctx context.Context, dataLen uint64) (uint64, error) {
	return deploy.MinimumBalance(ctx, c.backend, dataLen)
}

// DeployProgram deploys the image at path through the BPF loader v2.
func (c *Client) DeployProgram(ctx context.Context, path string, program, payer solana.PrivateKey) error {
	return c.deployer.DeployProgram(ctx, path, program, payer)
}

// DeployUpgradeableProgram deploys or upgrades the image at path through the
// upgradeable loader.
func (c *Client) DeployUpgradeableProgram(
	ctx context.Context,
	path string,
	buffer, bufferAuthority, program, payer solana.PrivateKey,
) error {
	return c.deployer.DeployUpgradeableProgram(ctx, path, buffer, bufferAuthority, program, payer)
}

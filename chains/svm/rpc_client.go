// Package svm connects the framework to a running Solana validator over
// JSON-RPC, typically solana-test-validator.
package svm

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/halbornteam/solana-test-framework/client"
	"github.com/halbornteam/solana-test-framework/config"
	"github.com/halbornteam/solana-test-framework/deploy"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/ledger"
)

var (
	_ client.Backend             = (*RPCClient)(nil)
	_ deploy.ConcurrentSubmitter = (*RPCClient)(nil)
	_ deploy.RentProvider        = (*RPCClient)(nil)
)

// Options tune submission and confirmation.
type Options struct {
	Commitment          rpc.CommitmentType
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	MaxConcurrentWrites int
}

// OptionsFromConfig reads the submission settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Commitment:          rpc.CommitmentType(cfg.Commitment),
		ConfirmTimeout:      cfg.ConfirmTimeout(),
		ConfirmPollInterval: cfg.ConfirmPollInterval(),
		MaxConcurrentWrites: cfg.MaxConcurrentWrites,
	}
}

func (o Options) withDefaults() Options {
	if o.Commitment == "" {
		o.Commitment = rpc.CommitmentConfirmed
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 60 * time.Second
	}
	if o.ConfirmPollInterval <= 0 {
		o.ConfirmPollInterval = 500 * time.Millisecond
	}
	if o.MaxConcurrentWrites <= 0 {
		o.MaxConcurrentWrites = 1
	}
	return o
}

// RPCClient is a Backend over one or more validator endpoints.
type RPCClient struct {
	clients []*rpc.Client
	index   uint64
	mu      sync.RWMutex
	logger  zerolog.Logger
	opts    Options
	clock   clockwork.Clock
}

// NewRPCClient connects to every healthy endpoint in rpcURLs that serves the
// expected genesis hash, when one is given.
func NewRPCClient(ctx context.Context, rpcURLs []string, expectedGenesisHash string, opts Options, logger zerolog.Logger) (*RPCClient, error) {
	if len(rpcURLs) == 0 {
		return nil, errors.NewConfigError("connect", "no RPC URLs provided")
	}

	log := logger.With().Str("component", "svm_rpc_client").Logger()
	checker := NewHealthChecker(expectedGenesisHash)
	clients := make([]*rpc.Client, 0, len(rpcURLs))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, url := range rpcURLs {
		c := rpc.New(url)
		if err := checker.CheckHealth(ctx, c); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("endpoint failed health check, skipping")
			continue
		}
		clients = append(clients, c)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, errors.NewError(errors.ErrCodeNetwork, "connect", "failed to connect to any valid RPC endpoints", nil).
			WithContext("urls", rpcURLs)
	}

	return &RPCClient{
		clients: clients,
		logger:  log,
		opts:    opts.withDefaults(),
		clock:   clockwork.NewRealClock(),
	}, nil
}

// executeWithFailover runs fn against the endpoints in round-robin order
// until one succeeds. Protocol and blockhash rejections are final.
func (rc *RPCClient) executeWithFailover(ctx context.Context, operation string, fn func(*rpc.Client) error) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()

	if len(clients) == 0 {
		return errors.NewRPCError(operation, "no RPC clients available", nil)
	}

	var lastErr error
	for attempt := range len(clients) {
		if err := ctx.Err(); err != nil {
			return err
		}

		index := atomic.AddUint64(&rc.index, 1) - 1
		err := fn(clients[index%uint64(len(clients))])
		if err == nil {
			return nil
		}
		if errors.IsCode(err, errors.ErrCodeProtocol) || errors.IsCode(err, errors.ErrCodeBlockhash) {
			return err
		}
		lastErr = err

		rc.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return errors.NewRPCError(operation, "all endpoints failed", lastErr).
		WithContext("endpoints", len(clients))
}

// IsHealthy reports whether any endpoint answers a slot query.
func (rc *RPCClient) IsHealthy(ctx context.Context) bool {
	rc.mu.RLock()
	hasClients := len(rc.clients) > 0
	rc.mu.RUnlock()

	if !hasClients {
		return false
	}

	_, err := rc.GetLatestSlot(ctx)
	return err == nil
}

// GetLatestSlot returns the latest slot at the configured commitment.
func (rc *RPCClient) GetLatestSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := rc.executeWithFailover(ctx, "get_slot", func(c *rpc.Client) error {
		var innerErr error
		slot, innerErr = c.GetSlot(ctx, rc.opts.Commitment)
		return innerErr
	})
	return slot, err
}

// LatestBlockhash gets a recent blockhash for transaction building.
func (rc *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var blockhash solana.Hash
	err := rc.executeWithFailover(ctx, "get_latest_blockhash", func(c *rpc.Client) error {
		resp, innerErr := c.GetLatestBlockhash(ctx, rc.opts.Commitment)
		if innerErr != nil {
			return innerErr
		}
		blockhash = resp.Value.Blockhash
		return nil
	})
	return blockhash, err
}

// SendTransaction submits tx with preflight and waits until it reaches the
// configured commitment.
func (rc *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) error {
	if len(tx.Signatures) == 0 {
		return errors.NewValidationError("send_transaction", "transaction has no signatures")
	}
	sig := tx.Signatures[0]

	err := rc.executeWithFailover(ctx, "send_transaction", func(c *rpc.Client) error {
		_, innerErr := c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rc.opts.Commitment,
		})
		return classifyRejection("send_transaction", innerErr)
	})
	if err != nil {
		return err
	}
	return rc.confirm(ctx, "send_transaction", sig)
}

// classifyRejection separates rejections of the request itself from
// transport failures, which are worth another endpoint.
func classifyRejection(op string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc.RPCError
	if !stderrors.As(err, &rpcErr) {
		return err
	}
	if errors.IsBlockhashExpired(err) {
		return errors.NewBlockhashError(op, "request rejected", err)
	}
	return errors.NewProtocolError(op, "request rejected", err).
		WithContext("rpc_code", rpcErr.Code)
}

// confirm polls the signature status until it reaches the configured
// commitment, reports an error, or the confirmation timeout passes.
func (rc *RPCClient) confirm(ctx context.Context, op string, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, rc.opts.ConfirmTimeout)
	defer cancel()

	ticker := rc.clock.NewTicker(rc.opts.ConfirmPollInterval)
	defer ticker.Stop()

	want := commitmentRank(rc.opts.Commitment)
	for {
		var status *rpc.SignatureStatusesResult
		err := rc.executeWithFailover(ctx, "get_signature_statuses", func(c *rpc.Client) error {
			resp, innerErr := c.GetSignatureStatuses(ctx, false, sig)
			if innerErr != nil {
				return innerErr
			}
			if len(resp.Value) > 0 {
				status = resp.Value[0]
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			return err
		}

		if status != nil {
			if status.Err != nil {
				return errors.NewProtocolError(op, "transaction failed", nil).
					WithContext("signature", sig.String()).
					WithContext("transaction_error", status.Err)
			}
			if confirmationRank(status.ConfirmationStatus) >= want {
				rc.logger.Debug().
					Str("signature", sig.String()).
					Uint64("slot", status.Slot).
					Str("status", string(status.ConfirmationStatus)).
					Msg("transaction confirmed")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errors.NewTimeoutError(op, "transaction not confirmed before deadline").
				WithContext("signature", sig.String()).
				WithContext("commitment", string(rc.opts.Commitment))
		case <-ticker.Chan():
		}
	}
}

func commitmentRank(c rpc.CommitmentType) int {
	switch c {
	case rpc.CommitmentFinalized:
		return 2
	case rpc.CommitmentConfirmed:
		return 1
	default:
		return 0
	}
}

func confirmationRank(s rpc.ConfirmationStatusType) int {
	switch s {
	case rpc.ConfirmationStatusFinalized:
		return 2
	case rpc.ConfirmationStatusConfirmed:
		return 1
	default:
		return 0
	}
}

// GetAccount returns nil, nil when the account does not exist.
func (rc *RPCClient) GetAccount(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	var acc *ledger.Account
	err := rc.executeWithFailover(ctx, "get_account", func(c *rpc.Client) error {
		resp, innerErr := c.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rc.opts.Commitment,
		})
		if stderrors.Is(innerErr, rpc.ErrNotFound) {
			acc = nil
			return nil
		}
		if innerErr != nil {
			return innerErr
		}
		acc = toLedgerAccount(resp.Value)
		return nil
	})
	return acc, err
}

func toLedgerAccount(a *rpc.Account) *ledger.Account {
	if a == nil {
		return nil
	}
	acc := &ledger.Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
	}
	if a.Data != nil {
		acc.Data = a.Data.GetBinary()
	}
	if a.RentEpoch != nil && a.RentEpoch.IsUint64() {
		acc.RentEpoch = a.RentEpoch.Uint64()
	}
	return acc
}

// MaxConcurrentSubmissions bounds the in-flight buffer writes of a deployment.
func (rc *RPCClient) MaxConcurrentSubmissions() int {
	return rc.opts.MaxConcurrentWrites
}

// MinimumBalanceForRentExemption asks the validator for its rent-exempt minimum.
func (rc *RPCClient) MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	var lamports uint64
	err := rc.executeWithFailover(ctx, "get_minimum_balance_for_rent_exemption", func(c *rpc.Client) error {
		var innerErr error
		lamports, innerErr = c.GetMinimumBalanceForRentExemption(ctx, dataLen, rc.opts.Commitment)
		return innerErr
	})
	return lamports, err
}

// RequestAirdrop funds key with lamports and waits for the airdrop to confirm.
func (rc *RPCClient) RequestAirdrop(ctx context.Context, key solana.PublicKey, lamports uint64) (solana.Signature, error) {
	var sig solana.Signature
	err := rc.executeWithFailover(ctx, "request_airdrop", func(c *rpc.Client) error {
		var innerErr error
		sig, innerErr = c.RequestAirdrop(ctx, key, lamports, rc.opts.Commitment)
		return classifyRejection("request_airdrop", innerErr)
	})
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, rc.confirm(ctx, "request_airdrop", sig)
}

// Close drops every endpoint.
func (rc *RPCClient) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	// Solana RPC clients don't have explicit Close, but we clear the slice
	rc.clients = nil
}

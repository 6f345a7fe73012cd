// Package bank is an in-process ledger that executes the system, loader,
// token and associated token account programs natively, plus any program
// registered with a ProcessFunc. It stands in for a validator in tests.
package bank

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/halbornteam/solana-test-framework/deploy"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/ledger"
	"github.com/halbornteam/solana-test-framework/sysvar"
)

var (
	_ deploy.Backend      = (*Bank)(nil)
	_ deploy.RentProvider = (*Bank)(nil)
)

// SysvarOwnerID owns the clock and rent sysvar accounts.
var SysvarOwnerID = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")

// Bank holds the accounts, clock and recent blockhashes of a simulated
// ledger. Transactions are processed one at a time.
type Bank struct {
	mu          sync.Mutex
	config      GenesisConfig
	accounts    map[solana.PublicKey]*ledger.Account
	programs    map[solana.PublicKey]ProcessFunc
	clock       sysvar.Clock
	blockhashes []solana.Hash
	processed   map[solana.Signature]struct{}
	hashSeq     uint64
	txCount     uint64
	logger      zerolog.Logger
}

func newBank(
	cfg GenesisConfig,
	accounts map[solana.PublicKey]*ledger.Account,
	programs map[solana.PublicKey]ProcessFunc,
	clock sysvar.Clock,
	logger zerolog.Logger,
) *Bank {
	b := &Bank{
		config:    cfg,
		accounts:  accounts,
		programs:  programs,
		clock:     clock,
		processed: make(map[solana.Signature]struct{}),
		logger:    logger.With().Str("component", "bank").Logger(),
	}
	b.registerBlockhash()
	b.syncSysvars()
	return b
}

// LatestBlockhash returns the newest blockhash the bank accepts.
func (b *Bank) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if err := ctx.Err(); err != nil {
		return solana.Hash{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockhashes[len(b.blockhashes)-1], nil
}

// NewBlockhash registers and returns a fresh blockhash without advancing the
// slot. The oldest hash is evicted once the queue is full.
func (b *Bank) NewBlockhash() solana.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registerBlockhash()
}

// SendTransaction processes tx and maps failures onto framework error codes.
func (b *Bank) SendTransaction(ctx context.Context, tx *solana.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.ProcessTransaction(tx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBlockhashNotFound):
		return errors.NewBlockhashError("process_transaction", "transaction rejected", err)
	default:
		return errors.NewProtocolError("process_transaction", "transaction rejected", err)
	}
}

// ProcessTransaction verifies, charges and executes tx. Instruction effects
// are committed together or not at all; the fee is charged either way once
// the transaction passes verification.
func (b *Bank) ProcessTransaction(tx *solana.Transaction) error {
	if tx == nil || len(tx.Signatures) == 0 {
		return ErrSignatureFailure
	}
	msg := tx.Message

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isRecentBlockhash(msg.RecentBlockhash) {
		return ErrBlockhashNotFound
	}
	sig := tx.Signatures[0]
	if _, ok := b.processed[sig]; ok {
		return ErrAlreadyProcessed
	}
	if len(msg.AddressTableLookups) > 0 {
		return ErrAddressLookupTables
	}
	if len(msg.AccountKeys) == 0 || int(msg.Header.NumRequiredSignatures) != len(tx.Signatures) {
		return ErrSignatureFailure
	}
	if err := tx.VerifySignatures(); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureFailure, err)
	}

	payer := b.accounts[msg.AccountKeys[0]]
	if payer == nil {
		return ErrAccountNotFound
	}
	fee := uint64(len(tx.Signatures)) * b.config.FeeLamportsPerSignature
	if payer.Lamports < fee {
		return ErrInsufficientFundsForFee
	}
	payer.Lamports -= fee
	b.processed[sig] = struct{}{}
	b.txCount++

	if err := b.execute(&msg); err != nil {
		b.logger.Debug().Err(err).Str("signature", sig.String()).Msg("transaction failed")
		return err
	}
	b.logger.Trace().
		Str("signature", sig.String()).
		Int("instructions", len(msg.Instructions)).
		Msg("transaction processed")
	return nil
}

func (b *Bank) execute(msg *solana.Message) error {
	s := newScratch(b.accounts)
	for i, cix := range msg.Instructions {
		if err := b.invoke(s, msg, cix); err != nil {
			return &TransactionError{Index: i, Err: err}
		}
	}
	for key, acc := range s.accounts {
		if acc.IsEmpty() {
			delete(b.accounts, key)
			continue
		}
		b.accounts[key] = acc
	}
	return nil
}

func (b *Bank) invoke(s *scratch, msg *solana.Message, cix solana.CompiledInstruction) error {
	programID, err := msg.ResolveProgramIDIndex(cix.ProgramIDIndex)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	process, ok := b.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProgram, programID)
	}

	metas := make([]AccountMeta, len(cix.Accounts))
	for j, idx := range cix.Accounts {
		if int(idx) >= len(msg.AccountKeys) {
			return ErrNotEnoughAccountKeys
		}
		metas[j] = AccountMeta{
			Key:        msg.AccountKeys[idx],
			IsSigner:   int(idx) < int(msg.Header.NumRequiredSignatures),
			IsWritable: isWritableIndex(msg, int(idx)),
		}
	}

	ic := &InvokeContext{
		ProgramID: programID,
		Accounts:  metas,
		Data:      []byte(cix.Data),
		Clock:     b.clock,
		Rent:      b.config.Rent,
		scratch:   s,
	}
	readonly := s.snapshotReadonly(metas)
	before := s.lamports(metas)
	if err := process(ic); err != nil {
		return err
	}
	if err := s.verifyReadonly(readonly); err != nil {
		return err
	}
	if s.lamports(metas) != before {
		return ErrUnbalancedInstruction
	}
	return nil
}

func isWritableIndex(msg *solana.Message, idx int) bool {
	h := msg.Header
	signed := int(h.NumRequiredSignatures)
	if idx < signed {
		return idx < signed-int(h.NumReadonlySignedAccounts)
	}
	return idx < len(msg.AccountKeys)-int(h.NumReadonlyUnsignedAccounts)
}

// GetAccount returns a copy of the account at key, or nil if it does not exist.
func (b *Bank) GetAccount(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[key].Clone(), nil
}

// GetBalance returns the lamports held by key, zero when it does not exist.
func (b *Bank) GetBalance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	acc, err := b.GetAccount(ctx, key)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// MinimumBalanceForRentExemption applies the bank's rent parameters.
func (b *Bank) MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.config.Rent.MinimumBalance(dataLen), nil
}

// SetAccount overwrites or, for a nil or empty account, removes key.
func (b *Bank) SetAccount(key solana.PublicKey, acc *ledger.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if acc.IsEmpty() {
		delete(b.accounts, key)
		return
	}
	b.accounts[key] = acc.Clone()
}

// Accounts returns a copy of every account except the sysvars.
func (b *Bank) Accounts() map[solana.PublicKey]*ledger.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[solana.PublicKey]*ledger.Account, len(b.accounts))
	for key, acc := range b.accounts {
		if acc.Owner == SysvarOwnerID {
			continue
		}
		out[key] = acc.Clone()
	}
	return out
}

func (b *Bank) Clock() sysvar.Clock {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock
}

func (b *Bank) Rent() sysvar.Rent {
	return b.config.Rent
}

// TransactionCount is the number of transactions that were charged a fee.
func (b *Bank) TransactionCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txCount
}

// SetClock overwrites the clock sysvar as is.
func (b *Bank) SetClock(clock sysvar.Clock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = clock
	b.syncSysvars()
}

// WarpToSlot jumps to slot, which must be after the current slot. The clock
// timestamp is left unchanged.
func (b *Bank) WarpToSlot(slot uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot <= b.clock.Slot {
		return fmt.Errorf("%w: slot %d, current %d", ErrInvalidWarpSlot, slot, b.clock.Slot)
	}
	b.advanceSlot(slot)
	b.syncSysvars()
	return nil
}

// WarpClock replaces the timestamp and slot in one step. Neither may move
// backwards.
func (b *Bank) WarpClock(clock sysvar.Clock) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.clock
	if clock.Slot < cur.Slot || clock.UnixTimestamp < cur.UnixTimestamp {
		return fmt.Errorf("%w: slot %d at %d, current slot %d at %d",
			ErrInvalidWarpSlot, clock.Slot, clock.UnixTimestamp, cur.Slot, cur.UnixTimestamp)
	}
	b.clock.UnixTimestamp = clock.UnixTimestamp
	if clock.Slot > cur.Slot {
		b.advanceSlot(clock.Slot)
	}
	b.syncSysvars()
	return nil
}

func (b *Bank) advanceSlot(slot uint64) {
	b.clock.Slot = slot
	if epoch := slot / b.config.SlotsPerEpoch; epoch != b.clock.Epoch {
		b.clock.Epoch = epoch
		b.clock.LeaderScheduleEpoch = epoch + 1
		b.clock.EpochStartTimestamp = b.clock.UnixTimestamp
	}
	b.registerBlockhash()
}

func (b *Bank) isRecentBlockhash(hash solana.Hash) bool {
	for _, h := range b.blockhashes {
		if h == hash {
			return true
		}
	}
	return false
}

func (b *Bank) registerBlockhash() solana.Hash {
	var prev solana.Hash
	if n := len(b.blockhashes); n > 0 {
		prev = b.blockhashes[n-1]
	}
	b.hashSeq++
	hash := solana.Hash(sha256.Sum256(fmt.Appendf(prev[:], "%d/%d", b.clock.Slot, b.hashSeq)))
	b.blockhashes = append(b.blockhashes, hash)
	if len(b.blockhashes) > maxRecentBlockhashes {
		b.blockhashes = b.blockhashes[1:]
	}
	return hash
}

func (b *Bank) syncSysvars() {
	rent := b.config.Rent
	b.accounts[sysvar.ClockID] = &ledger.Account{
		Lamports: rent.MinimumBalance(sysvar.ClockSize),
		Data:     b.clock.Bytes(),
		Owner:    SysvarOwnerID,
	}
	b.accounts[sysvar.RentID] = &ledger.Account{
		Lamports: rent.MinimumBalance(sysvar.RentSize),
		Data:     rent.Bytes(),
		Owner:    SysvarOwnerID,
	}
}

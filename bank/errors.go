package bank

import (
	"fmt"

	"github.com/halbornteam/solana-test-framework/errors"
)

// Transaction-level failures. A transaction failing one of these is rejected
// before any instruction runs and charges no fee.
var (
	ErrBlockhashNotFound       = errors.New("blockhash not found")
	ErrAlreadyProcessed        = errors.New("transaction already processed")
	ErrSignatureFailure        = errors.New("transaction signature verification failure")
	ErrAccountNotFound         = errors.New("fee payer account not found")
	ErrInsufficientFundsForFee = errors.New("insufficient funds for fee")
	ErrInvalidWarpSlot         = errors.New("warp slot not in the future")
	ErrAddressLookupTables     = errors.New("address lookup tables are not supported")
)

// Instruction-level failures, reported inside a *TransactionError.
var (
	ErrUnsupportedProgram        = errors.New("unsupported program id")
	ErrInvalidInstructionData    = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys      = errors.New("insufficient account keys for instruction")
	ErrMissingRequiredSignature  = errors.New("missing required signature for instruction")
	ErrReadonlyDataModified      = errors.New("instruction modified data of a read-only account")
	ErrExecutableModified        = errors.New("instruction changed executable account's data")
	ErrAccountAlreadyInUse       = errors.New("account already in use")
	ErrAccountAlreadyInitialized = errors.New("account already initialized")
	ErrUninitializedAccount      = errors.New("attempt to operate on an account that was not yet initialized")
	ErrInsufficientFunds         = errors.New("insufficient funds for instruction")
	ErrInvalidAccountData        = errors.New("invalid account data for instruction")
	ErrInvalidAccountOwner       = errors.New("invalid account owner")
	ErrAccountDataTooSmall       = errors.New("account data too small for instruction")
	ErrIncorrectAuthority        = errors.New("incorrect authority provided")
	ErrImmutable                 = errors.New("account is immutable")
	ErrInvalidArgument           = errors.New("invalid program argument")
	ErrIncorrectProgramID        = errors.New("incorrect program id for instruction")
	ErrInvalidSeeds              = errors.New("provided seeds do not result in a valid address")
	ErrNotRentExempt             = errors.New("account is not rent exempt")
	ErrAccountFrozen             = errors.New("account is frozen")
	ErrArithmeticOverflow        = errors.New("arithmetic overflow")
	ErrUnbalancedInstruction     = errors.New("sum of account balances before and after instruction do not match")
)

// TransactionError reports the instruction that aborted a transaction.
type TransactionError struct {
	Index int
	Err   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("error processing instruction %d: %v", e.Index, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

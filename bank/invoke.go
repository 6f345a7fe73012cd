package bank

import (
	"bytes"

	"github.com/gagliardetto/solana-go"

	"github.com/halbornteam/solana-test-framework/ledger"
	"github.com/halbornteam/solana-test-framework/sysvar"
)

// ProcessFunc executes one instruction addressed to a registered program.
// It may only mutate accounts obtained through InvokeContext.Mutable.
type ProcessFunc func(ic *InvokeContext) error

// AccountMeta is an instruction account with the privileges the
// transaction granted it.
type AccountMeta struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// InvokeContext is the view of the ledger an instruction executes against.
// Mutations land in a transaction-scoped scratch set that is committed only
// when every instruction succeeds.
type InvokeContext struct {
	ProgramID solana.PublicKey
	Accounts  []AccountMeta
	Data      []byte
	Clock     sysvar.Clock
	Rent      sysvar.Rent

	scratch *scratch
}

// Key returns the address of instruction account i.
func (ic *InvokeContext) Key(i int) (solana.PublicKey, error) {
	if i < 0 || i >= len(ic.Accounts) {
		return solana.PublicKey{}, ErrNotEnoughAccountKeys
	}
	return ic.Accounts[i].Key, nil
}

// RequireAccounts fails unless the instruction carries at least n accounts.
func (ic *InvokeContext) RequireAccounts(n int) error {
	if len(ic.Accounts) < n {
		return ErrNotEnoughAccountKeys
	}
	return nil
}

// RequireSigner fails unless instruction account i signed the transaction.
func (ic *InvokeContext) RequireSigner(i int) error {
	if i < 0 || i >= len(ic.Accounts) {
		return ErrNotEnoughAccountKeys
	}
	if !ic.Accounts[i].IsSigner {
		return ErrMissingRequiredSignature
	}
	return nil
}

// Account returns the current state of instruction account i. Nonexistent
// accounts read as empty system accounts. The result must not be modified.
func (ic *InvokeContext) Account(i int) (*ledger.Account, error) {
	key, err := ic.Key(i)
	if err != nil {
		return nil, err
	}
	return ic.scratch.load(key), nil
}

// Mutable returns instruction account i for modification.
func (ic *InvokeContext) Mutable(i int) (*ledger.Account, error) {
	if err := ic.RequireAccounts(i + 1); err != nil {
		return nil, err
	}
	if !ic.Accounts[i].IsWritable {
		return nil, ErrReadonlyDataModified
	}
	acc := ic.scratch.load(ic.Accounts[i].Key)
	if acc.Executable && acc.Owner != ic.ProgramID {
		return nil, ErrExecutableModified
	}
	return acc, nil
}

// Transfer moves lamports between two writable instruction accounts.
func (ic *InvokeContext) Transfer(from, to int, lamports uint64) error {
	src, err := ic.Mutable(from)
	if err != nil {
		return err
	}
	dst, err := ic.Mutable(to)
	if err != nil {
		return err
	}
	if src.Lamports < lamports {
		return ErrInsufficientFunds
	}
	src.Lamports -= lamports
	dst.Lamports += lamports
	return nil
}

// scratch holds copies of every account a transaction touched.
type scratch struct {
	base     map[solana.PublicKey]*ledger.Account
	accounts map[solana.PublicKey]*ledger.Account
}

func newScratch(base map[solana.PublicKey]*ledger.Account) *scratch {
	return &scratch{base: base, accounts: make(map[solana.PublicKey]*ledger.Account)}
}

func (s *scratch) load(key solana.PublicKey) *ledger.Account {
	if acc, ok := s.accounts[key]; ok {
		return acc
	}
	acc := s.base[key].Clone()
	if acc == nil {
		acc = &ledger.Account{Owner: solana.SystemProgramID}
	}
	s.accounts[key] = acc
	return acc
}

// snapshotReadonly records the read-only accounts of an instruction so a
// processor writing through Account can be caught afterwards.
func (s *scratch) snapshotReadonly(metas []AccountMeta) map[solana.PublicKey]*ledger.Account {
	out := make(map[solana.PublicKey]*ledger.Account)
	for _, m := range metas {
		if !m.IsWritable {
			out[m.Key] = s.load(m.Key).Clone()
		}
	}
	return out
}

func (s *scratch) verifyReadonly(before map[solana.PublicKey]*ledger.Account) error {
	for key, prev := range before {
		cur := s.load(key)
		if cur.Lamports != prev.Lamports || cur.Owner != prev.Owner ||
			cur.Executable != prev.Executable || !bytes.Equal(cur.Data, prev.Data) {
			return ErrReadonlyDataModified
		}
	}
	return nil
}

func (s *scratch) lamports(metas []AccountMeta) uint64 {
	seen := make(map[solana.PublicKey]struct{}, len(metas))
	var total uint64
	for _, m := range metas {
		if _, ok := seen[m.Key]; ok {
			continue
		}
		seen[m.Key] = struct{}{}
		total += s.load(m.Key).Lamports
	}
	return total
}

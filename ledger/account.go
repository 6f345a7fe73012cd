// Package ledger defines the account record shared by every environment
// backend.
package ledger

import "github.com/gagliardetto/solana-go"

// Account is the on-chain state of a single address.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      solana.PublicKey
	Executable bool
	RentEpoch  uint64
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// IsEmpty reports whether the account holds neither lamports nor data, in
// which case the runtime treats it as nonexistent.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0 && !a.Executable)
}

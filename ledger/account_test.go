package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
)

func TestAccountClone(t *testing.T) {
	orig := &Account{Lamports: 5, Data: []byte{1, 2}, Owner: solana.SystemProgramID}
	c := orig.Clone()
	c.Data[0] = 9
	c.Lamports = 1

	assert.Equal(t, []byte{1, 2}, orig.Data)
	assert.Equal(t, uint64(5), orig.Lamports)
	assert.Nil(t, (*Account)(nil).Clone())
}

func TestAccountIsEmpty(t *testing.T) {
	assert.True(t, (*Account)(nil).IsEmpty())
	assert.True(t, (&Account{}).IsEmpty())
	assert.False(t, (&Account{Lamports: 1}).IsEmpty())
	assert.False(t, (&Account{Data: []byte{0}}).IsEmpty())
}

package bank

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/halbornteam/solana-test-framework/db"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/fixtures"
	"github.com/halbornteam/solana-test-framework/ledger"
	"github.com/halbornteam/solana-test-framework/store"
	"github.com/halbornteam/solana-test-framework/sysvar"
	"github.com/halbornteam/solana-test-framework/timewarp"
)

// Context is a started bank together with its funded payer.
type Context struct {
	bank  *Bank
	payer solana.PrivateKey
}

var _ timewarp.AtomicEnvironment = (*Context)(nil)

func (c *Context) Banks() *Bank {
	return c.bank
}

func (c *Context) Payer() solana.PrivateKey {
	return c.payer
}

func (c *Context) GenesisConfig() GenesisConfig {
	return c.bank.config
}

func (c *Context) Clock(ctx context.Context) (sysvar.Clock, error) {
	if err := ctx.Err(); err != nil {
		return sysvar.Clock{}, err
	}
	return c.bank.Clock(), nil
}

func (c *Context) SetClock(clock sysvar.Clock) error {
	c.bank.SetClock(clock)
	return nil
}

func (c *Context) WarpToSlot(slot uint64) error {
	return c.bank.WarpToSlot(slot)
}

func (c *Context) WarpClock(clock sysvar.Clock) error {
	return c.bank.WarpClock(clock)
}

func (c *Context) NanosecondsPerSlot() uint64 {
	return c.bank.config.NanosecondsPerSlot()
}

func (c *Context) SetAccount(key solana.PublicKey, acc *ledger.Account) {
	c.bank.SetAccount(key, acc)
}

// WarpToTimestamp moves the clock to timestamp and the slot forward by the
// slots that fit in the elapsed time.
func (c *Context) WarpToTimestamp(ctx context.Context, timestamp int64) error {
	return timewarp.WarpToTimestamp(ctx, c, timestamp)
}

// UpdatePythOracle rewrites an existing price account, keeping its owner.
func (c *Context) UpdatePythOracle(ctx context.Context, oracle solana.PublicKey, price fixtures.PriceAccount) error {
	acc, err := c.bank.GetAccount(ctx, oracle)
	if err != nil {
		return err
	}
	if acc == nil {
		return errors.NewValidationError("update_pyth_oracle", "oracle account does not exist").
			WithContext("oracle", oracle.String())
	}
	data, err := price.Pack()
	if err != nil {
		return errors.NewValidationError("update_pyth_oracle", err.Error())
	}
	acc.Data = data
	acc.Lamports = max(acc.Lamports, c.bank.config.Rent.MinimumBalance(uint64(len(data))))
	c.bank.SetAccount(oracle, acc)
	return nil
}

// Snapshot stores every non-sysvar account and the clock in database.
func (c *Context) Snapshot(database *db.DB) error {
	accounts := c.bank.Accounts()
	records := make([]store.AccountRecord, 0, len(accounts))
	for key, acc := range accounts {
		records = append(records, store.AccountRecord{
			Address:    key.String(),
			Lamports:   acc.Lamports,
			Owner:      acc.Owner.String(),
			Executable: acc.Executable,
			RentEpoch:  acc.RentEpoch,
			Data:       acc.Data,
		})
	}
	if err := database.SaveAccounts(records); err != nil {
		return errors.NewDatabaseError("snapshot", "failed to save accounts", err)
	}

	clock := c.bank.Clock()
	err := database.SaveClock(store.ClockRecord{
		Slot:                clock.Slot,
		EpochStartTimestamp: clock.EpochStartTimestamp,
		Epoch:               clock.Epoch,
		LeaderScheduleEpoch: clock.LeaderScheduleEpoch,
		UnixTimestamp:       clock.UnixTimestamp,
	})
	if err != nil {
		return errors.NewDatabaseError("snapshot", "failed to save clock", err)
	}
	return nil
}

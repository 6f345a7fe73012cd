package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halbornteam/solana-test-framework/store"
)

func TestDB_OpenModes(t *testing.T) {
	t.Run("in-memory alias", func(t *testing.T) {
		db, err := OpenInMemoryDB(true)
		require.NoError(t, err)
		require.NotNil(t, db)

		runSampleInsertSelectTest(t, db)
		assert.NoError(t, db.Close())
	})

	t.Run("file-based DB", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "snapshots")
		dbName := "snapshot.db"

		db, err := OpenFileDB(dir, dbName, true)
		require.NoError(t, err)
		require.NotNil(t, db)

		assert.FileExists(t, filepath.Join(dir, dbName))

		runSampleInsertSelectTest(t, db)

		assert.NoError(t, db.Close())

		t.Run("close twice", func(t *testing.T) {
			assert.NoError(t, db.Close())
		})
	})
}

func runSampleInsertSelectTest(t *testing.T, db *DB) {
	entry := store.ClockRecord{Slot: 10101}

	err := db.Client().Create(&entry).Error
	require.NoError(t, err)

	var result store.ClockRecord
	err = db.Client().First(&result).Error
	require.NoError(t, err)
	assert.Equal(t, uint64(10101), result.Slot)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDB_Accounts(t *testing.T) {
	db := newTestDB(t)

	records, err := db.LoadAccounts()
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, db.SaveAccounts([]store.AccountRecord{
		{Address: "bbbb", Lamports: 10, Owner: "owner", Data: []byte{1, 2}},
		{Address: "aaaa", Lamports: 20, Owner: "owner", Executable: true},
	}))

	records, err = db.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "aaaa", records[0].Address)
	assert.True(t, records[0].Executable)
	assert.Equal(t, []byte{1, 2}, records[1].Data)

	t.Run("upsert by address", func(t *testing.T) {
		require.NoError(t, db.SaveAccounts([]store.AccountRecord{
			{Address: "bbbb", Lamports: 99, Owner: "other", Data: []byte{3}},
		}))

		records, err := db.LoadAccounts()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, uint64(99), records[1].Lamports)
		assert.Equal(t, "other", records[1].Owner)
		assert.Equal(t, []byte{3}, records[1].Data)
	})

	t.Run("empty batch", func(t *testing.T) {
		assert.NoError(t, db.SaveAccounts(nil))
	})
}

func TestDB_Clock(t *testing.T) {
	db := newTestDB(t)

	clock, err := db.LoadClock()
	require.NoError(t, err)
	assert.Nil(t, clock)

	require.NoError(t, db.SaveClock(store.ClockRecord{Slot: 5, UnixTimestamp: 100}))
	require.NoError(t, db.SaveClock(store.ClockRecord{Slot: 7, UnixTimestamp: 200, Epoch: 1}))

	clock, err = db.LoadClock()
	require.NoError(t, err)
	require.NotNil(t, clock)
	assert.Equal(t, uint64(7), clock.Slot)
	assert.Equal(t, int64(200), clock.UnixTimestamp)
	assert.Equal(t, uint64(1), clock.Epoch)

	var count int64
	require.NoError(t, db.Client().Model(&store.ClockRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
